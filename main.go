// @title Roadmap Analysis API
// @version 1.0
// @description 学习路线图统计服务：关键词雷达图、连续完成天数与年度贡献图。

// @host localhost:8083
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"context"
	"flag"
	"log"

	"roadmap_analysis/internal/app"
	"roadmap_analysis/internal/config"
	"roadmap_analysis/pkg/logger"
)

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只创建索引与数据表，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制创建索引与数据表（即使是 release 模式）")
	flag.Parse()

	cfg, err := config.LoadConfig(app.ConfigDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设置迁移标志
	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)

	// 迁移完成后直接退出
	if *migrateOnly {
		logger.Log.Info("Migration finished, exiting")
		application.Close(context.Background())
		return
	}

	application.Run()
}
