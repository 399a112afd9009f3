package app

import (
	"roadmap_analysis/docs"
	"roadmap_analysis/internal/config"
	"roadmap_analysis/internal/middleware"
	"roadmap_analysis/internal/util"
	"roadmap_analysis/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	api.Use(middleware.ConfigMiddleware(cfg))
	{
		api.GET("/health", c.health.HealthCheck)

		// 令牌可选，匿名请求统计归入全局桶
		stats := api.Group("/analysis/stats")
		stats.Use(middleware.TryAuthMiddleware())
		{
			stats.GET("", c.analysis.GetDashboardStats)
			stats.POST("/keywords", c.analysis.SaveKeywords)
			stats.GET("/debug", c.analysis.GetDashboardStatsDebug)
			stats.POST("/debug/export", middleware.AuthMiddleware(), c.analysis.ExportDebugStats)
		}
	}

	// 本地导出的调试快照仅在非 release 模式下可直接访问
	if cfg.Storage.Type == util.StorageLocal && cfg.Server.Mode != gin.ReleaseMode {
		router.Static("/exports", cfg.Storage.LocalPath)
	}
}
