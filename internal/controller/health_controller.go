package controller

import (
	"context"
	"net/http"
	"time"

	"roadmap_analysis/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gorm.io/gorm"
)

const healthCheckTimeout = 3 * time.Second

// HealthController DB 与 Redis 未启用时为空，对应组件不参与检查
type HealthController struct {
	Mongo *mongo.Client
	DB    *gorm.DB
	Redis *redis.Client
}

func NewHealthController(mongoClient *mongo.Client, db *gorm.DB, rdb *redis.Client) *HealthController {
	return &HealthController{Mongo: mongoClient, DB: db, Redis: rdb}
}

// @Summary 健康检查
// @Description 检查服务及依赖组件状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), healthCheckTimeout)
	defer cancel()

	components := gin.H{}
	healthy := true
	mark := func(name string, err error) {
		if err != nil {
			components[name] = "down"
			healthy = false
			return
		}
		components[name] = "up"
	}

	if c.Mongo != nil {
		mark("mongo", c.Mongo.Ping(checkCtx, readpref.Primary()))
	}
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(checkCtx)
		}
		mark("database", err)
	}
	if c.Redis != nil {
		mark("redis", c.Redis.Ping(checkCtx).Err())
	}

	if !healthy {
		ctx.JSON(http.StatusServiceUnavailable, util.Response{
			Code:    http.StatusServiceUnavailable,
			Message: "Service degraded",
			Data:    gin.H{"status": "degraded", "components": components},
		})
		return
	}

	util.Success(ctx, gin.H{
		"status":     "ok",
		"components": components,
	})
}
