package middleware

import (
	"strings"

	"roadmap_analysis/internal/config"
	"roadmap_analysis/internal/util"
	"roadmap_analysis/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ContextConfigKey = "config"

// ConfigMiddleware 将当前配置注入请求上下文
func ConfigMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextConfigKey, cfg)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	tokenString := ""
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		tokenString = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if tokenString == "" {
		tokenString = c.Query("token")
	}
	return tokenString
}

// parseRequestToken 返回 nil, nil 表示请求未携带令牌
func parseRequestToken(c *gin.Context) (*util.Claims, error) {
	tokenString := tokenFromRequest(c)
	if tokenString == "" {
		return nil, nil
	}

	cfg := c.MustGet(ContextConfigKey).(*config.Config)
	claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
	if err != nil {
		logger.Log.Debug("JWT parse failed", zap.String("path", c.FullPath()), zap.Error(err))
		return nil, err
	}
	return claims, nil
}

// AuthMiddleware 必须携带有效令牌
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := parseRequestToken(c)
		if err != nil || claims == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set(util.ContextUserKey, claims)
		c.Next()
	}
}

// TryAuthMiddleware 令牌可选：未携带时按匿名请求处理（统计归入全局桶），携带但无效时拒绝
func TryAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := parseRequestToken(c)
		if err != nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		if claims != nil {
			c.Set(util.ContextUserKey, claims)
		}
		c.Next()
	}
}
