package api

import (
	"pulseflow/internal/metrics"
	"pulseflow/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type RouterConfig struct {
	JWTSecret         []byte
	DevPass           bool
	RequestsPerSecond int
	CORSOrigins       []string
}

func RegisterRoutes(adminHandler *AdminHandler, rdb *redis.Client, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.CorsMiddleware(cfg.CORSOrigins),
		middleware.Trace(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HTTPMetrics(),
	)
	_ = r.SetTrustedProxies(nil)

	r.GET("/health", adminHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	admin := r.Group("/v1/admin")
	admin.Use(middleware.JWTMiddleware(cfg.JWTSecret, cfg.DevPass), middleware.RequireAdmin())

	// Reload stops every timer, so it is throttled per operator.
	reloadLimiter := middleware.RateLimitMiddleware(rdb, cfg.RequestsPerSecond)
	{
		admin.POST("/scheduler/reload", reloadLimiter, adminHandler.ReloadScheduler)
		admin.GET("/scheduler/tasks", adminHandler.ListTasks)
		admin.GET("/scheduler/ticks", adminHandler.ListTicks)
		admin.GET("/notifications", adminHandler.ListHistory)
	}
	return r
}
