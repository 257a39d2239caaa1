package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitjourney/internal/handler"
	"go.uber.org/zap"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(requestLogger(logger), gin.Recovery())

	r.GET("/healthz", api.HealthCheck)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/habits", api.ListHabits)
		apiGroup.POST("/habits", api.CreateHabit)
		apiGroup.PUT("/habits/:id", api.UpdateHabit)
		apiGroup.DELETE("/habits/:id", api.DeleteHabit)
		apiGroup.POST("/habits/:id/toggle", api.ToggleHabit)

		apiGroup.GET("/logs", api.ListLogs)
		apiGroup.GET("/today", api.GetToday)

		apiGroup.GET("/progress", api.GetProgress)
		apiGroup.GET("/progress/weekly", api.GetWeeklyProgress)
		apiGroup.GET("/history", api.GetHistory)
		apiGroup.GET("/target", api.GetMonthlyTarget)
		apiGroup.PUT("/target", api.UpdateMonthlyTarget)

		apiGroup.GET("/score", api.GetDailyScore)
		apiGroup.GET("/quote", api.GetQuote)

		apiGroup.GET("/settings", api.GetSystemSettings)
		apiGroup.PUT("/settings", api.UpdateSystemSettings)
		apiGroup.POST("/settings/ai/test", api.TestAIConnection)
	}

	return r
}

// requestLogger 使用 zap 记录每个请求，处理器通过 c.Error 附加的错误一并输出
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny).String(); errs != "" {
			fields = append(fields, zap.String("errors", errs))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400 || len(c.Errors) > 0:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
