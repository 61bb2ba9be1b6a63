package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/zimshelf/pkg/logger"
)

// Recovery returns a gin middleware for panic recovery
func Recovery(log *zap.Logger, multiLogger *logger.MultiLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				fields := []zap.Field{
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				}
				log.Error("Panic recovered", fields...)
				if multiLogger != nil {
					multiLogger.LogAppError("Panic recovered", fields...)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
