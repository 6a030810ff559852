package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs one structured line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}

// actorFrom reads the already-authenticated identity set by the fronting
// auth layer. Session issuance itself lives outside this service.
func actorFrom(c *gin.Context) domain.Actor {
	return domain.Actor{
		AccountID: c.GetHeader("X-Account-ID"),
		Admin:     c.GetHeader("X-Admin") == "true",
	}
}

// RequireAdmin gates operator-only endpoints.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}
