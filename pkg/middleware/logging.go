package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docflow/internal/identity"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request. Probes and metrics scrapes are
// logged at debug level.
func RequestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if a, ok := identity.FromContext(c.Request.Context()); ok {
			fields = append(fields, zap.String("actor", a.ID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case path == "/health" || path == "/ready" || path == "/metrics" || strings.HasPrefix(path, "/swagger/"):
			l.Debug("HTTP Request", fields...)
		case c.Writer.Status() >= 500:
			l.Error("HTTP Request", fields...)
		default:
			l.Info("HTTP Request", fields...)
		}
	}
}
