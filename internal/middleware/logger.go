package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medalarm/pkg/logger"
)

// Logger logs one line per request at a level chosen by status code.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"request_id", c.GetString(ContextRequestID),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start).String(),
			"user_agent", c.Request.UserAgent(),
		}

		switch {
		case status >= 500:
			log.Warn("server error", fields...)
		case status >= 400:
			log.Info("client error", fields...)
		default:
			log.Debug("request processed", fields...)
		}
	}
}
