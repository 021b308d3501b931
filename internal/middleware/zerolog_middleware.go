package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Health probes and assistant auth rejections are routine; the former are
// demoted to debug and the latter to warn so real failures stand out.
var loggerSkipPathsPrefix = []string{
	"GET /api/health",
	"HEAD /api/health",
}

type ZerologMiddleware struct{}

func NewZerologMiddleware() *ZerologMiddleware {
	return &ZerologMiddleware{}
}

func (m *ZerologMiddleware) Init() error {
	return nil
}

func (m *ZerologMiddleware) logPath(path string) bool {
	for _, prefix := range loggerSkipPathsPrefix {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func (m *ZerologMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tStart := time.Now()

		c.Next()

		code := c.Writer.Status()
		address := c.Request.RemoteAddr
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path

		latency := time.Since(tStart)

		event := log.Info()

		switch {
		case !m.logPath(method + " " + path):
			event = log.Debug()
		case code == 401 || code == 403:
			// Expired bearer tokens show up here constantly; the assistant
			// is expected to refresh and retry
			event = log.Warn()
		case code >= 400:
			event = log.Error()
		case code >= 300:
			event = log.Warn()
		}

		event.Str("method", method).Str("path", path).Str("address", address).Str("clientIp", clientIP).Int("status", code).Dur("latency", latency).Msg("Request")
	}
}
