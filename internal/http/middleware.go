package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"family-ledger/internal/service"
)

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

// recoveryMiddleware convierte un panic en 500 INTERNAL_ERROR con el envelope comun.
func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
		)
		respondInternalError(c)
	})
}

// corsMiddleware agrega los headers CORS y responde los preflight OPTIONS con 204.
func corsMiddleware(allowOrigin string) gin.HandlerFunc {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Client-Info, Apikey")
		h.Set("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ThrottleMiddleware limita solicitudes por IP de cliente. Un throttle nil deja pasar todo.
func ThrottleMiddleware(logger *zap.Logger, throttle service.RequestThrottle) gin.HandlerFunc {
	return func(c *gin.Context) {
		if throttle == nil {
			c.Next()
			return
		}
		if !throttle.Allow(c.Request.Context(), c.ClientIP()) {
			retryAfter := int(throttle.Window().Seconds())
			if retryAfter <= 0 {
				retryAfter = 60
			}
			logger.Debug("request throttled", zap.String("client_ip", c.ClientIP()), zap.String("path", c.Request.URL.Path))
			respondRateLimited(c, retryAfter)
			return
		}
		c.Next()
	}
}
