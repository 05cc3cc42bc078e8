package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"family-ledger/internal/service"
)

// HealthCheck reporta si las dependencias criticas responden.
type HealthCheck func(ctx context.Context) error

// RouterConfig agrupa las dependencias opcionales del router.
type RouterConfig struct {
	AllowOrigin      string
	RegisterThrottle service.RequestThrottle
	Health           HealthCheck
}

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	cfg RouterConfig,
	authH *AuthHandler,
	jwtSvc *service.JWTService,
) *gin.Engine {
	r := gin.New()

	r.Use(
		zapLoggerMiddleware(logger),
		recoveryMiddleware(logger),
		corsMiddleware(cfg.AllowOrigin),
		jsonContentTypeMiddleware(),
	)

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, codeNotFound, "route not found", nil)
	})

	r.GET("/healthz", healthHandler(logger, cfg.Health))

	api := r.Group("/api")
	api.POST("/register", ThrottleMiddleware(logger, cfg.RegisterThrottle), authH.Register)
	api.POST("/verify-email", authH.VerifyEmail)
	api.POST("/login", authH.Login)
	api.POST("/logout", JWTAuthMiddleware(jwtSvc), authH.Logout)
	api.POST("/refresh", authH.Refresh)

	return r
}

func healthHandler(logger *zap.Logger, check HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.Error("health check failed", zap.Error(err))
				respondError(c, http.StatusServiceUnavailable, codeInternalError, "service unavailable", nil)
				return
			}
		}
		respondSuccess(c, http.StatusOK, "ok", nil)
	}
}
