package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"family-ledger/internal/domain"
	"family-ledger/internal/service"
)

func TestJWTAuthMiddleware_AllowsValidAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := service.NewJWTServiceWithStore("secret", 15*time.Minute, 30*time.Minute, service.NewMemorySessionStore())
	user := domain.User{ID: "u1", Email: "user@example.com", CreatedAt: time.Now().UTC()}
	pair, err := jwtSvc.GeneratePair(context.Background(), user)
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	r := gin.New()
	r.GET("/protected", JWTAuthMiddleware(jwtSvc), func(c *gin.Context) {
		claims, ok := GetAuthClaims(c)
		if !ok || claims.UserID != "u1" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestJWTAuthMiddleware_RejectsMissingAndInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := service.NewJWTServiceWithStore("secret", 15*time.Minute, 30*time.Minute, service.NewMemorySessionStore())

	r := gin.New()
	r.GET("/protected", JWTAuthMiddleware(jwtSvc), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %q, got %d", header, rec.Code)
		}
	}
}

type denyThrottle struct{ window time.Duration }

func (d denyThrottle) Allow(context.Context, string) bool { return false }
func (d denyThrottle) Window() time.Duration              { return d.window }

func TestRegisterThrottle(t *testing.T) {
	env := setupAuthRouter(t, nil, denyThrottle{window: 10 * time.Minute})

	rec := performRequest(env.router, http.MethodPost, "/api/register", validRegister)
	resp := expectError(t, rec, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")
	if resp.Error.RetryAfter != 600 || rec.Header().Get("Retry-After") != "600" {
		t.Fatalf("expected retryAfter=600, got %d / %q", resp.Error.RetryAfter, rec.Header().Get("Retry-After"))
	}
	if recs := env.store.Verifications("a@b.com"); len(recs) != 0 {
		t.Fatalf("throttled request must not reach the store")
	}

	rec = performRequest(env.router, http.MethodPost, "/api/verify-email", verifyBody("123456"))
	expectError(t, rec, http.StatusBadRequest, "CODE_NOT_FOUND")
}

func TestRegisterThrottle_MemoryPerIP(t *testing.T) {
	env := setupAuthRouter(t, nil, service.NewMemoryThrottle(time.Minute, 1))

	first := performRequest(env.router, http.MethodPost, "/api/register", validRegister)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	other := map[string]string{"name": "B", "email": "b@c.com", "password": "Abcd1234", "confirmPassword": "Abcd1234"}
	rec := performRequest(env.router, http.MethodPost, "/api/register", other)
	expectError(t, rec, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")
}

func TestCORSPreflight(t *testing.T) {
	env := setupAuthRouter(t, nil, nil)

	rec := performRequest(env.router, http.MethodOptions, "/api/register", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header on preflight")
	}

	rec = performRequest(env.router, http.MethodPost, "/api/login", map[string]string{})
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header on regular response")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(recoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := performRequest(r, http.MethodGet, "/boom", nil)
	expectError(t, rec, http.StatusInternalServerError, "INTERNAL_ERROR")
}

func TestHealthAndNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := true
	check := func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("db down")
	}
	r := NewRouter(zap.NewNop(), RouterConfig{Health: check}, NewAuthHandler(zap.NewNop(), nil), nil)

	if rec := performRequest(r, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	healthy = false
	if rec := performRequest(r, http.MethodGet, "/healthz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	expectError(t, performRequest(r, http.MethodGet, "/nope", nil), http.StatusNotFound, "NOT_FOUND")
}
