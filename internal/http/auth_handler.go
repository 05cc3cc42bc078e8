package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"family-ledger/internal/domain"
	"family-ledger/internal/service"
)

// AuthHandler mantiene dependencias para endpoints de registro y sesion.
type AuthHandler struct {
	logger   *zap.Logger
	accounts *service.AccountService
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		accounts: accounts,
	}
}

type registerResponse struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionResponse struct {
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"emailVerified"`
	Token         string `json:"token,omitempty"`
	RefreshToken  string `json:"refreshToken,omitempty"`
	ExpiresAt     int64  `json:"expiresAt,omitempty"`
}

func newSessionResponse(user domain.User, tokens *service.TokenPair) sessionResponse {
	resp := sessionResponse{
		UserID:        user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
	}
	if tokens != nil {
		resp.Token = tokens.AccessToken
		resp.RefreshToken = tokens.RefreshToken
		resp.ExpiresAt = tokens.ExpiresAt
	}
	return resp
}

// Register maneja POST /api/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	res, err := h.accounts.Register(c.Request.Context(), service.RegisterInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.writeError(c, "register", err)
		return
	}

	respondSuccess(c, http.StatusOK, "verification code sent, please check your email", registerResponse{
		Email:     res.Email,
		ExpiresAt: res.ExpiresAt,
	})
}

// VerifyEmail maneja POST /api/verify-email.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	res, err := h.accounts.VerifyEmail(c.Request.Context(), service.VerifyInput{
		Email:    req.Email,
		Code:     req.Code,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, "verify email", err)
		return
	}

	message := "account created, you are now signed in"
	if res.Tokens == nil {
		message = "account created, please sign in with your email and password"
	}
	respondSuccess(c, http.StatusOK, message, newSessionResponse(res.User, res.Tokens))
}

// Login maneja POST /api/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	res, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, "login", err)
		return
	}
	respondSuccess(c, http.StatusOK, "signed in", newSessionResponse(res.User, &res.Tokens))
}

// Logout maneja POST /api/logout. Requiere JWTAuthMiddleware.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}
	if err := h.accounts.Logout(c.Request.Context(), claims.SessionID); err != nil {
		h.writeError(c, "logout", err)
		return
	}
	respondSuccessNoData(c, http.StatusOK, "signed out")
}

// Refresh maneja POST /api/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !h.bindJSON(c, &req) {
		return
	}

	tokens, err := h.accounts.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, "refresh", err)
		return
	}
	respondSuccess(c, http.StatusOK, "", tokens)
}

// bindJSON acepta cuerpo vacio (los campos quedan vacios) y rechaza JSON malformado.
func (h *AuthHandler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("invalid request body", zap.String("path", c.Request.URL.Path), zap.Error(err))
		respondError(c, http.StatusBadRequest, codeInvalidRequest, "invalid request body", nil)
		return false
	}
	return true
}

// writeError traduce errores del servicio a respuestas. Lo desconocido es 500 sin detalle.
func (h *AuthHandler) writeError(c *gin.Context, op string, err error) {
	var (
		missing   *service.MissingFieldsError
		rateLimit *service.RateLimitError
		badCode   *service.InvalidCodeError
	)
	switch {
	case errors.As(err, &missing):
		respondError(c, http.StatusBadRequest, codeMissingFields, missing.Error(), gin.H{"fields": missing.Fields})
	case errors.Is(err, service.ErrInvalidEmail):
		respondError(c, http.StatusBadRequest, codeInvalidEmail, "invalid email format", nil)
	case errors.Is(err, service.ErrWeakPassword):
		respondError(c, http.StatusBadRequest, codeWeakPassword,
			"password must be 8-20 characters and include an uppercase letter, a lowercase letter and a digit", nil)
	case errors.Is(err, service.ErrPasswordMismatch):
		respondError(c, http.StatusBadRequest, codePasswordMismatch, "passwords do not match", nil)
	case errors.Is(err, service.ErrEmailExists):
		respondError(c, http.StatusConflict, codeEmailExists, "email is already registered", nil)
	case errors.As(err, &rateLimit):
		respondRateLimited(c, rateLimit.RetryAfter)
	case errors.As(err, &badCode):
		respondError(c, http.StatusBadRequest, codeInvalidCode, badCode.Error(), gin.H{"remainingAttempts": badCode.Remaining})
	case errors.Is(err, service.ErrInvalidCode):
		respondError(c, http.StatusBadRequest, codeInvalidCode, "verification code must be 6 digits", nil)
	case errors.Is(err, service.ErrCodeNotFound):
		respondError(c, http.StatusBadRequest, codeCodeNotFound, "verification code not found", nil)
	case errors.Is(err, service.ErrCodeLocked):
		respondError(c, http.StatusBadRequest, codeCodeLocked, "too many failed attempts, please register again", nil)
	case errors.Is(err, service.ErrCodeExpired):
		respondError(c, http.StatusBadRequest, codeCodeExpired, "verification code expired, please register again", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusBadRequest, codeInvalidCredentials, "invalid email or password", nil)
	case errors.Is(err, service.ErrEmailNotVerified):
		respondError(c, http.StatusBadRequest, codeEmailNotVerified, "please verify your email first", nil)
	case errors.Is(err, service.ErrJWTInvalid), errors.Is(err, service.ErrJWTExpired):
		respondError(c, http.StatusUnauthorized, codeUnauthorized, "invalid token", nil)
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		respondInternalError(c)
	}
}
