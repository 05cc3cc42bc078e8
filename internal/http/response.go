package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// envelope es la forma comun de todas las respuestas JSON.
type envelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

const (
	codeInvalidRequest     = "INVALID_REQUEST"
	codeMissingFields      = "MISSING_FIELDS"
	codeInvalidEmail       = "INVALID_EMAIL"
	codeWeakPassword       = "WEAK_PASSWORD"
	codePasswordMismatch   = "PASSWORD_MISMATCH"
	codeEmailExists        = "EMAIL_EXISTS"
	codeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	codeInvalidCode        = "INVALID_CODE"
	codeCodeNotFound       = "CODE_NOT_FOUND"
	codeCodeLocked         = "CODE_LOCKED"
	codeCodeExpired        = "CODE_EXPIRED"
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	codeUnauthorized       = "UNAUTHORIZED"
	codeNotFound           = "NOT_FOUND"
	codeInternalError      = "INTERNAL_ERROR"
)

func respondSuccess(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// respondSuccessNoData responde con "data": null explicito.
func respondSuccessNoData(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": true, "message": message, "data": nil})
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	c.JSON(status, envelope{
		Success: false,
		Error:   &apiError{Code: code, Message: message, Details: details},
	})
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{
		Success: false,
		Error:   &apiError{Code: code, Message: message},
	})
}

// respondRateLimited responde 429 con retryAfter en el cuerpo y en Retry-After.
func respondRateLimited(c *gin.Context, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, envelope{
		Success: false,
		Error: &apiError{
			Code:       codeRateLimitExceeded,
			Message:    "too many requests, retry after " + strconv.Itoa(retryAfter) + " seconds",
			RetryAfter: retryAfter,
		},
	})
}

func respondInternalError(c *gin.Context) {
	abortWithError(c, http.StatusInternalServerError, codeInternalError, "internal server error, please try again later")
}
