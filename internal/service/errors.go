package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("weak password")
	ErrPasswordMismatch   = errors.New("password mismatch")
	ErrEmailExists        = errors.New("email already registered")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrCodeNotFound       = errors.New("verification code not found")
	ErrCodeLocked         = errors.New("verification code locked")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
)

// MissingFieldsError lista los campos requeridos que llegaron vacios.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrMissingFields
}

// RateLimitError indica cuantos segundos faltan para poder reintentar.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// InvalidCodeError es un codigo incorrecto que todavia no bloqueo el registro.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid verification code, %d attempts remaining", e.Remaining)
}

func (e *InvalidCodeError) Is(target error) bool {
	return target == ErrInvalidCode
}
