package domain

import (
	"errors"
	"math"
	"time"
)

const (
	DefaultCodeTTL     = 5 * time.Minute
	DefaultCooldown    = 60 * time.Second
	DefaultMaxAttempts = 5
	DefaultRetention   = 24 * time.Hour
)

// VerificationRecord representa un codigo emitido para un email.
// Solo el registro mas reciente por email es autoritativo.
type VerificationRecord struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Code           string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	FailedAttempts int       `json:"failed_attempts"`
	IsLocked       bool      `json:"is_locked"`
}

// IsExpired reporta si el codigo ya no puede verificarse en now.
func (r VerificationRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// RemainingAttempts devuelve cuantos intentos fallidos quedan antes del bloqueo.
func (r VerificationRecord) RemainingAttempts(maxAttempts int) int {
	remaining := maxAttempts - r.FailedAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// VerificationPolicy agrupa las constantes de emision, expiracion y bloqueo.
type VerificationPolicy struct {
	CodeTTL     time.Duration `yaml:"code_ttl"`
	Cooldown    time.Duration `yaml:"cooldown"`
	MaxAttempts int           `yaml:"max_attempts"`
	Retention   time.Duration `yaml:"retention"`
}

func DefaultVerificationPolicy() VerificationPolicy {
	return VerificationPolicy{
		CodeTTL:     DefaultCodeTTL,
		Cooldown:    DefaultCooldown,
		MaxAttempts: DefaultMaxAttempts,
		Retention:   DefaultRetention,
	}
}

var ErrInvalidPolicy = errors.New("invalid verification policy")

// Validate exige valores positivos y una retencion que no pise cooldown ni TTL.
func (p VerificationPolicy) Validate() error {
	if p.CodeTTL <= 0 || p.Cooldown <= 0 || p.MaxAttempts <= 0 || p.Retention <= 0 {
		return ErrInvalidPolicy
	}
	if p.Retention < p.Cooldown || p.Retention < p.CodeTTL {
		return ErrInvalidPolicy
	}
	return nil
}

// RetryAfter aplica el cooldown de emision sobre el registro mas reciente.
// Devuelve 0 si se permite emitir, o los segundos (redondeados hacia arriba) a esperar.
// El estado de bloqueo o expiracion del registro no cambia la decision.
func RetryAfter(latest *VerificationRecord, now time.Time, cooldown time.Duration) int {
	if latest == nil {
		return 0
	}
	elapsed := now.Sub(latest.CreatedAt)
	if elapsed >= cooldown {
		return 0
	}
	if elapsed < 0 {
		// Reloj desfasado: nunca esperar mas que el cooldown completo.
		elapsed = 0
	}
	wait := int(math.Ceil((cooldown - elapsed).Seconds()))
	if wait < 1 {
		wait = 1
	}
	return wait
}
