package service

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher es la primitiva de hash de una via para contraseñas.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, digest string) bool
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher usa bcrypt.DefaultCost si cost esta fuera de rango.
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (h *bcryptHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *bcryptHasher) Compare(plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
