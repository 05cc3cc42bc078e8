package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"family-ledger/internal/domain"
)

// CredentialIssuer convierte una cuenta verificada en tokens de sesion.
type CredentialIssuer interface {
	GeneratePair(ctx context.Context, user domain.User) (TokenPair, error)
	RefreshPair(ctx context.Context, refreshToken string) (TokenPair, error)
	RevokeSession(ctx context.Context, sessionID string) error
}

// JWTService emite y valida tokens JWT.
// El jti del refresh token es el id de sesion; el access token lo lleva en sid.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      SessionStore
}

type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	ExpiresAt    int64  `json:"expiresAt"`
}

type Claims struct {
	UserID        string `json:"uid"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	TokenType     string `json:"typ"`
	SessionID     string `json:"sid"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultSessionTTL
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "family-ledger",
		store:      NewMemorySessionStore(),
	}
}

func NewJWTServiceWithStore(secret string, accessTTL, refreshTTL time.Duration, store SessionStore) *JWTService {
	svc := NewJWTService(secret, accessTTL, refreshTTL)
	if store != nil {
		svc.store = store
	}
	return svc
}

func (s *JWTService) GeneratePair(ctx context.Context, user domain.User) (TokenPair, error) {
	if len(s.secret) == 0 {
		return TokenPair{}, ErrJWTInvalid
	}
	now := time.Now().UTC()
	sessionID := uuid.NewString()
	access, err := s.signToken(user, now, s.accessTTL, tokenTypeAccess, sessionID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.signToken(user, now, s.refreshTTL, tokenTypeRefresh, sessionID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Store(ctx, sessionID, user.ID, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		ExpiresAt:    now.Add(s.accessTTL).Unix(),
	}, nil
}

// RefreshPair rota la sesion: el refresh token usado queda revocado.
func (s *JWTService) RefreshPair(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.parseTyped(refreshToken, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	ok, err := s.store.Exists(ctx, claims.ID)
	if err != nil || !ok {
		return TokenPair{}, ErrJWTInvalid
	}
	if err := s.store.Revoke(ctx, claims.ID); err != nil {
		return TokenPair{}, ErrJWTInvalid
	}

	user := domain.User{
		ID:            claims.UserID,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}
	return s.GeneratePair(ctx, user)
}

// RevokeSession invalida el refresh token y todos los access tokens de la sesion.
func (s *JWTService) RevokeSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrJWTInvalid
	}
	return s.store.Revoke(ctx, sessionID)
}

// ParseAccessToken valida firma, tipo y que la sesion siga activa.
func (s *JWTService) ParseAccessToken(ctx context.Context, accessToken string) (Claims, error) {
	claims, err := s.parseTyped(accessToken, tokenTypeAccess)
	if err != nil {
		return Claims{}, err
	}
	ok, err := s.store.Exists(ctx, claims.SessionID)
	if err != nil || !ok {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) parseTyped(tokenString, tokenType string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenType {
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) signToken(user domain.User, now time.Time, ttl time.Duration, tokenType, sessionID string) (string, error) {
	claims := Claims{
		UserID:        user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		TokenType:     tokenType,
		SessionID:     sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if tokenType == tokenTypeRefresh {
		claims.ID = sessionID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	if strings.TrimSpace(claims.SessionID) == "" {
		return false
	}
	if claims.TokenType == tokenTypeRefresh && claims.ID != claims.SessionID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
