package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"family-ledger/internal/domain"
)

func testUser() domain.User {
	return domain.User{
		ID:            "u1",
		Email:         "user@example.com",
		Name:          "Test",
		EmailVerified: true,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestJWTService_GenerateParseAccess(t *testing.T) {
	ctx := context.Background()
	svc := NewJWTServiceWithStore("secret", 15*time.Minute, 30*time.Minute, NewMemorySessionStore())

	before := time.Now().Unix()
	pair, err := svc.GeneratePair(ctx, testUser())
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected tokens")
	}
	if pair.ExpiresIn != 900 || pair.ExpiresAt < before+900 {
		t.Fatalf("unexpected expiry: %+v", pair)
	}

	claims, err := svc.ParseAccessToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "user@example.com" || !claims.EmailVerified {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.SessionID == "" {
		t.Fatalf("expected session id in access token")
	}
}

func TestJWTService_RefreshRotation(t *testing.T) {
	ctx := context.Background()
	svc := NewJWTServiceWithStore("secret", 15*time.Minute, 30*time.Minute, NewMemorySessionStore())

	pair, err := svc.GeneratePair(ctx, testUser())
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	refreshed, err := svc.RefreshPair(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh pair: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == "" {
		t.Fatalf("expected refreshed tokens")
	}

	if _, err := svc.RefreshPair(ctx, pair.RefreshToken); err == nil {
		t.Fatalf("expected old refresh token to be revoked")
	}
	if _, err := svc.ParseAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected old access token invalid after rotation, got %v", err)
	}
	if _, err := svc.ParseAccessToken(ctx, refreshed.AccessToken); err != nil {
		t.Fatalf("expected new access token valid, got %v", err)
	}
}

func TestJWTService_RevokeSessionInvalidatesTokens(t *testing.T) {
	ctx := context.Background()
	svc := NewJWTServiceWithStore("secret", 15*time.Minute, 30*time.Minute, NewMemorySessionStore())
	pair, err := svc.GeneratePair(ctx, testUser())
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	claims, err := svc.ParseAccessToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}

	if err := svc.RevokeSession(ctx, claims.SessionID); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	if _, err := svc.RefreshPair(ctx, pair.RefreshToken); err == nil {
		t.Fatalf("expected refresh to fail after revoke")
	}
	if _, err := svc.ParseAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected access token invalid after revoke, got %v", err)
	}
	if err := svc.RevokeSession(ctx, " "); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for empty session, got %v", err)
	}
}

func TestJWTService_RejectsEmptySecret(t *testing.T) {
	svc := NewJWTServiceWithStore("", 15*time.Minute, 30*time.Minute, NewMemorySessionStore())

	if _, err := svc.GeneratePair(context.Background(), testUser()); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid on empty secret, got %v", err)
	}
}

func TestJWTService_RejectsAccessTokenInRefreshFlow(t *testing.T) {
	ctx := context.Background()
	svc := NewJWTServiceWithStore("secret", 15*time.Minute, 30*time.Minute, NewMemorySessionStore())
	pair, err := svc.GeneratePair(ctx, testUser())
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	if _, err := svc.RefreshPair(ctx, pair.AccessToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for access token used as refresh, got %v", err)
	}
}

func TestJWTService_RejectsWrongIssuer(t *testing.T) {
	svc := NewJWTServiceWithStore("secret", 15*time.Minute, 30*time.Minute, NewMemorySessionStore())
	now := time.Now().UTC()
	claims := Claims{
		UserID:    "u1",
		Email:     "user@example.com",
		TokenType: "access",
		SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "other-issuer",
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := svc.ParseAccessToken(context.Background(), signed); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for wrong issuer, got %v", err)
	}
}

func TestJWTService_ExpiredToken(t *testing.T) {
	svc := NewJWTServiceWithStore("secret", 15*time.Minute, 30*time.Minute, NewMemorySessionStore())
	now := time.Now().UTC().Add(-time.Hour)
	claims := Claims{
		UserID:    "u1",
		TokenType: "access",
		SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "family-ledger",
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := svc.ParseAccessToken(context.Background(), signed); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("expected ErrJWTExpired, got %v", err)
	}
}
