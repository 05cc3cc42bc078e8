package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"family-ledger/internal/domain"
	"family-ledger/internal/email"
	"family-ledger/internal/repository"
)

// Timeouts acota cada llamada a un colaborador externo.
type Timeouts struct {
	Store  time.Duration
	Email  time.Duration
	Issuer time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Store:  5 * time.Second,
		Email:  10 * time.Second,
		Issuer: 3 * time.Second,
	}
}

// AccountService coordina registro, verificacion de email y sesiones.
type AccountService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	codes    repository.VerificationRepository
	sender   email.Sender
	issuer   CredentialIssuer
	hasher   PasswordHasher
	policy   domain.VerificationPolicy
	timeouts Timeouts

	now      func() time.Time
	newID    func() string
	generate func() (string, error)
}

func NewAccountService(
	logger *zap.Logger,
	users repository.UserRepository,
	codes repository.VerificationRepository,
	sender email.Sender,
	issuer CredentialIssuer,
	hasher PasswordHasher,
	policy domain.VerificationPolicy,
	timeouts Timeouts,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	if sender == nil {
		sender = email.NewDisabledSender("email sender not configured")
	}
	def := DefaultTimeouts()
	if timeouts.Store <= 0 {
		timeouts.Store = def.Store
	}
	if timeouts.Email <= 0 {
		timeouts.Email = def.Email
	}
	if timeouts.Issuer <= 0 {
		timeouts.Issuer = def.Issuer
	}
	return &AccountService{
		logger:   logger,
		users:    users,
		codes:    codes,
		sender:   sender,
		issuer:   issuer,
		hasher:   hasher,
		policy:   policy,
		timeouts: timeouts,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		generate: GenerateCode,
	}
}

type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

type RegisterResult struct {
	Email     string
	ExpiresAt time.Time
}

type VerifyInput struct {
	Email    string
	Code     string
	Name     string
	Password string
}

// VerifyResult trae la cuenta creada. Tokens es nil si no se pudo abrir sesion:
// la cuenta existe igual y el usuario debe iniciar sesion manualmente.
type VerifyResult struct {
	User   domain.User
	Tokens *TokenPair
}

type LoginResult struct {
	User   domain.User
	Tokens TokenPair
}

// Register valida la solicitud, aplica el cooldown por email y emite un codigo nuevo.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if err := missingFields(
		field{"name", in.Name},
		field{"email", in.Email},
		field{"password", in.Password},
		field{"confirmPassword", in.ConfirmPassword},
	); err != nil {
		return RegisterResult{}, err
	}
	emailAddr := normalizeEmail(in.Email)
	if !isValidEmail(emailAddr) {
		return RegisterResult{}, ErrInvalidEmail
	}
	if !isStrongPassword(in.Password) {
		return RegisterResult{}, ErrWeakPassword
	}
	if in.Password != in.ConfirmPassword {
		return RegisterResult{}, ErrPasswordMismatch
	}

	if err := s.ensureEmailAvailable(ctx, emailAddr); err != nil {
		return RegisterResult{}, err
	}

	code, err := s.generate()
	if err != nil {
		return RegisterResult{}, fmt.Errorf("generate code: %w", err)
	}
	now := s.now()
	rec := domain.VerificationRecord{
		ID:        s.newID(),
		Email:     emailAddr,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.policy.CodeTTL),
	}

	var retryAfter int
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		retryAfter, err = s.codes.Issue(ctx, rec, s.policy.Cooldown)
		return err
	})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("issue verification code: %w", err)
	}
	if retryAfter > 0 {
		s.logger.Debug("verification code cooldown", zap.String("email", emailAddr), zap.Int("retry_after", retryAfter))
		return RegisterResult{}, &RateLimitError{RetryAfter: retryAfter}
	}

	s.deliverCode(ctx, email.VerificationMessage{
		To:        emailAddr,
		Name:      strings.TrimSpace(in.Name),
		Code:      code,
		ExpiresAt: rec.ExpiresAt,
	})

	return RegisterResult{Email: emailAddr, ExpiresAt: rec.ExpiresAt}, nil
}

func (s *AccountService) ensureEmailAvailable(ctx context.Context, emailAddr string) error {
	err := s.withStore(ctx, func(ctx context.Context) error {
		_, err := s.users.GetByEmail(ctx, emailAddr)
		return err
	})
	switch {
	case err == nil:
		s.logger.Debug("register for existing account", zap.String("email", emailAddr))
		return ErrEmailExists
	case errors.Is(err, pgx.ErrNoRows):
		return nil
	default:
		return fmt.Errorf("lookup user: %w", err)
	}
}

// deliverCode no falla el registro: el codigo ya quedo guardado y se puede pedir otro tras el cooldown.
func (s *AccountService) deliverCode(ctx context.Context, msg email.VerificationMessage) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Email)
	defer cancel()
	if err := s.sender.SendVerificationCode(ctx, msg); err != nil {
		s.logger.Warn("send verification code failed", zap.Error(err), zap.String("email", msg.To))
	}
}

// VerifyEmail comprueba el codigo mas reciente del email y, si coincide, crea la cuenta.
func (s *AccountService) VerifyEmail(ctx context.Context, in VerifyInput) (VerifyResult, error) {
	if err := missingFields(
		field{"email", in.Email},
		field{"code", in.Code},
		field{"name", in.Name},
		field{"password", in.Password},
	); err != nil {
		return VerifyResult{}, err
	}
	emailAddr := normalizeEmail(in.Email)
	if !isValidEmail(emailAddr) {
		return VerifyResult{}, ErrInvalidEmail
	}
	code := strings.TrimSpace(in.Code)
	if !isValidOTPCode(code) {
		return VerifyResult{}, ErrInvalidCode
	}
	if !isStrongPassword(in.Password) {
		return VerifyResult{}, ErrWeakPassword
	}

	var rec domain.VerificationRecord
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.codes.Latest(ctx, emailAddr)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerifyResult{}, ErrCodeNotFound
		}
		return VerifyResult{}, fmt.Errorf("load verification code: %w", err)
	}

	if rec.IsLocked {
		return VerifyResult{}, ErrCodeLocked
	}
	if rec.IsExpired(s.now()) {
		return VerifyResult{}, ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(rec.Code)) != 1 {
		return VerifyResult{}, s.recordFailedAttempt(ctx, rec)
	}

	user, err := s.provision(ctx, rec, emailAddr, in)
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{User: user}
	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		s.logger.Warn("session issuance after verification failed", zap.Error(err), zap.String("user_id", user.ID))
		return result, nil
	}
	result.Tokens = &tokens
	return result, nil
}

func (s *AccountService) recordFailedAttempt(ctx context.Context, rec domain.VerificationRecord) error {
	var (
		count  int
		locked bool
	)
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		count, locked, err = s.codes.IncrementAttempts(ctx, rec.ID, s.policy.MaxAttempts)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("increment attempts: %w", err)
	}
	if locked {
		s.logger.Debug("verification code locked", zap.String("email", rec.Email), zap.Int("failed_attempts", count))
		return ErrCodeLocked
	}
	updated := rec
	updated.FailedAttempts = count
	return &InvalidCodeError{Remaining: updated.RemainingAttempts(s.policy.MaxAttempts)}
}

func (s *AccountService) provision(ctx context.Context, rec domain.VerificationRecord, emailAddr string, in VerifyInput) (domain.User, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:            s.newID(),
		Email:         emailAddr,
		Name:          strings.TrimSpace(in.Name),
		PasswordHash:  hash,
		EmailVerified: true,
		CreatedAt:     s.now(),
	}
	err = s.withStore(ctx, func(ctx context.Context) error {
		return s.codes.Provision(ctx, rec.ID, user)
	})
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Consumido o bloqueado por otra solicitud concurrente.
		return domain.User{}, s.consumedOrLocked(ctx, rec)
	case errors.Is(err, repository.ErrEmailTaken):
		return domain.User{}, ErrEmailExists
	default:
		return domain.User{}, fmt.Errorf("provision user: %w", err)
	}
}

// consumedOrLocked distingue un registro ya usado de uno bloqueado entre la lectura y el alta.
func (s *AccountService) consumedOrLocked(ctx context.Context, rec domain.VerificationRecord) error {
	var current domain.VerificationRecord
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		current, err = s.codes.Latest(ctx, rec.Email)
		return err
	})
	if err == nil && current.ID == rec.ID && current.IsLocked {
		return ErrCodeLocked
	}
	return ErrCodeNotFound
}

// Login autentica con email y contraseña; solo cuentas verificadas abren sesion.
func (s *AccountService) Login(ctx context.Context, emailAddr, password string) (LoginResult, error) {
	if err := missingFields(
		field{"email", emailAddr},
		field{"password", password},
	); err != nil {
		return LoginResult{}, err
	}
	emailAddr = normalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return LoginResult{}, ErrInvalidEmail
	}

	var user domain.User
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByEmail(ctx, emailAddr)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Compare(password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return LoginResult{}, ErrEmailNotVerified
	}

	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue session: %w", err)
	}

	loginAt := s.now()
	err = s.withStore(ctx, func(ctx context.Context) error {
		return s.users.UpdateLastLogin(ctx, user.ID, loginAt)
	})
	if err != nil {
		s.logger.Warn("update last login failed", zap.Error(err), zap.String("user_id", user.ID))
	} else {
		user.LastLoginAt = &loginAt
	}

	return LoginResult{User: user, Tokens: tokens}, nil
}

// Logout revoca la sesion identificada por sessionID.
func (s *AccountService) Logout(ctx context.Context, sessionID string) error {
	if s.issuer == nil {
		return errors.New("credential issuer not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Issuer)
	defer cancel()
	return s.issuer.RevokeSession(ctx, sessionID)
}

// Refresh rota el refresh token y devuelve un par nuevo.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if err := missingFields(field{"refreshToken", refreshToken}); err != nil {
		return TokenPair{}, err
	}
	if s.issuer == nil {
		return TokenPair{}, errors.New("credential issuer not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Issuer)
	defer cancel()
	return s.issuer.RefreshPair(ctx, refreshToken)
}

func (s *AccountService) issueSession(ctx context.Context, user domain.User) (TokenPair, error) {
	if s.issuer == nil {
		return TokenPair{}, errors.New("credential issuer not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Issuer)
	defer cancel()
	return s.issuer.GeneratePair(ctx, user)
}

func (s *AccountService) withStore(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Store)
	defer cancel()
	return fn(ctx)
}
