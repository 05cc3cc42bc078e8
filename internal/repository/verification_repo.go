package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"family-ledger/internal/domain"
)

// VerificationRepository persiste los codigos de verificacion por email.
type VerificationRepository interface {
	// Latest devuelve el registro mas reciente por created_at o pgx.ErrNoRows.
	Latest(ctx context.Context, email string) (domain.VerificationRecord, error)
	// Issue inserta rec solo si el cooldown respecto del ultimo registro vencio.
	// retryAfter > 0 significa que no se inserto nada.
	Issue(ctx context.Context, rec domain.VerificationRecord, cooldown time.Duration) (retryAfter int, err error)
	// IncrementAttempts suma un intento fallido y bloquea al llegar a maxAttempts.
	IncrementAttempts(ctx context.Context, id string, maxAttempts int) (count int, locked bool, err error)
	// Delete borra un registro suelto. La verificacion exitosa usa Provision.
	Delete(ctx context.Context, id string) error
	// Provision borra el registro (no bloqueado) y crea el usuario en una sola transaccion.
	Provision(ctx context.Context, recordID string, user domain.User) error
	PurgeStale(ctx context.Context, createdBefore time.Time) (int64, error)
}

// PgVerificationRepository implementa VerificationRepository usando pgxpool.
type PgVerificationRepository struct {
	pool *pgxpool.Pool
}

func NewPgVerificationRepository(pool *pgxpool.Pool) *PgVerificationRepository {
	return &PgVerificationRepository{pool: pool}
}

const verificationColumns = `id, email, code, created_at, expires_at, failed_attempts, is_locked`

func (r *PgVerificationRepository) Latest(ctx context.Context, email string) (domain.VerificationRecord, error) {
	query := `
		SELECT ` + verificationColumns + `
		FROM verification_codes
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanVerification(r.pool.QueryRow(ctx, query, email))
}

func (r *PgVerificationRepository) Issue(ctx context.Context, rec domain.VerificationRecord, cooldown time.Duration) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializa emisiones concurrentes del mismo email hasta el commit.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.Email); err != nil {
		return 0, fmt.Errorf("lock email: %w", err)
	}

	var lastCreated time.Time
	err = tx.QueryRow(ctx, `
		SELECT created_at
		FROM verification_codes
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, rec.Email).Scan(&lastCreated)
	switch {
	case err == nil:
		latest := &domain.VerificationRecord{CreatedAt: lastCreated}
		if wait := domain.RetryAfter(latest, rec.CreatedAt, cooldown); wait > 0 {
			return wait, nil
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return 0, fmt.Errorf("read latest: %w", err)
	}

	const insert = `
		INSERT INTO verification_codes (` + verificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(ctx, insert,
		rec.ID,
		rec.Email,
		rec.Code,
		rec.CreatedAt,
		rec.ExpiresAt,
		rec.FailedAttempts,
		rec.IsLocked,
	); err != nil {
		return 0, fmt.Errorf("insert verification: %w", err)
	}
	return 0, tx.Commit(ctx)
}

func (r *PgVerificationRepository) IncrementAttempts(ctx context.Context, id string, maxAttempts int) (int, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		count  int
		locked bool
	)
	err = tx.QueryRow(ctx, `
		UPDATE verification_codes
		SET failed_attempts = failed_attempts + 1,
			is_locked = (failed_attempts + 1) >= $2
		WHERE id = $1 AND is_locked = FALSE
		RETURNING failed_attempts, is_locked
	`, id, maxAttempts).Scan(&count, &locked)
	if errors.Is(err, pgx.ErrNoRows) {
		// Ya bloqueado por otro intento concurrente, o borrado.
		err = tx.QueryRow(ctx, `
			SELECT failed_attempts, is_locked FROM verification_codes WHERE id = $1
		`, id).Scan(&count, &locked)
	}
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return count, locked, nil
}

func (r *PgVerificationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM verification_codes WHERE id = $1`, id)
	return err
}

func (r *PgVerificationRepository) Provision(ctx context.Context, recordID string, user domain.User) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM verification_codes WHERE id = $1 AND is_locked = FALSE
	`, recordID)
	if err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	const insert = `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(ctx, insert,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.EmailVerified,
		user.LastLoginAt,
		user.CreatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PgVerificationRepository) PurgeStale(ctx context.Context, createdBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM verification_codes WHERE created_at < $1`, createdBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanVerification(row pgx.Row) (domain.VerificationRecord, error) {
	var v domain.VerificationRecord
	err := row.Scan(
		&v.ID,
		&v.Email,
		&v.Code,
		&v.CreatedAt,
		&v.ExpiresAt,
		&v.FailedAttempts,
		&v.IsLocked,
	)
	if err != nil {
		return domain.VerificationRecord{}, err
	}
	return v, nil
}
