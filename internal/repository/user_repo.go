package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"family-ledger/internal/domain"
)

// ErrEmailTaken indica que ya existe una cuenta con ese email.
var ErrEmailTaken = errors.New("email already taken")

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `id, email, name, password_hash, email_verified, last_login_at, created_at`

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_login_at = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.EmailVerified,
		&u.LastLoginAt,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}
