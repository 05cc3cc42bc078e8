package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"family-ledger/internal/domain"
)

// MemoryStore implementa UserRepository y VerificationRepository en memoria.
// Un unico mutex da a Issue, IncrementAttempts y Provision la misma atomicidad
// que las transacciones de Postgres. Pensado para desarrollo local y tests.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]domain.User
	usersByEmail  map[string]string
	verifications map[string]domain.VerificationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		usersByEmail:  make(map[string]string),
		verifications: make(map[string]domain.VerificationRecord),
	}
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return s.users[id], nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (s *MemoryStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.LastLoginAt = &at
	s.users[id] = user
	return nil
}

// CreateUser agrega una cuenta directamente; util para preparar escenarios.
func (s *MemoryStore) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUserLocked(user)
}

func (s *MemoryStore) insertUserLocked(user domain.User) error {
	if _, exists := s.usersByEmail[user.Email]; exists {
		return ErrEmailTaken
	}
	s.users[user.ID] = user
	s.usersByEmail[user.Email] = user.ID
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, email string) (domain.VerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest, ok := s.latestLocked(email)
	if !ok {
		return domain.VerificationRecord{}, pgx.ErrNoRows
	}
	return latest, nil
}

func (s *MemoryStore) latestLocked(email string) (domain.VerificationRecord, bool) {
	var (
		latest domain.VerificationRecord
		found  bool
	)
	for _, rec := range s.verifications {
		if rec.Email != email {
			continue
		}
		if !found || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
			found = true
		}
	}
	return latest, found
}

func (s *MemoryStore) Issue(_ context.Context, rec domain.VerificationRecord, cooldown time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if latest, ok := s.latestLocked(rec.Email); ok {
		if wait := domain.RetryAfter(&latest, rec.CreatedAt, cooldown); wait > 0 {
			return wait, nil
		}
	}
	s.verifications[rec.ID] = rec
	return 0, nil
}

func (s *MemoryStore) IncrementAttempts(_ context.Context, id string, maxAttempts int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.verifications[id]
	if !ok {
		return 0, false, pgx.ErrNoRows
	}
	if rec.IsLocked {
		return rec.FailedAttempts, true, nil
	}
	rec.FailedAttempts++
	rec.IsLocked = rec.FailedAttempts >= maxAttempts
	s.verifications[id] = rec
	return rec.FailedAttempts, rec.IsLocked, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.verifications, id)
	return nil
}

func (s *MemoryStore) Provision(_ context.Context, recordID string, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.verifications[recordID]
	if !ok || rec.IsLocked {
		return pgx.ErrNoRows
	}
	if err := s.insertUserLocked(user); err != nil {
		return err
	}
	delete(s.verifications, recordID)
	return nil
}

func (s *MemoryStore) PurgeStale(_ context.Context, createdBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.verifications {
		if rec.CreatedAt.Before(createdBefore) {
			delete(s.verifications, id)
			n++
		}
	}
	return n, nil
}

// Verifications devuelve una copia de los registros de un email, sin orden.
func (s *MemoryStore) Verifications(email string) []domain.VerificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.VerificationRecord
	for _, rec := range s.verifications {
		if rec.Email == email {
			out = append(out, rec)
		}
	}
	return out
}
