package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore guarda las sesiones activas (jti del refresh token) y permite revocarlas.
type SessionStore interface {
	Store(ctx context.Context, sessionID, userID string, ttl time.Duration) error
	Exists(ctx context.Context, sessionID string) (bool, error)
	Revoke(ctx context.Context, sessionID string) error
}

const defaultSessionTTL = 30 * 24 * time.Hour

type memorySessionStore struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		items: make(map[string]time.Time),
	}
}

func (s *memorySessionStore) Store(_ context.Context, sessionID, _ string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	s.items[sessionID] = time.Now().UTC().Add(ttl)
	return nil
}

func (s *memorySessionStore) Exists(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.items[sessionID]
	if !ok {
		return false, nil
	}
	if time.Now().UTC().After(exp) {
		delete(s.items, sessionID)
		return false, nil
	}
	return true, nil
}

func (s *memorySessionStore) Revoke(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sessionID)
	return nil
}

type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisSessionStore struct {
	client  redisKV
	prefix  string
	timeout time.Duration
}

func NewRedisSessionStore(client *redis.Client) SessionStore {
	if client == nil {
		return nil
	}
	return &redisSessionStore{
		client:  client,
		prefix:  "auth:session:",
		timeout: 500 * time.Millisecond,
	}
}

func (s *redisSessionStore) Store(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+sessionID, userID, ttl).Err()
}

func (s *redisSessionStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.client.Exists(ctx, s.prefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisSessionStore) Revoke(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Del(ctx, s.prefix+sessionID).Err()
}
