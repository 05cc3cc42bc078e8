package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

// RequestThrottle limita la cantidad de solicitudes por clave dentro de una ventana.
type RequestThrottle interface {
	Allow(ctx context.Context, key string) bool
	Window() time.Duration
}

type memoryThrottle struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewMemoryThrottle crea un throttle de ventana deslizante en memoria.
func NewMemoryThrottle(window time.Duration, max int) RequestThrottle {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryThrottle{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *memoryThrottle) Window() time.Duration {
	return l.window
}

func (l *memoryThrottle) Allow(_ context.Context, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return true
}
