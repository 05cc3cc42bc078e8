package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestRedisThrottleAllow(t *testing.T) {
	ctx := context.Background()

	t.Run("nil receiver fail-open", func(t *testing.T) {
		var l *redisThrottle
		if !l.Allow(ctx, "10.0.0.1") {
			t.Fatalf("expected fail-open for nil throttle")
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		l := &redisThrottle{
			client: &mockRedisEvaler{result: 1},
			window: time.Minute,
			max:    3,
			prefix: "register:ip:",
		}
		if l.Allow(ctx, "   ") {
			t.Fatalf("expected empty key to be rejected")
		}
	})

	t.Run("allow when count within max", func(t *testing.T) {
		mock := &mockRedisEvaler{result: 2}
		l := &redisThrottle{
			client: mock,
			window: 2 * time.Minute,
			max:    3,
			prefix: "register:ip:",
		}
		if !l.Allow(ctx, " 10.0.0.1 ") {
			t.Fatalf("expected allow when count <= max")
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "register:ip:10.0.0.1" {
			t.Fatalf("unexpected key normalization, got %+v", mock.lastKeys)
		}
		if len(mock.lastArgs) != 1 || mock.lastArgs[0] != 120 {
			t.Fatalf("expected TTL seconds=120, got %+v", mock.lastArgs)
		}
		if mock.lastScript != redisThrottleScript {
			t.Fatalf("expected script to match")
		}
	})

	t.Run("deny when count exceeds max", func(t *testing.T) {
		l := &redisThrottle{
			client: &mockRedisEvaler{result: 4},
			window: time.Minute,
			max:    3,
			prefix: "register:ip:",
		}
		if l.Allow(ctx, "10.0.0.1") {
			t.Fatalf("expected deny when count > max")
		}
	})

	t.Run("redis error fail-open", func(t *testing.T) {
		l := &redisThrottle{
			client: &mockRedisEvaler{err: errors.New("redis down")},
			window: time.Minute,
			max:    3,
			prefix: "register:ip:",
		}
		if !l.Allow(ctx, "10.0.0.1") {
			t.Fatalf("expected fail-open on redis errors")
		}
	})
}

func TestRedisThrottleMiniredis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisThrottle(client, "register:ip:", time.Minute, 2)
	if !l.Allow(ctx, "10.0.0.1") || !l.Allow(ctx, "10.0.0.1") {
		t.Fatalf("expected first two requests allowed")
	}
	if l.Allow(ctx, "10.0.0.1") {
		t.Fatalf("expected third request denied")
	}
	if !l.Allow(ctx, "10.0.0.2") {
		t.Fatalf("expected other keys unaffected")
	}

	mr.FastForward(61 * time.Second)
	if !l.Allow(ctx, "10.0.0.1") {
		t.Fatalf("expected allow after window expiry")
	}
	if l.Window() != time.Minute {
		t.Fatalf("unexpected window %v", l.Window())
	}
}

func TestMemoryThrottleSlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryThrottle(time.Minute, 2).(*memoryThrottle)
	l.now = func() time.Time { return now }

	if !l.Allow(ctx, "k") || !l.Allow(ctx, "k") {
		t.Fatalf("expected first two allowed")
	}
	if l.Allow(ctx, "k") {
		t.Fatalf("expected third denied")
	}
	if l.Allow(ctx, "") {
		t.Fatalf("expected empty key denied")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow(ctx, "k") {
		t.Fatalf("expected allow after window slides")
	}
}
