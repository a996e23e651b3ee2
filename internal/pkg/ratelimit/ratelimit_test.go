package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestAllow_WithinBurst(t *testing.T) {
	rdb := newMiniRedis(t)
	limiter := NewRedisLimiter(rdb, "test:ratelimit:burst:", 1, 3)

	for i := 0; i < 3; i++ {
		ok, _, err := limiter.Allow(context.Background(), "1.2.3.4")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d within burst must pass", i)
		}
	}
}

func TestAllow_RejectsWhenExhausted(t *testing.T) {
	rdb := newMiniRedis(t)
	limiter := NewRedisLimiter(rdb, "test:ratelimit:exhausted:", 1, 2)

	for i := 0; i < 2; i++ {
		if ok, _, err := limiter.Allow(context.Background(), "1.2.3.4"); err != nil || !ok {
			t.Fatalf("warmup %d: ok=%v err=%v", i, ok, err)
		}
	}

	ok, wait, err := limiter.Allow(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatalf("expected rejection after burst exhausted")
	}
	if wait <= 0 {
		t.Fatalf("expected a positive wait hint, got %v", wait)
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	rdb := newMiniRedis(t)
	limiter := NewRedisLimiter(rdb, "test:ratelimit:keys:", 1, 1)

	if ok, _, _ := limiter.Allow(context.Background(), "1.1.1.1"); !ok {
		t.Fatalf("first ip must pass")
	}
	if ok, _, _ := limiter.Allow(context.Background(), "1.1.1.1"); ok {
		t.Fatalf("first ip must be limited")
	}
	if ok, _, _ := limiter.Allow(context.Background(), "2.2.2.2"); !ok {
		t.Fatalf("second ip must not share the bucket")
	}
}

func TestAllow_DisabledLimiterPassesAll(t *testing.T) {
	rdb := newMiniRedis(t)
	limiter := NewRedisLimiter(rdb, "test:ratelimit:disabled:", 0, 0)

	for i := 0; i < 50; i++ {
		ok, _, err := limiter.Allow(context.Background(), "1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("disabled limiter must pass all: ok=%v err=%v", ok, err)
		}
	}
}
