package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	return srv, redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestFixedWindowLimiterEnforcesQuota(t *testing.T) {
	_, client := newTestClient(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow("203.0.113.9") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("203.0.113.9") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("203.0.113.9") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow("198.51.100.4") {
		t.Fatalf("other keys have their own quota")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	srv, client := newTestClient(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	srv.Close()
	if limiter.Allow("203.0.113.9") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterValidatesArgs(t *testing.T) {
	_, client := newTestClient(t)
	if _, err := NewFixedWindowLimiter(client, "p", 0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := NewFixedWindowLimiter(nil, "p", 1, time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
