package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestLoginThrottleBlocksAfterBudget(t *testing.T) {
	limiter, _ := newLimiterTest(t, Config{MaxLoginFailures: 3, LoginWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.CheckLogin(ctx, "alice@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("CheckLogin attempt %d failed: %v", i, err)
		}
		if err := limiter.RecordLoginFailure(ctx, "alice@example.com", "10.0.0.1"); err != nil {
			t.Fatalf("RecordLoginFailure failed: %v", err)
		}
	}

	if err := limiter.CheckLogin(ctx, "alice@example.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := limiter.CheckLogin(ctx, "bob@example.com", "10.0.0.1"); err != nil {
		t.Fatalf("other identifier should not be limited without IP throttle: %v", err)
	}
}

func TestLoginThrottleIdentifierIsNormalized(t *testing.T) {
	limiter, _ := newLimiterTest(t, Config{MaxLoginFailures: 1, LoginWindow: time.Minute})
	ctx := context.Background()

	if err := limiter.RecordLoginFailure(ctx, " Alice@Example.com", ""); err != nil {
		t.Fatalf("RecordLoginFailure failed: %v", err)
	}
	if err := limiter.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestLoginThrottleIPBudget(t *testing.T) {
	limiter, _ := newLimiterTest(t, Config{EnableIPThrottle: true, MaxLoginFailures: 2, LoginWindow: time.Minute})
	ctx := context.Background()

	_ = limiter.RecordLoginFailure(ctx, "a", "10.0.0.9")
	_ = limiter.RecordLoginFailure(ctx, "b", "10.0.0.9")

	if err := limiter.CheckLogin(ctx, "c", "10.0.0.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP to be limited, got %v", err)
	}
}

func TestLoginThrottleWindowExpires(t *testing.T) {
	limiter, mr := newLimiterTest(t, Config{MaxLoginFailures: 1, LoginWindow: time.Minute})
	ctx := context.Background()

	_ = limiter.RecordLoginFailure(ctx, "alice", "")
	mr.FastForward(time.Minute + time.Second)

	if err := limiter.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("expected window to reset, got %v", err)
	}
}

func TestResetLoginClearsCounter(t *testing.T) {
	limiter, _ := newLimiterTest(t, Config{MaxLoginFailures: 5, LoginWindow: time.Minute})
	ctx := context.Background()

	_ = limiter.RecordLoginFailure(ctx, "alice", "")
	_ = limiter.RecordLoginFailure(ctx, "alice", "")
	n, err := limiter.LoginFailures(ctx, "alice")
	if err != nil || n != 2 {
		t.Fatalf("LoginFailures = %d, %v", n, err)
	}

	if err := limiter.ResetLogin(ctx, "alice"); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	n, _ = limiter.LoginFailures(ctx, "alice")
	if n != 0 {
		t.Fatalf("expected zero failures after reset, got %d", n)
	}
}

func TestLimiterBackendDown(t *testing.T) {
	limiter, mr := newLimiterTest(t, Config{})
	mr.Close()

	if err := limiter.CheckLogin(context.Background(), "alice", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
