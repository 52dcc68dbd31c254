package ratelimit

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, window time.Duration, maxCalls int64) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, window, maxCalls, slog.New(slog.NewTextHandler(os.Stderr, nil))), mr
}

func TestAllowWithinLimit(t *testing.T) {
	l, mr := newTestLimiter(t, time.Minute, 60)
	ctx := context.Background()

	for i := int64(1); i <= 60; i++ {
		d := l.Allow(ctx, "u1")
		if !d.Allowed {
			t.Fatalf("call %d rejected", i)
		}
		if d.Count != i || d.Remaining != 60-i {
			t.Fatalf("call %d: count=%d remaining=%d", i, d.Count, d.Remaining)
		}
	}

	d := l.Allow(ctx, "u1")
	if d.Allowed {
		t.Fatal("61st call allowed")
	}
	if secs := d.RetryAfterSeconds(); secs < 1 || secs > 60 {
		t.Errorf("RetryAfterSeconds = %d, want 1..60", secs)
	}
	if ttl := mr.TTL("rate_limit:u1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("key ttl = %v", ttl)
	}

	// Other callers are counted separately.
	if d := l.Allow(ctx, "u2"); !d.Allowed || d.Count != 1 {
		t.Errorf("u2 decision = %+v", d)
	}
}

func TestWindowResets(t *testing.T) {
	l, mr := newTestLimiter(t, time.Minute, 2)
	ctx := context.Background()

	l.Allow(ctx, "u1")
	l.Allow(ctx, "u1")
	if d := l.Allow(ctx, "u1"); d.Allowed {
		t.Fatal("3rd call allowed")
	}

	mr.FastForward(61 * time.Second)

	d := l.Allow(ctx, "u1")
	if !d.Allowed || d.Count != 1 {
		t.Fatalf("after window: %+v", d)
	}
}

func TestMissingExpiryIsRestored(t *testing.T) {
	l, mr := newTestLimiter(t, time.Minute, 5)
	if err := mr.Set("rate_limit:u1", "3"); err != nil {
		t.Fatal(err)
	}

	d := l.Allow(context.Background(), "u1")
	if !d.Allowed || d.Count != 4 {
		t.Fatalf("decision = %+v", d)
	}
	if ttl := mr.TTL("rate_limit:u1"); ttl <= 0 {
		t.Errorf("ttl = %v, want restored expiry", ttl)
	}
}

func TestFailOpen(t *testing.T) {
	l, mr := newTestLimiter(t, time.Minute, 1)
	mr.Close()

	for range 3 {
		if d := l.Allow(context.Background(), "u1"); !d.Allowed {
			t.Fatalf("call rejected while redis is down: %+v", d)
		}
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	for _, tc := range []struct {
		in   time.Duration
		want int64
	}{
		{0, 1},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1001 * time.Millisecond, 2},
		{59500 * time.Millisecond, 60},
	} {
		if got := (Decision{RetryAfter: tc.in}).RetryAfterSeconds(); got != tc.want {
			t.Errorf("RetryAfterSeconds(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
