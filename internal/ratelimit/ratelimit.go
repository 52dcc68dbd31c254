// Package ratelimit enforces a fixed-window call limit per caller using a
// Redis counter. A window starts at a caller's first call and resets when
// its key expires.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "rate_limit:"
	opTimeout = 2 * time.Second
)

// windowScript increments the caller's counter, starting the window on the
// first increment. A key that somehow lost its expiry gets it back so a
// caller can never be locked out permanently.
var windowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Decision is the outcome of one Allow check.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

// RetryAfterSeconds is RetryAfter rounded up to whole seconds, at least 1.
func (d Decision) RetryAfterSeconds() int64 {
	secs := int64((d.RetryAfter + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// Limiter allows at most Max calls per caller per Window.
type Limiter struct {
	client redis.Scripter
	window time.Duration
	max    int64
	logger *slog.Logger
}

func New(client redis.Scripter, window time.Duration, maxCalls int64, logger *slog.Logger) *Limiter {
	return &Limiter{client: client, window: window, max: maxCalls, logger: logger}
}

// Allow counts one call for callerID. When Redis is unavailable the call is
// allowed and the failure logged.
func (l *Limiter) Allow(ctx context.Context, callerID string) Decision {
	if callerID == "" {
		callerID = "anonymous"
	}
	count, ttl, err := l.incr(ctx, keyPrefix+callerID)
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing call", "caller", callerID, "err", err)
		return Decision{Allowed: true, Remaining: l.max}
	}
	if count > l.max {
		return Decision{Allowed: false, Count: count, RetryAfter: ttl}
	}
	return Decision{Allowed: true, Count: count, Remaining: l.max - count, RetryAfter: ttl}
}

func (l *Limiter) incr(ctx context.Context, key string) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := windowScript.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script reply %v", res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}
