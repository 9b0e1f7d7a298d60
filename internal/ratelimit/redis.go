package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments the counter, starts the window on the first hit and
// returns {count, ttl_ms} atomically.
var incrScript = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
if c == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {c, ttl}
`)

// RedisLimiter keeps counters in Redis so every process behind a load
// balancer shares one budget per identity. Every check increments, including
// rejected ones, so contention can only over-block.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	window time.Duration
	prefix string
	now    func() time.Time
}

// RedisOption configures a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) { l.prefix = strings.Trim(prefix, ":") }
}

// NewRedisLimiter creates a shared fixed-window limiter.
func NewRedisLimiter(rdb redis.UniversalClient, window time.Duration, opts ...RedisOption) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	l := &RedisLimiter{
		rdb:    rdb,
		window: window,
		prefix: "ratelimit:contact",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ Limiter = (*RedisLimiter)(nil)

func (l *RedisLimiter) key(identity string) string {
	return l.prefix + ":" + identity
}

// Check increments the identity's counter and reports whether it is within limit.
func (l *RedisLimiter) Check(ctx context.Context, identity string, limit int) (Result, error) {
	vals, err := incrScript.Run(ctx, l.rdb, []string{l.key(identity)}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis rate limit check: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("redis rate limit check: unexpected reply %v", vals)
	}
	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond

	res := Result{
		Limit:   limit,
		ResetAt: l.now().Add(ttl),
	}
	if count > limit {
		return res, nil
	}
	res.Allowed = true
	res.Remaining = limit - count
	return res, nil
}
