package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript rejects without incrementing once the window is full, so the
// stored count never exceeds the limit.
var admitScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= limit then
  return {0, current, redis.call("PTTL", KEYS[1])}
end
current = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  ttl = tonumber(ARGV[2])
end
return {1, current, ttl}
`)

// RedisLimiter shares the window across instances. Expired windows are
// dropped by Redis key expiry, so no sweeper is needed.
type RedisLimiter struct {
	client      *redis.Client
	prefix      string
	maxRequests int
	window      time.Duration
	nowFn       func() time.Time
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string, maxRequests int, window time.Duration) *RedisLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{
		client:      client,
		prefix:      strings.TrimSpace(prefix),
		maxRequests: maxRequests,
		window:      window,
		nowFn:       time.Now,
	}
}

// Allow runs the admission script for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil || l.client == nil {
		return Decision{}, errors.New("rate limit redis: client not configured")
	}
	now := l.nowFn()
	vals, err := admitScript.Run(ctx, l.client, []string{l.buildKey(key)}, l.maxRequests, l.window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("rate limit redis: unexpected reply length %d", len(vals))
	}
	allowed, okAllowed := vals[0].(int64)
	count, okCount := vals[1].(int64)
	ttlMillis, okTTL := vals[2].(int64)
	if !okAllowed || !okCount || !okTTL {
		return Decision{}, errors.New("rate limit redis: unexpected response type")
	}
	if ttlMillis < 0 {
		ttlMillis = l.window.Milliseconds()
	}
	resetAt := now.Add(time.Duration(ttlMillis) * time.Millisecond)
	if allowed == 0 {
		return Decision{Allowed: false, ResetAt: resetAt, RetryAfter: retryAfter(now, resetAt)}, nil
	}
	remaining := l.maxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: resetAt}, nil
}

// Close releases the underlying client.
func (l *RedisLimiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

func (l *RedisLimiter) buildKey(key string) string {
	if l.prefix == "" {
		return key
	}
	return l.prefix + ":" + key
}
