package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const redisBreakerDuration = 30 * time.Second

// Manager prefers the shared Redis backend when one is configured and falls
// back to the in-memory limiter while Redis is failing.
type Manager struct {
	memory       *MemoryLimiter
	redis        *RedisLimiter
	nowFn        func() time.Time
	mu           sync.Mutex
	breakerUntil time.Time
}

// NewManager constructs a Manager. redisLimiter may be nil.
func NewManager(memory *MemoryLimiter, redisLimiter *RedisLimiter, nowFn func() time.Time) *Manager {
	if memory == nil {
		memory = NewMemoryLimiter(DefaultMaxRequests, DefaultWindow, nowFn)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Manager{memory: memory, redis: redisLimiter, nowFn: nowFn}
}

// Allow checks key against the best available backend.
func (m *Manager) Allow(ctx context.Context, key string) (Decision, error) {
	now := m.nowFn()
	if m.redis != nil && !m.isBreakerActive(now) {
		decision, err := m.redis.Allow(ctx, key)
		if err == nil {
			return decision, nil
		}
		m.tripBreaker(err, now)
	}
	return m.memory.Allow(ctx, key)
}

// Close releases the Redis client, if any.
func (m *Manager) Close() error {
	return m.redis.Close()
}

func (m *Manager) isBreakerActive(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if now.Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	slog.Warn("Rate limit redis unavailable, falling back to memory.", "error", err, "retryAt", m.breakerUntil)
}
