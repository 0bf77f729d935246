package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter implements a per-client fixed window that restarts on the
// first request after it expires. It is the default, process-local backend.
type MemoryLimiter struct {
	mu          sync.Mutex
	entries     map[string]*memoryEntry
	maxRequests int
	window      time.Duration
	nowFn       func() time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter. Non-positive settings fall back
// to the defaults and a nil nowFn uses time.Now.
func NewMemoryLimiter(maxRequests int, window time.Duration, nowFn func() time.Time) *MemoryLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemoryLimiter{
		entries:     make(map[string]*memoryEntry),
		maxRequests: maxRequests,
		window:      window,
		nowFn:       nowFn,
	}
}

// Allow checks and, when admitted, counts one request for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[key]
	if entry == nil {
		entry = &memoryEntry{resetAt: now.Add(l.window)}
		l.entries[key] = entry
	}
	if now.After(entry.resetAt) {
		entry.count = 0
		entry.resetAt = now.Add(l.window)
	}
	if entry.count >= l.maxRequests {
		return Decision{
			Allowed:    false,
			ResetAt:    entry.resetAt,
			RetryAfter: retryAfter(now, entry.resetAt),
		}, nil
	}
	entry.count++
	return Decision{
		Allowed:   true,
		Remaining: l.maxRequests - entry.count,
		ResetAt:   entry.resetAt,
	}, nil
}

// Sweep deletes every entry whose window has already expired and returns how
// many were removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, entry := range l.entries {
		if now.After(entry.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *MemoryLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				slog.Debug("Swept expired rate limit entries.", "removed", removed, "remaining", l.Len())
			}
		}
	}
}
