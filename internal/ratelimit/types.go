package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultMaxRequests   = 10
	DefaultWindow        = 60 * time.Second
	DefaultSweepInterval = 5 * time.Minute
)

// Decision describes the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// RetryAfter is how long a rejected client should wait; zero when allowed.
	RetryAfter time.Duration
}

// Limiter admits or rejects requests per client key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// retryAfter rounds the wait up to whole seconds, never below one second.
func retryAfter(now, resetAt time.Time) time.Duration {
	wait := resetAt.Sub(now)
	if wait <= time.Second {
		return time.Second
	}
	secs := (wait + time.Second - 1) / time.Second
	return secs * time.Second
}
