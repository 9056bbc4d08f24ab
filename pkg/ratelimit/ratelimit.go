package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a permit could not be acquired within the maximum wait.
var ErrRateLimited = errors.New("rate limited")

const (
	// DefaultRequestsPerSecond matches the Upbit per-second request allowance.
	DefaultRequestsPerSecond = 10
	// DefaultMaxWait bounds how long a caller blocks for a permit.
	DefaultMaxWait = 2 * time.Second
)

// RateLimiter wraps golang.org/x/time/rate.Limiter with a bounded wait
type RateLimiter struct {
	limiter *rate.Limiter
	maxWait time.Duration
}

// NewRateLimiter creates a new rate limiter with the specified requests per second
func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	return NewRateLimiterWithWait(requestsPerSecond, requestsPerSecond, DefaultMaxWait)
}

// NewRateLimiterWithWait creates a limiter refilling at requestsPerSecond with the given burst.
// A non-positive maxWait means callers wait until their context is done.
func NewRateLimiterWithWait(requestsPerSecond, burst int, maxWait time.Duration) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = requestsPerSecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		maxWait: maxWait,
	}
}

// Allow checks if a request can proceed without blocking
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// Acquire blocks until a permit is available, the maximum wait elapses, or ctx is done.
// Exceeding the maximum wait yields ErrRateLimited; the permit is not consumed in that case.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	if rl.maxWait <= 0 {
		return rl.limiter.Wait(ctx)
	}

	waitCtx, cancel := context.WithTimeout(ctx, rl.maxWait)
	defer cancel()

	if err := rl.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: no permit within %s", ErrRateLimited, rl.maxWait)
	}
	return nil
}
