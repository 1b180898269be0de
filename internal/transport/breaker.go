package transport

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/sony/gobreaker/v2"

	"aircx/internal/results"
	"aircx/internal/types"
)

// RetryPolicy configures the retry behavior of a BreakerCommander.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the defaults for command delivery.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    200 * time.Millisecond,
		MaxWait:    2 * time.Second,
	}
}

// BreakerCommander wraps a Commander with a circuit breaker and bounded
// retries. While the breaker is open, commands fail fast with
// ErrCodeUpstreamCommand and the diagnostic keeps running.
type BreakerCommander struct {
	next        results.Commander
	breaker     *gobreaker.CircuitBreaker[struct{}]
	retryPolicy RetryPolicy
	sleepFn     func(context.Context, time.Duration) error
}

// Compile-time assertion that BreakerCommander implements results.Commander.
var _ results.Commander = (*BreakerCommander)(nil)

// BreakerOption is a functional option for configuring a BreakerCommander.
type BreakerOption func(*BreakerCommander)

// WithSleepFunc overrides the wait between retries.
// This is intended for testing to avoid real delays.
func WithSleepFunc(fn func(context.Context, time.Duration) error) BreakerOption {
	return func(c *BreakerCommander) { c.sleepFn = fn }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[struct{}]) BreakerOption {
	return func(c *BreakerCommander) { c.breaker = cb }
}

// NewBreakerCommander wraps next. The breaker trips after more than five
// consecutive failures and probes again after 30 seconds.
func NewBreakerCommander(name string, next results.Commander, policy RetryPolicy, opts ...BreakerOption) *BreakerCommander {
	c := &BreakerCommander{
		next: next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			IsSuccessful: func(err error) bool {
				// A cancelled run is not the gateway's fault.
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
		retryPolicy: policy,
		sleepFn:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the breaker state, for health reporting.
func (c *BreakerCommander) State() gobreaker.State {
	return c.breaker.State()
}

// Send implements results.Commander.
func (c *BreakerCommander) Send(ctx context.Context, msg types.CommandMessage) error {
	var lastErr error
	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err := c.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, c.next.Send(ctx, msg)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return types.NewAppError(types.ErrCodeUpstreamCommand,
				"circuit breaker is open; command gateway unavailable", err).
				WithDetails(map[string]any{"breaker": c.breaker.Name()})
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < maxAttempts-1 {
			if err := c.sleepFn(ctx, c.backoff(attempt)); err != nil {
				return err
			}
		}
	}
	return types.NewAppError(types.ErrCodeUpstreamCommand, "command delivery failed after retries", lastErr).
		WithDetails(map[string]any{"breaker": c.breaker.Name(), "attempts": maxAttempts})
}

// backoff is exponential with jitter, clamped to [MinWait, MaxWait].
func (c *BreakerCommander) backoff(attempt int) time.Duration {
	base := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	if maxWait := float64(c.retryPolicy.MaxWait); base > maxWait {
		base = maxWait
	}
	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
