// Package resilience holds the retry and circuit-breaker policies shared by
// the build tasks and the notifiers.
package resilience

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 20ms)
	MaxInterval         time.Duration // Maximum retry interval (default 200ms)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 1s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the retry policy for source file reads. Editors
// that save by rename leave a file missing for a few milliseconds, so the
// windows are short.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     20 * time.Millisecond,
		MaxInterval:         200 * time.Millisecond,
		MaxElapsedTime:      time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (c RetryConfig) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = c.MaxElapsedTime
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = c.RandomizationFactor
	return backoff.WithContext(b, ctx)
}

// Retry runs op until it succeeds, returns a permanent error, the policy gives
// up, or ctx is cancelled. Errors wrapped with backoff.Permanent stop at once.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return op()
	}
	return backoff.Retry(operation, cfg.policy(ctx))
}

// ReadFile reads path, retrying while it is transiently missing or locked.
// Permission errors are returned immediately.
func ReadFile(ctx context.Context, cfg RetryConfig, path string) ([]byte, error) {
	var data []byte
	err := Retry(ctx, cfg, func() error {
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				return backoff.Permanent(err)
			}
			return err
		}
		data = b
		return nil
	})
	return data, err
}

// CircuitBreakerRegistry manages named circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   zerolog.Logger
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry(logger zerolog.Logger) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for name, creating it on first use.
func (r *CircuitBreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,                // One probe in half-open state
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before probing
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is not a failure of the protected call
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[name] = cb
	return cb
}
