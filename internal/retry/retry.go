// Package retry reruns operations that failed for transient reasons, with
// exponential backoff and jitter.
//
// Schedule with the defaults: 0, 100ms, 200ms, 400ms (plus up to 30% jitter).
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mrlokans/lending/internal/lending"
)

const (
	defaultMaxAttempts  = 4
	defaultBaseDelay    = 100 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	ErrInvalidMaxAttempts  = errors.New("max attempts must be positive")
	ErrNegativeBaseDelay   = errors.New("base delay must not be negative")
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

type Func func(ctx context.Context) error

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	retryable    func(error) bool
	name         string
}

type Option func(*config) error

// Do runs fn until it succeeds, fails with a non-retryable error, or runs out
// of attempts. The last error is returned.
func Do(ctx context.Context, fn Func, opts ...Option) error {
	cfg := &config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
		retryable:    lending.IsRetryable,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // jitter only
			delay += time.Duration(jitter)

			log.Debug().
				Str("operation", cfg.name).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !cfg.retryable(lastErr) {
			return lastErr
		}
	}

	log.Warn().Str("operation", cfg.name).Int("attempts", cfg.maxAttempts).Err(lastErr).Msg("Giving up after retries")
	return lastErr
}

func WithMaxAttempts(attempts int) Option {
	return func(c *config) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = attempts
		return nil
	}
}

// WithBaseDelay sets the first backoff; later ones double.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *config) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = delay
		return nil
	}
}

func WithJitterFactor(factor float64) Option {
	return func(c *config) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = factor
		return nil
	}
}

// WithRetryable replaces the predicate deciding which errors are retried.
func WithRetryable(fn func(error) bool) Option {
	return func(c *config) error {
		if fn != nil {
			c.retryable = fn
		}
		return nil
	}
}

// WithName labels log lines.
func WithName(name string) Option {
	return func(c *config) error {
		c.name = name
		return nil
	}
}
