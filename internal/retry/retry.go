// Package retry runs operations with bounded attempts and exponential backoff.
package retry

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0
}

// DefaultConfig returns 3 retries with 500ms initial delay, capped at 10s,
// doubling each time, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// ForAttempts returns a config that runs fn at most attempts times in total.
func ForAttempts(attempts int, initialDelay time.Duration) *Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = attempts - 1
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cfg.InitialDelay = initialDelay
	if cfg.MaxDelay < initialDelay {
		cfg.MaxDelay = initialDelay
	}
	return cfg
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// Do executes fn with exponential backoff retry logic. fn receives the 1-based
// attempt number. Returns nil on success, or the last error after all retries
// are exhausted. A cancelled context stops further attempts and returns ctx.Err().
func Do(ctx context.Context, cfg *Config, fn func(attempt int) error) error {
	_, err := DoWithResult(ctx, cfg, func(attempt int) (struct{}, error) {
		return struct{}{}, fn(attempt)
	})
	return err
}

// DoWithResult executes fn and returns both result and error. The result of the
// last failed attempt is kept.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func(attempt int) (T, error)) (T, error) {
	return run(ctx, cfg, fn, nil)
}

func run[T any](ctx context.Context, cfg *Config, fn func(attempt int) (T, error), permanent func(error) bool) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		r, err := fn(attempt + 1)
		if err == nil {
			return r, nil
		}
		lastErr = err
		result = r
		if permanent != nil && permanent(err) {
			return result, err
		}

		if attempt < cfg.MaxRetries && delay > 0 {
			timer := time.NewTimer(applyJitter(delay, cfg.JitterFactor))
			select {
			case <-timer.C:
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			}
		}
	}

	return result, lastErr
}

// RetryableError is an error that declares its own retryability.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryable reports whether err is transient. Errors implementing
// RetryableError decide for themselves; others are matched by message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if r, ok := err.(RetryableError); ok {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"timed out",
		"temporary failure",
		"too many connections",
		"i/o timeout",
		"network is unreachable",
		"the database system is starting up",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// DoIfRetryable retries only transient errors and returns permanent ones
// immediately.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func(attempt int) error) error {
	_, err := run(ctx, cfg, func(attempt int) (struct{}, error) {
		return struct{}{}, fn(attempt)
	}, func(err error) bool { return !IsRetryable(err) })
	return err
}
