package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) *Config {
	return &Config{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}

func TestForAttempts(t *testing.T) {
	assert.Equal(t, 2, ForAttempts(3, 0).MaxRetries)
	assert.Equal(t, 0, ForAttempts(0, 0).MaxRetries)
	cfg := ForAttempts(2, time.Minute)
	assert.Equal(t, time.Minute, cfg.MaxDelay)
}

func TestDoSuccessAfterRetries(t *testing.T) {
	var seen []int
	err := Do(context.Background(), fastConfig(3), func(attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return errors.New("transient error")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestDoMaxRetriesExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func(int) error {
		calls++
		return errors.New("always")
	})
	require.EqualError(t, err, "always")
	assert.Equal(t, 3, calls)
}

func TestDoWithResultKeepsLastResult(t *testing.T) {
	got, err := DoWithResult(context.Background(), fastConfig(1), func(attempt int) (int, error) {
		return attempt * 10, errors.New("no")
	})
	require.Error(t, err)
	assert.Equal(t, 20, got)
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	calls := 0
	err := Do(ctx, cfg, func(int) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

type flagged struct{ retryable bool }

func (f flagged) Error() string     { return "flagged" }
func (f flagged) IsRetryable() bool { return f.retryable }

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsRetryable(flagged{retryable: true}))
	assert.False(t, IsRetryable(flagged{retryable: false}))
	assert.False(t, IsRetryable(errors.New("password authentication failed")))
}

func TestDoIfRetryable(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func(int) error {
		calls++
		return errors.New("password authentication failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = DoIfRetryable(context.Background(), fastConfig(3), func(int) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
