package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiplier: 2}
}

func TestWithRetrySucceedsEventually(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry(3), func() error {
		calls++
		return errors.New("busy")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestWithRetryPermanent(t *testing.T) {
	cause := errors.New("bad input")
	calls := 0
	err := WithRetry(context.Background(), fastRetry(5), func() error {
		calls++
		return Permanent(cause)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, cause, err)
	assert.Nil(t, Permanent(nil))
}

func TestWithRetryStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		calls++
		cancel()
		return errors.New("busy")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNextDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffMultiplier: 2}
	assert.Equal(t, 100*time.Millisecond, nextDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, nextDelay(cfg, 2))
	assert.Equal(t, 300*time.Millisecond, nextDelay(cfg, 3))

	cfg.Jitter = true
	for i := 0; i < 20; i++ {
		d := nextDelay(cfg, 1)
		assert.InDelta(t, float64(100*time.Millisecond), float64(d), float64(10*time.Millisecond))
	}
}
