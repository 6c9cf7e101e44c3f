package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"time"
)

// RetryConfig defines retry behavior for different types of operations
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	Jitter            bool          `json:"jitter"`
}

// Default retry configurations for different operation types
var DefaultRetryConfigs = map[string]RetryConfig{
	StageExport: {
		MaxAttempts:       3,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	},
	"store": {
		MaxAttempts:       5,
		InitialDelay:      50 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	},
}

// PermanentError marks an error that must not be retried.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so WithRetry gives up at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// WithRetry runs op until it succeeds, fails permanently, runs out of attempts
// or ctx is done. The last error is returned.
func WithRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	made := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		made = attempt
		if err = op(); err == nil {
			return nil
		}
		if !isRetryableError(err) || attempt == attempts {
			break
		}
		delay := nextDelay(cfg, attempt)
		slog.Debug("retrying operation", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	if made > 1 {
		return fmt.Errorf("after %d attempts: %w", made, err)
	}
	return err
}

// nextDelay calculates the backoff before attempt+1
func nextDelay(cfg RetryConfig, attempt int) time.Duration {
	mult := cfg.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && delay > 0 {
		// up to ±10%
		delay += time.Duration(float64(delay) * 0.2 * (rand.Float64() - 0.5))
	}
	return delay
}

// isRetryableError checks if an error is worth another attempt
func isRetryableError(err error) bool {
	var perm *PermanentError
	switch {
	case errors.As(err, &perm):
		return false
	case errors.Is(err, os.ErrPermission), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}
