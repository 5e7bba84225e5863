package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config defines bounded exponential backoff for transient failures.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Default covers storage contention and flaky backend calls: three
// attempts, 50ms base, doubling.
func Default() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
	}
}

// Do runs operation until it succeeds, a permanent failure is reported,
// attempts run out, or the context is cancelled. The shouldRetry
// predicate decides which errors are worth another attempt.
func Do(ctx context.Context, cfg Config, shouldRetry func(error) bool, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err
		if !shouldRetry(err) {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
