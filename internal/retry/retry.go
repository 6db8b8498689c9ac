package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/hashibuto/MiGreat/internal/common"
)

// Config holds the retry policy for connection acquisition. The backoff is a
// fixed interval, not exponential: migrations usually wait on a database that
// is still starting, where hammering less often buys nothing.
type Config struct {
	MaxRetries int           // retries after the initial attempt
	Interval   time.Duration // fixed sleep between attempts
}

// Operation is a single attempt of the retried action.
type Operation func() error

// Do executes op up to MaxRetries+1 times, sleeping Interval between attempts.
// Context cancellation during a sleep aborts immediately. The last error is
// returned once attempts are exhausted.
func Do(ctx context.Context, cfg Config, op Operation) error {
	logger := common.GetLogger().WithComponent("retry")

	var lastErr error
	attempts := cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op()
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		logger.Info("operation failed, waiting before retrying",
			"error", err,
			"attempt", attempt,
			"max_attempts", attempts,
			"interval", cfg.Interval)

		select {
		case <-ctx.Done():
			return fmt.Errorf("aborted during retry wait: %w", ctx.Err())
		case <-time.After(cfg.Interval):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
