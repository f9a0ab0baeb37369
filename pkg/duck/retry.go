package duck

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	maxRetries        = 8
	initialRetryDelay = 50 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
	retryDelayFactor  = 2.0
)

// retryWithBackoff retries fn on DuckLake transaction conflicts with
// exponential backoff. Concurrent writers to the same catalog conflict at
// commit time rather than blocking, so the loser retries. Any other error
// returns immediately.
func retryWithBackoff(ctx context.Context, log *slog.Logger, label string, fn func() error) error {
	delay := initialRetryDelay
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransactionConflictError(lastErr) {
			return lastErr
		}
		if attempt == maxRetries {
			break
		}

		log.Debug("retrying after transaction conflict",
			"operation", label,
			"attempt", attempt,
			"delay", delay.String(),
			"error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled while retrying %s: %w", label, ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * retryDelayFactor)
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", label, maxRetries, lastErr)
}

func isTransactionConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "transaction conflict") ||
		strings.Contains(msg, "Failed to commit DuckLake transaction")
}
