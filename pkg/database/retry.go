package database

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBaseWait = 1 * time.Second
	retryJitterFraction  = 0.25
)

// retryBackoff returns 1s, 2s, 4s... for attempt 0, 1, 2 with ±25% jitter.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := defaultRetryBaseWait << attempt
	jitter := time.Duration(float64(base) * retryJitterFraction * (2*rand.Float64() - 1)) // #nosec G404 -- jitter only
	return base + jitter
}

// isConnectionError reports whether err looks like a transient connection
// problem rather than a SQL or protocol error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"dial tcp",
		"EOF",
		"connection timed out",
		"server closed the connection unexpectedly",
		"could not connect",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// withRetry calls fn up to defaultRetryAttempts times, sleeping with backoff
// between attempts while retryable(err) holds.
func withRetry(ctx context.Context, what string, logger *slog.Logger, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; attempt < defaultRetryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) || attempt == defaultRetryAttempts-1 {
			break
		}

		wait := retryBackoff(attempt)
		if logger != nil {
			logger.WarnContext(ctx, what+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", defaultRetryAttempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: context canceled during retry: %w", what, ctx.Err())
		case <-time.After(wait):
		}
	}
	return err
}

func always(error) bool { return true }
