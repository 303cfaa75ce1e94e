package backoff

import (
	"context"
	"fmt"
)

// RetryResult holds the outcome of a retried operation.
type RetryResult[T any] struct {
	// Value is the successful result value.
	Value T
	// Attempts is the number of attempts made (1-indexed).
	Attempts int
	// LastError is the last error encountered, if any.
	LastError error
}

// RetryWithBackoff runs fn up to maxAttempts times, sleeping per policy
// between failures. fn receives the 1-indexed attempt number. The returned
// error wraps the last failure once attempts are exhausted; context
// cancellation between attempts is returned as-is.
func RetryWithBackoff[T any](
	ctx context.Context,
	policy BackoffPolicy,
	maxAttempts int,
	fn func(attempt int) (T, error),
) (RetryResult[T], error) {
	return RetryWithBackoffIf(ctx, policy, maxAttempts, nil, fn)
}

// RetryWithBackoffIf is RetryWithBackoff with a retry predicate: when
// retryable returns false for an error, the error is returned immediately
// without further attempts. A nil predicate retries everything. This is
// how business errors (a tool server's own error object) punch through a
// transport-retry loop untouched.
func RetryWithBackoffIf[T any](
	ctx context.Context,
	policy BackoffPolicy,
	maxAttempts int,
	retryable func(error) bool,
	fn func(attempt int) (T, error),
) (RetryResult[T], error) {
	var result RetryResult[T]
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.LastError = lastErr
			return result, err
		}

		value, err := fn(attempt)
		if err == nil {
			result.Value = value
			return result, nil
		}

		lastErr = err
		result.LastError = err

		if retryable != nil && !retryable(err) {
			return result, err
		}

		if attempt < maxAttempts {
			if err := SleepWithBackoff(ctx, policy, attempt); err != nil {
				return result, err
			}
		}
	}

	return result, fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}
