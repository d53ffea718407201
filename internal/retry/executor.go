package retry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jrh3k5/walletops/internal/metrics"
)

// Executor runs operations under a retry Policy. It is safe for concurrent use.
type Executor struct {
	policy Policy
}

// NewExecutor builds an Executor for the given policy.
func NewExecutor(policy Policy) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	return &Executor{policy: policy}, nil
}

// Policy returns the policy the executor was built with.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do invokes op until it succeeds or the executor's policy runs out of
// attempts. The first attempt runs immediately; each failure is followed by a
// backoff delay. The attempt number passed to op is 1-based.
//
// Every failure is retried. If ctx ends while waiting, Do returns the
// context's error wrapped with the last failure.
func Do[T any](
	ctx context.Context,
	e *Executor,
	label string,
	op func(ctx context.Context, attempt int) (T, error),
) (T, error) {
	var zero T
	var lastErr error

	maxAttempts := e.policy.MaxAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		retryable := IsRetryable(err)
		metrics.RetryAttemptsFailed.WithLabelValues(strconv.FormatBool(retryable)).Inc()

		if attempt == maxAttempts {
			break
		}

		delay := e.policy.Delay(attempt)
		slog.WarnContext(
			ctx,
			fmt.Sprintf("Attempt %d/%d of %s failed; retrying in %s", attempt, maxAttempts, label, delay),
			"error", err,
			"retryable", retryable,
		)

		if err := Sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s interrupted after attempt %d: %w (last error: %w)", label, attempt, err, lastErr)
		}
	}

	slog.WarnContext(
		ctx,
		fmt.Sprintf("Attempt %d/%d of %s failed; giving up", maxAttempts, maxAttempts, label),
		"error", lastErr,
	)
	metrics.RetryExhausted.Inc()

	return zero, &ExhaustedError{
		Err:         lastErr,
		Attempts:    maxAttempts,
		MaxAttempts: maxAttempts,
		Label:       label,
	}
}

// Sleep pauses for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
