package oracle

import (
	"context"
	"time"

	"github.com/loanworks/granite/internal/core/model"
)

// RetryPolicy is the explicit backoff policy wrapping the oracle client.
// Stages never sleep or loop themselves.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type RetryingOracle struct {
	Next   Oracle
	Policy RetryPolicy
}

func WithRetry(next Oracle, policy RetryPolicy) *RetryingOracle {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 250 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 5 * time.Second
	}
	return &RetryingOracle{Next: next, Policy: policy}
}

// Classify retries transient failures with exponential backoff, honoring
// context cancellation during the wait. Non-retryable errors and exhaustion
// return the last error; the caller degrades the document to needs_review.
func (r *RetryingOracle) Classify(ctx context.Context, doc model.Document) (*Judgment, error) {
	delay := r.Policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= r.Policy.MaxAttempts; attempt++ {
		judgment, err := r.Next.Classify(ctx, doc)
		if err == nil {
			return judgment, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == r.Policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, NewOracleError(ErrorProviderCall, "classification canceled", ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > r.Policy.MaxDelay {
			delay = r.Policy.MaxDelay
		}
	}

	return nil, lastErr
}
