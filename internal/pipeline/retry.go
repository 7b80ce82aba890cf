package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// retryPolicy bounds attempts for soft failures within one stage.
type retryPolicy struct {
	// attempts is the total attempt bound, first attempt included.
	attempts int
	// baseDelay is the backoff base; the wait after failed attempt n is
	// baseDelay * 2^(n-1).
	baseDelay time.Duration
}

func policyFromConfig(cfg domain.PipelineConfig) retryPolicy {
	return retryPolicy{
		attempts:  cfg.RetryAttempts,
		baseDelay: cfg.RetryBaseDelay,
	}
}

// backoffDelay returns the wait before the next attempt, where attempt is the
// 1-based number of the attempt that just failed.
func (p retryPolicy) backoffDelay(attempt int) time.Duration {
	delay := p.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// runWithRetry executes fn under the run's stage retry policy.
//
// Soft failures are retried until the attempt bound is exhausted, then
// returned wrapped as the final error. Hard failures return immediately.
// Cancellation, before or between attempts, returns domain.ErrCancelled
// without consuming the remaining budget. fn itself runs on a context
// detached from run cancellation: an in-flight external call completes or
// times out on its own terms, and cancellation takes effect at the next
// attempt or stage boundary.
func (x *runExecution) runWithRetry(ctx context.Context, logger zerolog.Logger, stage string, fn func(context.Context) error) error {
	policy := x.policy

	var lastErr error
	for attempt := 1; attempt <= policy.attempts; attempt++ {
		if ctx.Err() != nil {
			return domain.ErrCancelled
		}

		x.exec.observeAttempt(stage)
		start := time.Now()
		err := fn(context.WithoutCancel(ctx))
		x.exec.observeDuration(stage, time.Since(start))
		if err == nil {
			return nil
		}
		lastErr = err

		switch classify(err) {
		case severityCancel:
			return domain.ErrCancelled
		case severityHard:
			x.exec.observeFailure(stage)
			return err
		}

		if attempt == policy.attempts {
			break
		}

		x.exec.observeRetry(stage)
		logger.Warn().Err(err).
			Str("stage", stage).
			Int("attempt", attempt).
			Int("max_attempts", policy.attempts).
			Msg("stage attempt failed, retrying")

		select {
		case <-ctx.Done():
			return domain.ErrCancelled
		case <-time.After(policy.backoffDelay(attempt)):
		}
	}

	x.exec.observeFailure(stage)
	return fmt.Errorf("%s failed after %d attempts: %w", stage, policy.attempts, lastErr)
}
