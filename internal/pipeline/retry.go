package pipeline

import (
	"context"
	"time"

	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/logger"
)

// RetryPolicy decides whether a failed external call is retried.
// attempt is the 1-based number of the attempt that just failed.
type RetryPolicy func(attempt int, err error) (retry bool, delay time.Duration)

// FixedRetryPolicy retries transient errors up to budget times with a fixed
// delay. A stage therefore makes at most 1+budget attempts.
func FixedRetryPolicy(budget int, backoff time.Duration) RetryPolicy {
	return func(attempt int, err error) (bool, time.Duration) {
		if !domain.IsTransient(err) || attempt > budget {
			return false, 0
		}
		return true, backoff
	}
}

// DefaultRetryPolicy retries a transient failure once after one second.
func DefaultRetryPolicy() RetryPolicy {
	return FixedRetryPolicy(1, time.Second)
}

// NoRetry never retries.
func NoRetry() RetryPolicy {
	return FixedRetryPolicy(0, 0)
}

// callOutcome is the result of a retried external call.
type callOutcome struct {
	Attempts  int
	Err       error
	Cancelled bool
}

// retryCall runs call until it succeeds or policy gives up. Each attempt runs
// on a context detached from jobCtx's cancellation and bounded by timeout, so
// an in-flight call is never aborted by the job. jobCtx is checked after every
// attempt and while waiting out the backoff.
func retryCall(jobCtx context.Context, policy RetryPolicy, timeout time.Duration, call func(ctx context.Context) error) callOutcome {
	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(jobCtx), timeout)
		err := call(logger.SetAttempt(callCtx, attempt))
		cancel()

		if jobCtx.Err() != nil {
			return callOutcome{Attempts: attempt, Err: err, Cancelled: true}
		}
		if err == nil {
			return callOutcome{Attempts: attempt}
		}

		retry, delay := policy(attempt, err)
		if !retry {
			return callOutcome{Attempts: attempt, Err: err}
		}

		logger.With(logger.Fields{"delay_ms": delay.Milliseconds()}).
			WithAttempt(attempt).
			Warn(jobCtx, "External call failed, retrying: %v", err)

		if !sleepCtx(jobCtx, delay) {
			return callOutcome{Attempts: attempt, Err: err, Cancelled: true}
		}
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
