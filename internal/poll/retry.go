package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrAttemptTimedOut is the failure recorded for an attempt whose action
// never reported success within the policy's poll budget.
var ErrAttemptTimedOut = errors.New("attempt timed out")

// Recovery restores a known state after a failed attempt, e.g. dismissing a
// stuck dialog.
type Recovery func(ctx context.Context) error

// RetryPolicy bounds a Retry call.
type RetryPolicy struct {
	Attempts     int
	PollTimeout  time.Duration // inner wait budget per attempt
	PollInterval time.Duration
}

// DefaultRetryPolicy mirrors the budget used for flaky UI steps.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:     3,
	PollTimeout:  10 * time.Second,
	PollInterval: time.Second,
}

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Attempts   int
	Recoveries int
	Last       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Retry runs action through Until (fail-fast on action errors) up to
// policy.Attempts times. After every failed attempt, including the last,
// recovery runs to completion before anything else happens. The final
// failure is returned as *ExhaustedError.
func (p *Poller) Retry(ctx context.Context, action Condition, recovery Recovery, policy RetryPolicy) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	recoveries := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := p.Until(ctx, action, policy.PollTimeout, policy.PollInterval, FailFast(), WithName("retry"))
		if ok {
			if attempt > 1 {
				p.log.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var condErr *ConditionError
		switch {
		case errors.As(err, &condErr):
			last = condErr.Err
		case err != nil:
			last = err
		default:
			last = ErrAttemptTimedOut
		}
		p.log.Warn("attempt failed", zap.Int("attempt", attempt), zap.Int("of", attempts), zap.Error(last))

		if recovery != nil {
			recoveries++
			if rerr := recovery(ctx); rerr != nil {
				p.log.Warn("recovery failed", zap.Int("attempt", attempt), zap.Error(rerr))
			}
		}
	}
	return &ExhaustedError{Attempts: attempts, Recoveries: recoveries, Last: last}
}

// Retry runs on the default poller. See (*Poller).Retry.
func Retry(ctx context.Context, action Condition, recovery Recovery, policy RetryPolicy) error {
	return defaultPoller.Retry(ctx, action, recovery, policy)
}

// Do adapts an action that either succeeds or fails into a Condition.
// An error from fn fails the attempt immediately.
func Do(fn func(ctx context.Context) error) Condition {
	return func(ctx context.Context) (bool, error) {
		if err := fn(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
}
