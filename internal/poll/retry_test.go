package poll

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = RetryPolicy{Attempts: 5, PollTimeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond}

func TestRetry_RecoveryOncePerFailedAttempt(t *testing.T) {
	actions, recoveries := 0, 0
	action := Do(func(context.Context) error {
		actions++
		if actions <= 2 {
			return fmt.Errorf("element not clickable (attempt %d)", actions)
		}
		return nil
	})
	recovery := func(context.Context) error {
		recoveries++
		return nil
	}

	err := Retry(context.Background(), action, recovery, fastPolicy)
	require.NoError(t, err)
	assert.Equal(t, 3, actions)
	assert.Equal(t, 2, recoveries)
}

func TestRetry_ExhaustionPropagatesLastError(t *testing.T) {
	actions, recoveries := 0, 0
	action := Do(func(context.Context) error {
		actions++
		return fmt.Errorf("failure %d", actions)
	})
	recovery := func(context.Context) error {
		recoveries++
		return nil
	}

	policy := fastPolicy
	policy.Attempts = 3
	err := Retry(context.Background(), action, recovery, policy)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, exhausted.Recoveries)
	assert.EqualError(t, exhausted.Last, "failure 3")
	assert.Equal(t, 3, actions)
	assert.Equal(t, 3, recoveries, "recovery runs after every failed attempt, including the last")
}

func TestRetry_RecoveryCompletesBeforeNextAttempt(t *testing.T) {
	var events []string
	action := Do(func(context.Context) error {
		events = append(events, "action")
		if len(events) < 5 {
			return errors.New("not yet")
		}
		return nil
	})
	recovery := func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		events = append(events, "recover")
		return nil
	}

	require.NoError(t, Retry(context.Background(), action, recovery, fastPolicy))
	assert.Equal(t, []string{"action", "recover", "action", "recover", "action"}, events)
}

func TestRetry_InnerTimeoutIsAFailedAttempt(t *testing.T) {
	policy := RetryPolicy{Attempts: 2, PollTimeout: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond}
	err := Retry(context.Background(), func(context.Context) (bool, error) { return false, nil }, nil, policy)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, ErrAttemptTimedOut)
	assert.Equal(t, 0, exhausted.Recoveries)
}

func TestRetry_ActionMayPollWithinAttempt(t *testing.T) {
	polls := 0
	action := func(context.Context) (bool, error) {
		polls++
		return polls >= 4, nil
	}
	recovered := false
	err := Retry(context.Background(), action, func(context.Context) error {
		recovered = true
		return nil
	}, fastPolicy)
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, 4, polls)
}

func TestRetry_RecoveryErrorDoesNotMaskActionError(t *testing.T) {
	policy := fastPolicy
	policy.Attempts = 2
	err := Retry(context.Background(), Do(func(context.Context) error {
		return errors.New("stuck dialog")
	}), func(context.Context) error {
		return errors.New("escape failed")
	}, policy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck dialog")
	assert.NotContains(t, err.Error(), "escape failed")
}

func TestRetry_ContextCancelledStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	actions := 0
	err := Retry(ctx, Do(func(context.Context) error {
		actions++
		return errors.New("nope")
	}), func(context.Context) error {
		cancel()
		return nil
	}, fastPolicy)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, actions)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	actions := 0
	err := Retry(context.Background(), Do(func(context.Context) error {
		actions++
		return errors.New("nope")
	}), nil, RetryPolicy{PollTimeout: 10 * time.Millisecond, PollInterval: time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, 1, actions)
}
