package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil_ResolvesEarly(t *testing.T) {
	var calls atomic.Int32
	cond := func(ctx context.Context) (bool, error) {
		return calls.Add(1) >= 3, nil
	}

	start := time.Now()
	ok, err := Until(context.Background(), cond, 5*time.Second, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(3), calls.Load())
	assert.Less(t, elapsed, time.Second, "should resolve on the tick the condition became true")
}

func TestUntil_ImmediateSuccessDoesNotWait(t *testing.T) {
	start := time.Now()
	ok, err := Until(context.Background(), func(context.Context) (bool, error) { return true, nil }, time.Minute, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestUntil_TimesOutWithFalse(t *testing.T) {
	var calls atomic.Int32
	cond := func(ctx context.Context) (bool, error) {
		calls.Add(1)
		return false, nil
	}

	start := time.Now()
	ok, err := Until(context.Background(), cond, 200*time.Millisecond, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err, "timeout is a value, not an error")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond+time.Second)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestUntil_TimeoutShorterThanInterval(t *testing.T) {
	var calls atomic.Int32
	cond := func(ctx context.Context) (bool, error) {
		calls.Add(1)
		return false, nil
	}

	start := time.Now()
	ok, err := Until(context.Background(), cond, 20*time.Millisecond, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Less(t, time.Since(start), time.Second, "interval must be capped by the remaining timeout")
}

func TestUntil_ZeroTimeoutEvaluatesOnce(t *testing.T) {
	var calls atomic.Int32
	ok, err := Until(context.Background(), func(context.Context) (bool, error) {
		calls.Add(1)
		return false, nil
	}, 0, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUntil_ConsecutiveErrorsAbort(t *testing.T) {
	boom := errors.New("adb: device offline")
	var calls atomic.Int32
	cond := func(ctx context.Context) (bool, error) {
		calls.Add(1)
		return false, boom
	}

	ok, err := Until(context.Background(), cond, 5*time.Second, 10*time.Millisecond)
	assert.False(t, ok)

	var condErr *ConditionError
	require.ErrorAs(t, err, &condErr)
	assert.Equal(t, DefaultMaxConsecutiveErrors, condErr.Consecutive)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(DefaultMaxConsecutiveErrors), calls.Load())
}

func TestUntil_ErrorsTreatedAsFalseWhenNotConsecutive(t *testing.T) {
	var calls atomic.Int32
	cond := func(ctx context.Context) (bool, error) {
		n := calls.Add(1)
		switch {
		case n >= 7:
			return true, nil
		case n%2 == 1:
			return false, errors.New("transient")
		default:
			return false, nil
		}
	}

	ok, err := Until(context.Background(), cond, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(7), calls.Load())
}

func TestUntil_FailFast(t *testing.T) {
	var calls atomic.Int32
	ok, err := Until(context.Background(), func(context.Context) (bool, error) {
		calls.Add(1)
		return false, errors.New("boom")
	}, time.Second, 10*time.Millisecond, FailFast())
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUntil_UnlimitedErrors(t *testing.T) {
	ok, err := Until(context.Background(), func(context.Context) (bool, error) {
		return false, errors.New("boom")
	}, 50*time.Millisecond, 5*time.Millisecond, WithMaxConsecutiveErrors(0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUntil_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	ok, err := Until(ctx, func(context.Context) (bool, error) { return false, nil }, time.Minute, 10*time.Millisecond)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUntil_WakeTriggersEarlyEvaluation(t *testing.T) {
	wake := make(chan struct{}, 1)
	var calls atomic.Int32
	cond := func(ctx context.Context) (bool, error) {
		if calls.Add(1) == 1 {
			wake <- struct{}{}
			return false, nil
		}
		return true, nil
	}

	start := time.Now()
	ok, err := Until(context.Background(), cond, time.Minute, 30*time.Second, WithWake(wake))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUntil_InitialDelay(t *testing.T) {
	start := time.Now()
	var first time.Duration
	ok, err := Until(context.Background(), func(context.Context) (bool, error) {
		first = time.Since(start)
		return true, nil
	}, time.Second, 10*time.Millisecond, WithInitialDelay(50*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, first, 50*time.Millisecond)
}

func TestUntil_EvaluationsNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight, calls atomic.Int32
	cond := func(ctx context.Context) (bool, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		// Slower than the interval on purpose.
		time.Sleep(20 * time.Millisecond)
		return calls.Add(1) >= 5, nil
	}

	ok, err := Until(context.Background(), cond, 5*time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestUntil_MockClockTimeout(t *testing.T) {
	mock := clock.NewMock()
	p := New(WithClock(mock))
	start := mock.Now()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := p.Until(context.Background(), func(context.Context) (bool, error) { return false, nil }, time.Minute, 10*time.Second)
		done <- result{ok, err}
	}()

	for {
		select {
		case r := <-done:
			require.NoError(t, r.err)
			assert.False(t, r.ok)
			assert.GreaterOrEqual(t, mock.Now().Sub(start), time.Minute)
			return
		default:
			mock.Add(10 * time.Second)
		}
	}
}
