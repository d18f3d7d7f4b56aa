// Package poll implements the wait-until-predicate primitive shared by every
// device, log and document wait in the harness, and the retry loop built on it.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// DefaultInterval is used when a caller passes a non-positive interval.
const DefaultInterval = time.Second

// DefaultMaxConsecutiveErrors is how many condition errors in a row abort a wait.
const DefaultMaxConsecutiveErrors = 3

// Condition is evaluated repeatedly until it reports true.
// Returning an error counts as false for that evaluation.
type Condition func(ctx context.Context) (bool, error)

// ConditionError is returned when a condition keeps failing.
type ConditionError struct {
	Consecutive int
	Err         error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition failed %d time(s) in a row: %v", e.Consecutive, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// Poller schedules condition evaluations on a clock.
type Poller struct {
	clock clock.Clock
	log   *zap.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithClock sets the clock used for deadlines and intervals.
func WithClock(c clock.Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a Poller using the wall clock.
func New(opts ...PollerOption) *Poller {
	p := &Poller{
		clock: clock.New(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultPoller = New()

// Until waits on the default poller. See (*Poller).Until.
func Until(ctx context.Context, cond Condition, timeout, interval time.Duration, opts ...Option) (bool, error) {
	return defaultPoller.Until(ctx, cond, timeout, interval, opts...)
}

type untilOptions struct {
	initialDelay time.Duration
	maxErrors    int
	wake         <-chan struct{}
	name         string
}

// Option adjusts a single Until call.
type Option func(*untilOptions)

// WithInitialDelay postpones the first evaluation.
func WithInitialDelay(d time.Duration) Option {
	return func(o *untilOptions) { o.initialDelay = d }
}

// WithMaxConsecutiveErrors sets how many condition errors in a row abort the
// wait. Zero or less disables the limit.
func WithMaxConsecutiveErrors(n int) Option {
	return func(o *untilOptions) { o.maxErrors = n }
}

// FailFast aborts the wait on the first condition error.
func FailFast() Option {
	return WithMaxConsecutiveErrors(1)
}

// WithWake re-evaluates the condition as soon as a value arrives on ch,
// without waiting for the next interval.
func WithWake(ch <-chan struct{}) Option {
	return func(o *untilOptions) { o.wake = ch }
}

// WithName labels the wait in log output.
func WithName(name string) Option {
	return func(o *untilOptions) { o.name = name }
}

// Until evaluates cond immediately, then every interval, until it returns
// true or timeout elapses. A timeout is reported as (false, nil). The last
// evaluation happens at the deadline, so a timeout shorter than the interval
// still gets at least one evaluation.
//
// Evaluations never overlap: the next one is scheduled only after the
// previous one returned.
func (p *Poller) Until(ctx context.Context, cond Condition, timeout, interval time.Duration, opts ...Option) (bool, error) {
	o := untilOptions{maxErrors: DefaultMaxConsecutiveErrors}
	for _, opt := range opts {
		opt(&o)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := p.clock.Now()
	deadline := start.Add(timeout)
	log := p.log.With(zap.String("wait", o.name), zap.Duration("timeout", timeout))

	if o.initialDelay > 0 {
		if err := p.sleep(ctx, o.initialDelay, nil); err != nil {
			return false, err
		}
	}

	consecutive := 0
	for attempt := 1; ; attempt++ {
		ok, err := cond(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			consecutive++
			log.Debug("condition error", zap.Int("attempt", attempt), zap.Int("consecutive", consecutive), zap.Error(err))
			if o.maxErrors > 0 && consecutive >= o.maxErrors {
				return false, &ConditionError{Consecutive: consecutive, Err: err}
			}
		case ok:
			log.Debug("condition met", zap.Int("attempt", attempt), zap.Duration("elapsed", p.clock.Since(start)))
			return true, nil
		default:
			consecutive = 0
		}

		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			log.Debug("condition timed out", zap.Int("attempts", attempt), zap.Duration("elapsed", p.clock.Since(start)))
			return false, nil
		}
		if err := p.sleep(ctx, min(interval, remaining), o.wake); err != nil {
			return false, err
		}
	}
}

func (p *Poller) sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	t := p.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	case <-wake:
	}
	return nil
}
