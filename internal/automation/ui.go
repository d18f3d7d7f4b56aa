// Package automation provides waiting and retrying helpers over a minimal
// UI driver, so flaky UI steps share one retry discipline.
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vburojevic/rnsmoke/internal/poll"
)

// KeyEscape is the WebDriver code point for the Escape key.
const KeyEscape = "\uE00C"

// ErrNoSuchElement is returned by drivers when a selector matches nothing.
var ErrNoSuchElement = errors.New("no such element")

// Driver is the subset of a UI automation session the harness relies on.
// Selectors are XPath expressions.
type Driver interface {
	Click(ctx context.Context, selector string) error
	IsExisting(ctx context.Context, selector string) (bool, error)
	SendKeys(ctx context.Context, keys string) error
}

// UI wraps a Driver with polling waits and retry-with-recovery.
type UI struct {
	driver   Driver
	poller   *poll.Poller
	interval time.Duration
	log      *zap.Logger
}

// Option configures a UI.
type Option func(*UI)

// WithPoller replaces the poller.
func WithPoller(p *poll.Poller) Option {
	return func(u *UI) { u.poller = p }
}

// WithInterval sets the polling interval of waits.
func WithInterval(d time.Duration) Option {
	return func(u *UI) { u.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *UI) { u.log = l }
}

// New creates a UI over driver.
func New(driver Driver, opts ...Option) *UI {
	u := &UI{driver: driver, interval: poll.DefaultInterval, log: zap.NewNop()}
	for _, opt := range opts {
		opt(u)
	}
	if u.poller == nil {
		u.poller = poll.New(poll.WithLogger(u.log))
	}
	return u
}

// WaitForExist waits until selector matches an element. A timeout is false.
func (u *UI) WaitForExist(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	return u.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		return u.driver.IsExisting(ctx, selector)
	}, timeout, u.interval, poll.WithName("element "+selector))
}

// WaitUntil waits on an arbitrary condition at the UI's interval.
func (u *UI) WaitUntil(ctx context.Context, cond poll.Condition, timeout time.Duration) (bool, error) {
	return u.poller.Until(ctx, cond, timeout, u.interval)
}

// DismissWithEscape is the default recovery: press Escape to close whatever
// dialog or quick pick is in the way.
func (u *UI) DismissWithEscape(ctx context.Context) error {
	return u.driver.SendKeys(ctx, KeyEscape)
}

// ClickWhenExists clicks selector once it exists, pressing Escape between
// failed attempts.
func (u *UI) ClickWhenExists(ctx context.Context, selector string, policy poll.RetryPolicy) error {
	err := u.RetryWithRecovery(ctx, func(ctx context.Context) (bool, error) {
		exists, err := u.driver.IsExisting(ctx, selector)
		if err != nil || !exists {
			return false, err
		}
		if err := u.driver.Click(ctx, selector); err != nil {
			return false, err
		}
		return true, nil
	}, u.DismissWithEscape, policy)
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// RetryWithRecovery runs action until it reports true, running recovery
// after each failed attempt. See poll.Retry.
func (u *UI) RetryWithRecovery(ctx context.Context, action poll.Condition, recovery poll.Recovery, policy poll.RetryPolicy) error {
	if policy.PollInterval <= 0 {
		policy.PollInterval = u.interval
	}
	return u.poller.Retry(ctx, action, recovery, policy)
}
