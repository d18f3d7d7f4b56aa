package android

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vburojevic/rnsmoke/internal/poll"
	"github.com/vburojevic/rnsmoke/internal/shell"
)

// Manager drives one AVD. Device state is always read back from adb; the
// manager keeps no record of what it started.
type Manager struct {
	avd          string
	adbPath      string
	emulatorPath string
	pollInterval time.Duration
	runner       shell.Runner
	poller       *poll.Poller
	log          *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithAdbPath overrides the adb binary.
func WithAdbPath(path string) Option {
	return func(m *Manager) { m.adbPath = path }
}

// WithEmulatorPath overrides the emulator binary.
func WithEmulatorPath(path string) Option {
	return func(m *Manager) { m.emulatorPath = path }
}

// WithPollInterval sets how often wait operations re-query adb.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithRunner replaces the command runner.
func WithRunner(r shell.Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithPoller replaces the poller used by wait operations.
func WithPoller(p *poll.Poller) Option {
	return func(m *Manager) { m.poller = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a manager for the named AVD. An empty name accepts any
// emulator in waits.
func NewManager(avd string, opts ...Option) *Manager {
	m := &Manager{
		avd:          avd,
		adbPath:      "adb",
		emulatorPath: "emulator",
		pollInterval: 2 * time.Second,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.runner == nil {
		m.runner = shell.NewExecRunner(m.log)
	}
	if m.poller == nil {
		m.poller = poll.New(poll.WithLogger(m.log))
	}
	return m
}

// AVD returns the AVD the manager targets.
func (m *Manager) AVD() string { return m.avd }

// StartOptions controls how the emulator process is launched.
type StartOptions struct {
	WipeData   bool
	NoSnapshot bool
	ExtraArgs  []string
}

func (o StartOptions) args(avd string) []string {
	args := []string{"-avd", avd}
	if o.WipeData {
		args = append(args, "-wipe-data")
	}
	if o.NoSnapshot {
		args = append(args, "-no-snapshot")
	}
	return append(args, o.ExtraArgs...)
}

// ErrExited means the emulator process died before adb saw it online.
var ErrExited = errors.New("emulator process exited before coming online")

// Emulator is the handle returned by Start. When the AVD was already online
// the handle owns no process: AlreadyRunning is set, Serial is known, and
// Stop leaves the emulator alone.
type Emulator struct {
	AVD            string
	Serial         string
	AlreadyRunning bool

	cmd  *exec.Cmd
	done chan struct{}
	err  error

	stopOnce sync.Once
	log      *zap.Logger
}

// Start spawns the emulator for the manager's AVD. It returns as soon as the
// process is running; use WaitUntilStarted to wait for adb to see it. If the
// AVD is already online nothing is spawned.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (*Emulator, error) {
	if m.avd == "" {
		return nil, fmt.Errorf("start emulator: no AVD configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	serial, running, err := m.findRunning(ctx)
	switch {
	case err != nil:
		m.log.Debug("could not check for a running emulator", zap.String("avd", m.avd), zap.Error(err))
	case running:
		m.log.Info("emulator already running", zap.String("avd", m.avd), zap.String("serial", serial))
		return &Emulator{AVD: m.avd, Serial: serial, AlreadyRunning: true, log: m.log}, nil
	}

	args := opts.args(m.avd)
	cmd := exec.Command(m.emulatorPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start emulator %s: %w", m.avd, err)
	}
	m.log.Info("emulator started", zap.String("avd", m.avd), zap.Int("pid", cmd.Process.Pid), zap.Strings("args", args))

	e := &Emulator{AVD: m.avd, cmd: cmd, done: make(chan struct{}), log: m.log}
	go func() {
		e.err = cmd.Wait()
		close(e.done)
	}()
	return e, nil
}

// Done is closed when the emulator process exits. It is nil, and so never
// ready, for an emulator that was already running.
func (e *Emulator) Done() <-chan struct{} { return e.done }

// Wait blocks until the process exits and returns its exit error. It returns
// nil at once when the handle owns no process.
func (e *Emulator) Wait() error {
	if e.cmd == nil {
		return nil
	}
	<-e.done
	return e.err
}

// Stop kills the emulator process if it is still running and waits for it
// to exit. It is safe to call more than once.
func (e *Emulator) Stop() error {
	if e.cmd == nil {
		return nil
	}
	e.stopOnce.Do(func() {
		select {
		case <-e.done:
			return
		default:
		}
		if err := e.cmd.Process.Kill(); err != nil {
			e.log.Debug("kill emulator", zap.String("avd", e.AVD), zap.Error(err))
		}
		<-e.done
		e.log.Info("emulator process stopped", zap.String("avd", e.AVD))
	})
	return nil
}

// findRunning returns the serial of an online emulator running the
// manager's AVD. An empty AVD matches the first online emulator.
func (m *Manager) findRunning(ctx context.Context) (string, bool, error) {
	emulators, err := m.ListEmulators(ctx)
	if err != nil {
		return "", false, err
	}
	for _, d := range emulators {
		if m.avd == "" {
			return d.ID, true, nil
		}
		name, err := m.AVDName(ctx, d.ID)
		if err != nil {
			m.log.Debug("avd name unavailable", zap.String("serial", d.ID), zap.Error(err))
			continue
		}
		if name == m.avd {
			return d.ID, true, nil
		}
	}
	return "", false, nil
}

// WaitUntilBooted waits until an online emulator running the manager's AVD
// shows up in `adb devices` and returns its serial.
func (m *Manager) WaitUntilBooted(ctx context.Context, timeout time.Duration) (string, bool, error) {
	var serial string
	ok, err := m.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		s, found, err := m.findRunning(ctx)
		serial = s
		return found, err
	}, timeout, m.pollInterval, poll.WithName("emulator "+m.avd+" online"))
	if !ok {
		return "", false, err
	}
	return serial, true, nil
}

// WaitUntilStarted is WaitUntilBooted for a handle returned by Start. It
// gives up with ErrExited as soon as the spawned process dies.
func (m *Manager) WaitUntilStarted(ctx context.Context, e *Emulator, timeout time.Duration) (string, bool, error) {
	if e.AlreadyRunning {
		return e.Serial, true, nil
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	serial, ok, err := m.WaitUntilBooted(waitCtx, timeout)
	if ok {
		return serial, true, nil
	}
	select {
	case <-e.Done():
		if ctx.Err() == nil {
			if exitErr := e.Wait(); exitErr != nil {
				return "", false, fmt.Errorf("%w: %w", ErrExited, exitErr)
			}
			return "", false, ErrExited
		}
	default:
	}
	return "", false, err
}

// Terminate asks the emulator behind serial to exit.
func (m *Manager) Terminate(ctx context.Context, serial string) error {
	m.log.Info("terminating emulator", zap.String("serial", serial))
	if _, err := m.runner.Run(ctx, m.adbPath, "-s", serial, "emu", "kill"); err != nil {
		return fmt.Errorf("terminate emulator %s: %w", serial, err)
	}
	return nil
}

// WaitUntilTerminated waits until serial no longer appears online.
func (m *Manager) WaitUntilTerminated(ctx context.Context, serial string, timeout time.Duration) (bool, error) {
	return m.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		online, err := m.IsOnline(ctx, serial)
		return !online, err
	}, timeout, m.pollInterval, poll.WithName("emulator "+serial+" terminated"))
}

// TerminateAll terminates every online emulator concurrently, then waits
// until none is left. One emulator that refuses to exit yields false.
func (m *Manager) TerminateAll(ctx context.Context, timeout time.Duration) (bool, error) {
	emulators, err := m.ListEmulators(ctx)
	if err != nil {
		return false, err
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, d := range emulators {
		serial := d.ID
		group.Go(func() error {
			if err := m.Terminate(gctx, serial); err != nil {
				m.log.Warn("terminate failed", zap.String("serial", serial), zap.Error(err))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return false, err
	}

	return m.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		left, err := m.ListEmulators(ctx)
		if err != nil {
			return false, err
		}
		return len(left) == 0, nil
	}, timeout, m.pollInterval, poll.WithName("all emulators terminated"))
}

// IsAppInstalled reports whether pkg is installed on the device.
func (m *Manager) IsAppInstalled(ctx context.Context, serial, pkg string) (bool, error) {
	out, err := m.runner.Run(ctx, m.adbPath, "-s", serial, "shell", "pm", "list", "packages", pkg)
	if err != nil {
		return false, fmt.Errorf("list packages on %s: %w", serial, err)
	}
	// pm filters by substring; require an exact "package:<name>" line.
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == "package:"+pkg {
			return true, nil
		}
	}
	return false, nil
}

// WaitUntilAppInstalled waits until pkg is installed on the device.
func (m *Manager) WaitUntilAppInstalled(ctx context.Context, serial, pkg string, timeout time.Duration) (bool, error) {
	return m.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		return m.IsAppInstalled(ctx, serial, pkg)
	}, timeout, m.pollInterval, poll.WithName("app "+pkg+" on "+serial))
}
