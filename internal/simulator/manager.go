package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vburojevic/rnsmoke/internal/domain"
	"github.com/vburojevic/rnsmoke/internal/poll"
	"github.com/vburojevic/rnsmoke/internal/shell"
)

// Manager handles simulator discovery and lifecycle operations.
// All state is read back from simctl on every call; nothing is cached.
type Manager struct {
	xcrunPath    string
	pollInterval time.Duration
	runner       shell.Runner
	poller       *poll.Poller
	log          *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithXcrunPath overrides the xcrun binary.
func WithXcrunPath(path string) Option {
	return func(m *Manager) { m.xcrunPath = path }
}

// WithPollInterval sets how often wait operations re-query simctl.
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

// NewManager creates a new simulator manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		xcrunPath:    "xcrun",
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

func (m *Manager) simctl(ctx context.Context, args ...string) ([]byte, error) {
	return m.runner.Run(ctx, m.xcrunPath, append([]string{"simctl"}, args...)...)
}

// ListDevices returns all available simulators in simctl's own order.
func (m *Manager) ListDevices(ctx context.Context) ([]domain.Device, error) {
	output, err := m.simctl(ctx, "list", "devices", "--json")
	if err != nil {
		return nil, queryError("simctl list devices --json", err)
	}

	if !gjson.ValidBytes(output) {
		return nil, queryError("simctl list devices --json", errors.New("failed to parse simctl output: invalid JSON"))
	}

	// Walk runtimes in document order so lookups by name are stable.
	var (
		devices []domain.Device
		decErr  error
	)
	gjson.GetBytes(output, "devices").ForEach(func(key, value gjson.Result) bool {
		var devs []domain.SimctlDevice
		if err := json.Unmarshal([]byte(value.Raw), &devs); err != nil {
			decErr = fmt.Errorf("failed to parse simctl output for %s: %w", key.String(), err)
			return false
		}
		runtimeName := parseRuntimeName(key.String())
		for _, d := range devs {
			if !d.IsAvailable {
				continue
			}

			var lastBooted *time.Time
			if d.LastBootedAt != nil {
				if t, err := time.Parse(time.RFC3339, *d.LastBootedAt); err == nil {
					lastBooted = &t
				}
			}

			devices = append(devices, domain.Device{
				UDID:                 d.UDID,
				Name:                 d.Name,
				State:                domain.ParseDeviceState(d.State),
				IsAvailable:          d.IsAvailable,
				DeviceTypeIdentifier: d.DeviceTypeIdentifier,
				RuntimeIdentifier:    runtimeName,
				OSVersion:            runtimeVersion(runtimeName),
				DataPath:             d.DataPath,
				LogPath:              d.LogPath,
				LastBootedAt:         lastBooted,
			})
		}
		return true
	})
	if decErr != nil {
		return nil, queryError("simctl list devices --json", decErr)
	}

	return devices, nil
}

func queryError(command string, err error) error {
	qe := &domain.DeviceQueryError{Platform: "ios", Command: "xcrun " + command, Err: err}
	var cerr *shell.CommandError
	if errors.As(err, &cerr) {
		qe.Stderr = cerr.Stderr
	}
	return qe
}

// ListBootedDevices returns only booted simulators
func (m *Manager) ListBootedDevices(ctx context.Context) ([]domain.Device, error) {
	devices, err := m.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	var booted []domain.Device
	for _, d := range devices {
		if d.IsBooted() {
			booted = append(booted, d)
		}
	}
	return booted, nil
}

// FindDevice finds a device by UDID or name, case-insensitively.
func (m *Manager) FindDevice(ctx context.Context, nameOrUDID string) (*domain.Device, error) {
	devices, err := m.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	nameOrUDIDLower := strings.ToLower(nameOrUDID)

	for _, d := range devices {
		if strings.ToLower(d.UDID) == nameOrUDIDLower {
			return &d, nil
		}
	}

	for _, d := range devices {
		if strings.ToLower(d.Name) == nameOrUDIDLower {
			return &d, nil
		}
	}

	return nil, &domain.NotFoundError{Query: nameOrUDID}
}

// FindByNameAndVersion finds the simulator with the given name on the given
// OS version ("17.0" or "iOS 17.0"). An empty version matches any runtime.
func (m *Manager) FindByNameAndVersion(ctx context.Context, name, version string) (*domain.Device, error) {
	devices, err := m.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	version = strings.TrimSpace(version)
	for _, d := range devices {
		if !strings.EqualFold(d.Name, name) {
			continue
		}
		if version == "" || d.OSVersion == version || strings.EqualFold(d.RuntimeIdentifier, version) {
			return &d, nil
		}
	}

	query := name
	if version != "" {
		query += " (" + version + ")"
	}
	return nil, &domain.NotFoundError{Query: query}
}

// GetDeviceInfo returns the current info for a device by UDID
func (m *Manager) GetDeviceInfo(ctx context.Context, udid string) (*domain.Device, error) {
	devices, err := m.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	for _, d := range devices {
		if d.UDID == udid {
			return &d, nil
		}
	}

	return nil, &domain.NotFoundError{Query: udid}
}

// Boot boots a simulator. A simulator that is already booted is not an error.
func (m *Manager) Boot(ctx context.Context, udid string) error {
	m.log.Info("booting simulator", zap.String("udid", udid))
	if _, err := m.simctl(ctx, "boot", udid); err != nil {
		if stateConflict(err, domain.DeviceStateBooted) {
			m.log.Debug("simulator already booted", zap.String("udid", udid))
			return nil
		}
		return fmt.Errorf("failed to boot simulator %s: %w", udid, err)
	}
	return nil
}

// Shutdown shuts a simulator down. A simulator that is already shut down is
// not an error.
func (m *Manager) Shutdown(ctx context.Context, udid string) error {
	m.log.Info("shutting down simulator", zap.String("udid", udid))
	if _, err := m.simctl(ctx, "shutdown", udid); err != nil {
		if stateConflict(err, domain.DeviceStateShutdown) {
			m.log.Debug("simulator already shut down", zap.String("udid", udid))
			return nil
		}
		return fmt.Errorf("failed to shut down simulator %s: %w", udid, err)
	}
	return nil
}

// Erase wipes a simulator's content and settings. The simulator must be
// shut down first; otherwise a *domain.StateError is returned and simctl is
// not invoked.
func (m *Manager) Erase(ctx context.Context, udid string) error {
	device, err := m.GetDeviceInfo(ctx, udid)
	if err != nil {
		return err
	}
	if !device.IsShutdown() {
		return &domain.StateError{DeviceID: udid, Op: "erase", Want: domain.DeviceStateShutdown, Got: device.State}
	}

	m.log.Info("erasing simulator", zap.String("udid", udid))
	if _, err := m.simctl(ctx, "erase", udid); err != nil {
		return fmt.Errorf("failed to erase simulator %s: %w", udid, err)
	}
	return nil
}

// stateConflict reports whether simctl refused the command because the
// device is already in the wanted state ("...in current state: Booted").
func stateConflict(err error, want domain.DeviceState) bool {
	var cerr *shell.CommandError
	if !errors.As(err, &cerr) {
		return false
	}
	return strings.Contains(cerr.Output(), "current state: "+string(want))
}

// WaitUntilBooted polls until the simulator reports Booted. A timeout is
// reported as false, not as an error.
func (m *Manager) WaitUntilBooted(ctx context.Context, udid string, timeout time.Duration) (bool, error) {
	return m.waitForState(ctx, udid, domain.DeviceStateBooted, timeout)
}

// WaitUntilShutdown polls until the simulator reports Shutdown.
func (m *Manager) WaitUntilShutdown(ctx context.Context, udid string, timeout time.Duration) (bool, error) {
	return m.waitForState(ctx, udid, domain.DeviceStateShutdown, timeout)
}

func (m *Manager) waitForState(ctx context.Context, udid string, want domain.DeviceState, timeout time.Duration) (bool, error) {
	return m.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		device, err := m.GetDeviceInfo(ctx, udid)
		if err != nil {
			return false, err
		}
		return device.State == want, nil
	}, timeout, m.pollInterval, poll.WithName("simulator "+udid+" "+string(want)))
}

// EnsureBooted boots a device if it's not already booted and waits for boot to complete
func (m *Manager) EnsureBooted(ctx context.Context, udid string, timeout time.Duration) (bool, error) {
	device, err := m.GetDeviceInfo(ctx, udid)
	if err != nil {
		return false, err
	}

	if device.IsBooted() {
		return true, nil
	}

	if err := m.Boot(ctx, udid); err != nil {
		return false, err
	}

	return m.WaitUntilBooted(ctx, udid, timeout)
}

// ShutdownAll shuts down every booted simulator and waits until none is
// booted. A simulator that refuses to stop surfaces as false.
func (m *Manager) ShutdownAll(ctx context.Context, timeout time.Duration) (bool, error) {
	booted, err := m.ListBootedDevices(ctx)
	if err != nil {
		return false, err
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, d := range booted {
		udid := d.UDID
		group.Go(func() error {
			if err := m.Shutdown(gctx, udid); err != nil {
				m.log.Warn("shutdown failed", zap.String("udid", udid), zap.Error(err))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return false, err
	}

	return m.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		booted, err := m.ListBootedDevices(ctx)
		if err != nil {
			return false, err
		}
		return len(booted) == 0, nil
	}, timeout, m.pollInterval, poll.WithName("all simulators shutdown"))
}

// parseRuntimeName extracts a human-readable runtime name from the identifier
func parseRuntimeName(runtime string) string {
	// Example: "com.apple.CoreSimulator.SimRuntime.iOS-17-0" -> "iOS 17.0"
	// Example: "com.apple.CoreSimulator.SimRuntime.watchOS-10-0" -> "watchOS 10.0"

	parts := strings.Split(runtime, ".")
	if len(parts) == 0 {
		return runtime
	}

	lastPart := parts[len(parts)-1]

	segments := strings.Split(lastPart, "-")
	if len(segments) >= 2 {
		os := segments[0]
		version := strings.Join(segments[1:], ".")
		return fmt.Sprintf("%s %s", os, version)
	}

	return lastPart
}

// runtimeVersion returns the version part of a parsed runtime name:
// "iOS 17.0" -> "17.0".
func runtimeVersion(runtimeName string) string {
	if _, version, ok := strings.Cut(runtimeName, " "); ok {
		return version
	}
	return ""
}
