// Package android observes and drives Android emulators through adb and the
// emulator binary.
package android

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/vburojevic/rnsmoke/internal/domain"
	"github.com/vburojevic/rnsmoke/internal/shell"
)

// deviceLine matches "<serial>\t<state>"; headers and daemon notices use
// spaces, not tabs, and are skipped.
var deviceLine = regexp.MustCompile(`^(\S+)\t(\S+)\s*$`)

// StateOnline is the adb state of a device ready for commands.
const StateOnline = "device"

// ParseDevices parses `adb devices` output in the tool's own order.
func ParseDevices(out string) []domain.AndroidDevice {
	var devices []domain.AndroidDevice
	for _, line := range strings.Split(out, "\n") {
		m := deviceLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		devices = append(devices, domain.AndroidDevice{
			ID:       m[1],
			State:    m[2],
			IsOnline: m[2] == StateOnline,
		})
	}
	return devices
}

// ListDevices returns every device adb knows about.
func (m *Manager) ListDevices(ctx context.Context) ([]domain.AndroidDevice, error) {
	out, err := m.runner.Run(ctx, m.adbPath, "devices")
	if err != nil {
		qe := &domain.DeviceQueryError{Platform: "android", Command: m.adbPath + " devices", Err: err}
		var cerr *shell.CommandError
		if errors.As(err, &cerr) {
			qe.Stderr = cerr.Stderr
		}
		return nil, qe
	}
	return ParseDevices(string(out)), nil
}

// ListOnline returns devices in the "device" state.
func (m *Manager) ListOnline(ctx context.Context) ([]domain.AndroidDevice, error) {
	return m.filter(ctx, func(d domain.AndroidDevice) bool { return d.IsOnline })
}

// ListEmulators returns online emulators.
func (m *Manager) ListEmulators(ctx context.Context) ([]domain.AndroidDevice, error) {
	return m.filter(ctx, func(d domain.AndroidDevice) bool { return d.IsOnline && d.IsEmulator() })
}

func (m *Manager) filter(ctx context.Context, keep func(domain.AndroidDevice) bool) ([]domain.AndroidDevice, error) {
	devices, err := m.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.AndroidDevice
	for _, d := range devices {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// IsOnline reports whether serial is currently listed as online.
func (m *Manager) IsOnline(ctx context.Context, serial string) (bool, error) {
	online, err := m.ListOnline(ctx)
	if err != nil {
		return false, err
	}
	for _, d := range online {
		if d.ID == serial {
			return true, nil
		}
	}
	return false, nil
}

// AVDName asks a running emulator for the AVD it was started from.
func (m *Manager) AVDName(ctx context.Context, serial string) (string, error) {
	out, err := m.runner.Run(ctx, m.adbPath, "-s", serial, "emu", "avd", "name")
	if err != nil {
		return "", fmt.Errorf("query avd name of %s: %w", serial, err)
	}
	// Output is the name followed by an "OK" line.
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && line != "OK" {
			return line, nil
		}
	}
	return "", fmt.Errorf("query avd name of %s: empty response", serial)
}
