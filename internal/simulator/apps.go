package simulator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"howett.net/plist"

	"github.com/vburojevic/rnsmoke/internal/poll"
)

// App is an application installed on a simulator.
type App struct {
	BundleID string `json:"bundle_id"`
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Type     string `json:"app_type"`
	Path     string `json:"path,omitempty"`
}

// plistAppInfo is the structure from simctl listapps plist output
type plistAppInfo struct {
	ApplicationType    string `plist:"ApplicationType"`
	BundleName         string `plist:"CFBundleName"`
	BundleDisplayName  string `plist:"CFBundleDisplayName"`
	BundleVersion      string `plist:"CFBundleVersion"`
	BundleShortVersion string `plist:"CFBundleShortVersionString"`
	Path               string `plist:"Path"`
}

// ListApps returns the applications installed on a simulator, sorted by
// bundle identifier.
func (m *Manager) ListApps(ctx context.Context, udid string) ([]App, error) {
	output, err := m.simctl(ctx, "listapps", udid)
	if err != nil {
		return nil, fmt.Errorf("simctl listapps %s: %w", udid, err)
	}
	return parseApps(output)
}

func parseApps(output []byte) ([]App, error) {
	var appsDict map[string]plistAppInfo
	if _, err := plist.Unmarshal(output, &appsDict); err != nil {
		return nil, fmt.Errorf("failed to parse apps plist: %w", err)
	}

	apps := make([]App, 0, len(appsDict))
	for bundleID, info := range appsDict {
		name := info.BundleDisplayName
		if name == "" {
			name = info.BundleName
		}
		if name == "" {
			name = bundleID
		}

		version := info.BundleShortVersion
		if version == "" {
			version = info.BundleVersion
		}

		appType := "system"
		if info.ApplicationType == "User" {
			appType = "user"
		}

		apps = append(apps, App{
			BundleID: bundleID,
			Name:     name,
			Version:  version,
			Type:     appType,
			Path:     info.Path,
		})
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].BundleID < apps[j].BundleID })
	return apps, nil
}

// IsAppInstalled reports whether bundleID is installed on the simulator.
func (m *Manager) IsAppInstalled(ctx context.Context, udid, bundleID string) (bool, error) {
	apps, err := m.ListApps(ctx, udid)
	if err != nil {
		return false, err
	}
	for _, app := range apps {
		if app.BundleID == bundleID {
			return true, nil
		}
	}
	return false, nil
}

// WaitUntilAppInstalled polls until bundleID shows up on the simulator.
// Installation is a side effect of starting a debug session, so callers
// start waiting only after triggering it.
func (m *Manager) WaitUntilAppInstalled(ctx context.Context, udid, bundleID string, timeout time.Duration) (bool, error) {
	return m.poller.Until(ctx, func(ctx context.Context) (bool, error) {
		return m.IsAppInstalled(ctx, udid, bundleID)
	}, timeout, m.pollInterval, poll.WithName("app "+bundleID+" installed on "+udid))
}
