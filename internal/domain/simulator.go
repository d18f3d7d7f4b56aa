package domain

import "time"

// DeviceState represents the current state of a simulator
type DeviceState string

const (
	DeviceStateShutdown     DeviceState = "Shutdown"
	DeviceStateBooted       DeviceState = "Booted"
	DeviceStateBooting      DeviceState = "Booting"
	DeviceStateShuttingDown DeviceState = "Shutting Down"
	DeviceStateUnknown      DeviceState = "Unknown"
)

// ParseDeviceState normalizes a simctl state string.
func ParseDeviceState(s string) DeviceState {
	switch DeviceState(s) {
	case DeviceStateShutdown, DeviceStateBooted, DeviceStateBooting, DeviceStateShuttingDown:
		return DeviceState(s)
	default:
		return DeviceStateUnknown
	}
}

// Device represents an iOS Simulator device.
// A Device is a snapshot taken at query time; re-query instead of caching it.
type Device struct {
	UDID                 string      `json:"udid"`
	Name                 string      `json:"name"`
	State                DeviceState `json:"state"`
	IsAvailable          bool        `json:"isAvailable"`
	DeviceTypeIdentifier string      `json:"deviceTypeIdentifier"`
	RuntimeIdentifier    string      `json:"runtime"`
	OSVersion            string      `json:"osVersion"`
	DataPath             string      `json:"dataPath,omitempty"`
	LogPath              string      `json:"logPath,omitempty"`
	LastBootedAt         *time.Time  `json:"lastBootedAt,omitempty"`
}

// IsBooted returns true if the device is currently booted
func (d *Device) IsBooted() bool {
	return d.State == DeviceStateBooted
}

// IsShutdown returns true if the device is fully shut down
func (d *Device) IsShutdown() bool {
	return d.State == DeviceStateShutdown
}

// SimctlDevice represents a device from simctl JSON output
type SimctlDevice struct {
	UDID                 string  `json:"udid"`
	Name                 string  `json:"name"`
	State                string  `json:"state"`
	IsAvailable          bool    `json:"isAvailable"`
	DeviceTypeIdentifier string  `json:"deviceTypeIdentifier"`
	DataPath             string  `json:"dataPath"`
	LogPath              string  `json:"logPath"`
	LastBootedAt         *string `json:"lastBootedAt,omitempty"`
}
