package domain

import "strings"

// AndroidDevice is one line of `adb devices` output.
type AndroidDevice struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	IsOnline bool   `json:"isOnline"`
}

// IsEmulator reports whether the serial belongs to a local emulator.
func (d AndroidDevice) IsEmulator() bool {
	return strings.HasPrefix(d.ID, "emulator-")
}
