package domain

import (
	"fmt"
	"strings"
)

// DeviceQueryError is returned when a device listing command fails or
// produces output that cannot be parsed.
type DeviceQueryError struct {
	Platform string
	Command  string
	Stderr   string
	Err      error
}

func (e *DeviceQueryError) Error() string {
	msg := fmt.Sprintf("%s device query failed (%s): %v", e.Platform, e.Command, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *DeviceQueryError) Unwrap() error { return e.Err }

// StateError reports an operation attempted on a device in the wrong state.
type StateError struct {
	DeviceID string
	Op       string
	Want     DeviceState
	Got      DeviceState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s device %s: state is %q, want %q", e.Op, e.DeviceID, e.Got, e.Want)
}

// NotFoundError reports a device that is absent from the latest listing.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return "device not found: " + e.Query
}
