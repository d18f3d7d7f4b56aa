package output

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/vburojevic/rnsmoke/internal/domain"
)

// NDJSONWriter writes one JSON object per line. It is safe for concurrent use.
type NDJSONWriter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewNDJSONWriter creates a new NDJSON writer
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{encoder: enc}
}

// Write encodes v as one line.
func (w *NDJSONWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoder.Encode(v)
}

// DeviceOutput is one device of either platform.
type DeviceOutput struct {
	Type          string `json:"type"` // Always "device"
	SchemaVersion int    `json:"schemaVersion"`
	Platform      string `json:"platform"`
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	State         string `json:"state"`
	OSVersion     string `json:"os_version,omitempty"`
	Online        bool   `json:"online"`
}

// WaitOutput reports how a wait ended. Found is false on timeout.
type WaitOutput struct {
	Type          string `json:"type"` // Always "wait"
	SchemaVersion int    `json:"schemaVersion"`
	Target        string `json:"target"`
	Found         bool   `json:"found"`
	Detail        string `json:"detail,omitempty"`
	ElapsedMS     int64  `json:"elapsed_ms"`
}

// InfoOutput represents an informational message
type InfoOutput struct {
	Type          string `json:"type"` // Always "info"
	SchemaVersion int    `json:"schemaVersion"`
	Message       string `json:"message"`
	Device        string `json:"device,omitempty"`
}

// ErrorOutput represents an error message for NDJSON output
type ErrorOutput struct {
	Type          string `json:"type"` // Always "error"
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
}

// VersionOutput describes the build.
type VersionOutput struct {
	Type          string `json:"type"` // Always "version"
	SchemaVersion int    `json:"schemaVersion"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
}

// IOSDevice converts a simulator record.
func IOSDevice(d domain.Device) DeviceOutput {
	return DeviceOutput{
		Type:          "device",
		SchemaVersion: SchemaVersion,
		Platform:      "ios",
		ID:            d.UDID,
		Name:          d.Name,
		State:         string(d.State),
		OSVersion:     d.OSVersion,
		Online:        d.IsBooted(),
	}
}

// AndroidDevice converts an adb record.
func AndroidDevice(d domain.AndroidDevice) DeviceOutput {
	return DeviceOutput{
		Type:          "device",
		SchemaVersion: SchemaVersion,
		Platform:      "android",
		ID:            d.ID,
		State:         d.State,
		Online:        d.IsOnline,
	}
}

// WriteWait writes a wait outcome.
func (w *NDJSONWriter) WriteWait(target string, found bool, detail string, elapsed time.Duration) error {
	return w.Write(&WaitOutput{
		Type:          "wait",
		SchemaVersion: SchemaVersion,
		Target:        target,
		Found:         found,
		Detail:        detail,
		ElapsedMS:     elapsed.Milliseconds(),
	})
}

// WriteInfo writes an informational message.
func (w *NDJSONWriter) WriteInfo(message, device string) error {
	return w.Write(&InfoOutput{Type: "info", SchemaVersion: SchemaVersion, Message: message, Device: device})
}

// WriteError writes an error message.
func (w *NDJSONWriter) WriteError(code, message, hint string) error {
	return w.Write(&ErrorOutput{Type: "error", SchemaVersion: SchemaVersion, Code: code, Message: message, Hint: hint})
}

// WriteVersion writes build information.
func (w *NDJSONWriter) WriteVersion(version, commit string) error {
	return w.Write(&VersionOutput{Type: "version", SchemaVersion: SchemaVersion, Version: version, Commit: commit})
}
