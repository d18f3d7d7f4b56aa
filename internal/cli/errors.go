package cli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vburojevic/rnsmoke/internal/android"
	"github.com/vburojevic/rnsmoke/internal/appium"
	"github.com/vburojevic/rnsmoke/internal/domain"
	"github.com/vburojevic/rnsmoke/internal/launch"
	"github.com/vburojevic/rnsmoke/internal/poll"
)

// ErrTimedOut is returned by wait commands whose condition never held. The
// outcome has already been written; main only turns it into an exit code.
var ErrTimedOut = errors.New("timed out")

// CLIError is a structured error used for consistent NDJSON/text emission.
type CLIError struct {
	Code    string
	Message string
	Hint    string
}

func (e *CLIError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// outputErrorCommon normalizes error emission across commands, respecting
// ndjson vs text formats so scripts always get machine-readable failures.
func outputErrorCommon(globals *Globals, code string, err error) error {
	code, hint := classify(code, err)
	message := err.Error()
	if globals != nil && globals.Format == "ndjson" {
		_ = globals.ndjson().WriteError(code, message, hint)
	} else if globals != nil {
		fmt.Fprintf(globals.Stderr, "Error [%s]: %s\n", code, message)
		if hint != "" {
			fmt.Fprintf(globals.Stderr, "Hint: %s\n", hint)
		}
	}
	return &CLIError{Code: code, Message: message, Hint: hint}
}

// classify refines fallback into a specific code for known error types.
func classify(fallback string, err error) (string, string) {
	var (
		queryErr     *domain.DeviceQueryError
		stateErr     *domain.StateError
		notFound     *domain.NotFoundError
		launchErr    *launch.NotFoundError
		condErr      *poll.ConditionError
		exhausted    *poll.ExhaustedError
		webdriverErr *appium.Error
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "CANCELED", ""
	case errors.Is(err, android.ErrExited):
		return "EMULATOR_EXITED", "List installed AVDs with `emulator -list-avds`"
	case errors.As(err, &stateErr):
		return "INVALID_STATE", fmt.Sprintf("Shut the device down first: `rnsmoke simulator shutdown %s`", stateErr.DeviceID)
	case errors.As(err, &notFound):
		return "DEVICE_NOT_FOUND", "List devices with `rnsmoke devices`"
	case errors.As(err, &launchErr):
		if launchErr.Name == "" {
			return "LAUNCH_FILE_NOT_FOUND", "Pass --workspace or set RNSMOKE_WORKSPACE"
		}
		return "LAUNCH_CONFIG_NOT_FOUND", "Show configurations with `rnsmoke launch show`"
	case errors.As(err, &queryErr):
		return "DEVICE_QUERY_FAILED", hintForTooling(err)
	case errors.As(err, &exhausted):
		return "RETRIES_EXHAUSTED", ""
	case errors.As(err, &condErr):
		return "CONDITION_FAILED", hintForTooling(err)
	case errors.As(err, &webdriverErr):
		return "WEBDRIVER_" + strings.ToUpper(strings.ReplaceAll(webdriverErr.Code, " ", "_")), ""
	}
	return fallback, hintForTooling(err)
}

func hintForTooling(err error) string {
	switch {
	case isCommandNotFound(err, "adb"), isCommandNotFound(err, "emulator"):
		return "Android SDK tools not found; add $ANDROID_HOME/platform-tools and $ANDROID_HOME/emulator to PATH, or set android.adb_path"
	case isCommandNotFound(err, "xcrun"):
		return "xcrun not found; install Xcode Command Line Tools with `xcode-select --install`"
	case err != nil && strings.Contains(err.Error(), "invalid active developer path"):
		return "Xcode CLI tools not configured; run `xcode-select --install`"
	case err != nil && strings.Contains(err.Error(), "cannot connect to daemon"):
		return "adb server is not running; try `adb start-server`"
	}
	return ""
}

func isCommandNotFound(err error, name string) bool {
	if err == nil {
		return false
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
		return execErr.Name == name || strings.HasSuffix(execErr.Name, "/"+name)
	}
	return false
}
