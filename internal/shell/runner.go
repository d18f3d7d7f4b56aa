// Package shell runs the external tools (adb, emulator, xcrun) the harness
// observes devices through.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultCommandTimeout guards calls made without a context deadline.
const DefaultCommandTimeout = 2 * time.Minute

// CommandError describes a command that could not start or exited non-zero.
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed", e.CommandLine())
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// CommandLine renders the command for diagnostics.
func (e *CommandError) CommandLine() string {
	return strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
}

// Output returns stdout and stderr combined, the way tools like simctl
// report state conflicts.
func (e *CommandError) Output() string {
	return e.Stdout + e.Stderr
}

// Runner executes a command to completion and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Log *zap.Logger
}

// NewExecRunner creates a runner that logs each invocation at debug level.
func NewExecRunner(log *zap.Logger) *ExecRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecRunner{Log: log}
}

// Run executes name with args. Non-zero exits return *CommandError with the
// captured stderr.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCommandTimeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Debug("command finished",
		zap.String("cmd", name),
		zap.Strings("args", args),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))

	if err != nil {
		cerr := &CommandError{
			Command: name,
			Args:    args,
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
			Err:     err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), cerr
	}
	return stdout.Bytes(), nil
}
