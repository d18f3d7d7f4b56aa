package cli

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/vburojevic/rnsmoke/internal/logwatch"
	"github.com/vburojevic/rnsmoke/internal/simulator"
)

// WatchCmd groups log watching commands
type WatchCmd struct {
	File      WatchFileCmd      `cmd:"" help:"Wait for a success or failure marker in a log file"`
	Simulator WatchSimulatorCmd `cmd:"" help:"Wait for a marker in a simulator's live log stream"`
}

// WatchFileCmd waits for markers in a log file
type WatchFileCmd struct {
	Path    string        `arg:"" optional:"" type:"path" help:"Log file (alternatively --channel with --log-dir)"`
	Channel string        `short:"c" help:"Log channel name, e.g. 'React Native' or 'Expo'"`
	LogDir  string        `name:"log-dir" default:"${config_log_dir}" type:"path" help:"Directory holding channel log files"`
	Success string        `short:"s" required:"" help:"Marker that means success"`
	Failure string        `short:"F" help:"Marker that means failure"`
	Regex   bool          `short:"r" help:"Treat markers as regular expressions"`
	Timeout time.Duration `short:"t" default:"${pattern_timeout}" help:"How long to wait"`
}

func markerPattern(expr string, regex bool) (logwatch.Pattern, error) {
	if expr == "" {
		return nil, nil
	}
	if !regex {
		return logwatch.Substring(expr), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid marker %q: %w", expr, err)
	}
	return logwatch.Regexp(re), nil
}

func (c *WatchFileCmd) path() (string, error) {
	if c.Path != "" {
		return c.Path, nil
	}
	if c.Channel == "" || c.LogDir == "" {
		return "", errors.New("pass a log file, or --channel with --log-dir")
	}
	return logwatch.Path(c.LogDir, logwatch.Channel(c.Channel)), nil
}

// Run executes the watch file command
func (c *WatchFileCmd) Run(globals *Globals) error {
	path, err := c.path()
	if err != nil {
		return outputErrorCommon(globals, "INVALID_ARGS", err)
	}
	success, err := markerPattern(c.Success, c.Regex)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_PATTERN", err)
	}
	failure, err := markerPattern(c.Failure, c.Regex)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_PATTERN", err)
	}

	w := logwatch.New(logwatch.WithInterval(globals.interval()), logwatch.WithLogger(globals.logger()))
	start := time.Now()
	res, err := w.WaitForPattern(globals.context(), path, success, failure, c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "WATCH_FAILED", err)
	}

	detail := ""
	switch {
	case res.Successful && res.Failed:
		detail = "success and failure markers both present"
	case res.Successful:
		detail = "success"
	case res.Failed:
		detail = "failure"
	}
	if werr := emitWait(globals, "marker in "+path, res.Found(), detail, time.Since(start)); werr != nil {
		return werr
	}
	if res.Failed {
		return &CLIError{Code: "FAILURE_MARKER", Message: "failure marker found in " + path}
	}
	return nil
}

// WatchSimulatorCmd waits for a marker in a simulator's unified log
type WatchSimulatorCmd struct {
	SimulatorTarget `embed:""`

	Marker    string        `short:"m" required:"" help:"Marker to wait for"`
	Regex     bool          `short:"r" help:"Treat the marker as a regular expression"`
	Process   string        `short:"P" help:"Only lines from this process"`
	Subsystem string        `help:"Only lines whose subsystem starts with this prefix"`
	Predicate string        `help:"Raw NSPredicate (overrides --process and --subsystem)"`
	Timeout   time.Duration `short:"t" default:"${pattern_timeout}" help:"How long to wait"`
}

// Run executes the watch simulator command
func (c *WatchSimulatorCmd) Run(globals *Globals) error {
	ctx := globals.context()
	marker, err := markerPattern(c.Marker, c.Regex)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_PATTERN", err)
	}
	mgr := globals.simulatorManager()
	d, err := c.resolve(ctx, globals, mgr)
	if err != nil {
		return outputErrorCommon(globals, "DEVICE_NOT_FOUND", err)
	}

	stream, err := mgr.StartLogStream(ctx, d.UDID, simulator.LogStreamOptions{
		Process:   c.Process,
		Subsystem: c.Subsystem,
		Predicate: c.Predicate,
	})
	if err != nil {
		return outputErrorCommon(globals, "LOG_STREAM_FAILED", err)
	}
	defer func() {
		if err := stream.Stop(); err != nil {
			globals.logger().Warn("log stream exited with error", zap.Error(err))
		}
	}()

	start := time.Now()
	sw := logwatch.WatchStream(stream.Stdout(), marker,
		logwatch.WithInterval(globals.interval()),
		logwatch.WithLogger(globals.logger()))
	ok, err := sw.Wait(ctx, c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "WATCH_FAILED", err)
	}
	if serr := sw.Err(); !ok && serr != nil {
		return outputErrorCommon(globals, "LOG_STREAM_FAILED", fmt.Errorf("reading simulator log: %w", serr))
	}
	return emitWait(globals, "marker in "+d.Name+" log", ok, sw.Line(), time.Since(start))
}
