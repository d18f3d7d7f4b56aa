package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vburojevic/rnsmoke/internal/android"
	"github.com/vburojevic/rnsmoke/internal/config"
	"github.com/vburojevic/rnsmoke/internal/output"
	"github.com/vburojevic/rnsmoke/internal/poll"
	"github.com/vburojevic/rnsmoke/internal/simulator"
)

// CLI is the root command structure for rnsmoke
type CLI struct {
	// Global flags
	Format  string `short:"f" default:"${config_format}" enum:"ndjson,text" help:"Output format"`
	Verbose bool   `short:"v" help:"Log debug output to stderr"`
	LogFile string `name:"log-file" default:"${config_log_file}" help:"Write JSON logs to this file"`

	// Commands
	Version   VersionCmd   `cmd:"" help:"Show version information"`
	Devices   DevicesCmd   `cmd:"" help:"List emulators and simulators"`
	Emulator  EmulatorCmd  `cmd:"" help:"Start, wait for and terminate Android emulators"`
	Simulator SimulatorCmd `cmd:"" help:"Boot, shut down, erase and wait for iOS simulators"`
	App       AppCmd       `cmd:"" help:"Wait for app installation"`
	Watch     WatchCmd     `cmd:"" help:"Wait for markers in log files and simulator logs"`
	Launch    LaunchCmd    `cmd:"" help:"Read, edit and wait on .vscode/launch.json"`
	Appium    AppiumCmd    `cmd:"" help:"Run Appium and drive UI steps with retries"`
	Config    ConfigCmd    `cmd:"" help:"Show configuration"`
}

// Globals holds shared state for all commands
type Globals struct {
	Format  string
	Verbose bool
	LogFile string
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config
	Logger  *zap.Logger
	Ctx     context.Context
}

// NewGlobalsWithConfig creates a new Globals instance with config fallbacks
func NewGlobalsWithConfig(cli *CLI, cfg *config.Config) *Globals {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Globals{
		Format:  cli.Format,
		Verbose: cli.Verbose || cfg.Verbose,
		LogFile: cli.LogFile,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
		Logger:  zap.NewNop(),
		Ctx:     context.Background(),
	}
}

// NewLogger builds the process logger: JSON to a file when logFile is set,
// human-readable to stderr when verbose, otherwise nothing.
func NewLogger(verbose bool, logFile string) (*zap.Logger, error) {
	switch {
	case logFile != "":
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{"stderr"}
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		return cfg.Build()
	case verbose:
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	default:
		return zap.NewNop(), nil
	}
}

func (g *Globals) context() context.Context {
	if g.Ctx == nil {
		return context.Background()
	}
	return g.Ctx
}

func (g *Globals) logger() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

func (g *Globals) ndjson() *output.NDJSONWriter {
	return output.NewNDJSONWriter(g.Stdout)
}

func (g *Globals) interval() time.Duration {
	return config.Duration(g.Config.Timeouts.PollInterval, poll.DefaultInterval)
}

// androidManager builds a manager for avd from configuration.
func (g *Globals) androidManager(avd string, opts ...android.Option) *android.Manager {
	cfg := g.Config.Android
	base := []android.Option{
		android.WithAdbPath(cfg.AdbPath),
		android.WithEmulatorPath(cfg.EmulatorPath),
		android.WithPollInterval(g.interval()),
		android.WithLogger(g.logger()),
	}
	return android.NewManager(avd, append(base, opts...)...)
}

func (g *Globals) simulatorManager(opts ...simulator.Option) *simulator.Manager {
	base := []simulator.Option{
		simulator.WithXcrunPath(g.Config.IOS.XcrunPath),
		simulator.WithPollInterval(g.interval()),
		simulator.WithLogger(g.logger()),
	}
	return simulator.NewManager(append(base, opts...)...)
}

// VersionCmd shows version information
type VersionCmd struct{}

// Run executes the version command
func (v *VersionCmd) Run(globals *Globals) error {
	if globals.Format == "ndjson" {
		return globals.ndjson().WriteVersion(Version, Commit)
	}
	_, err := fmt.Fprintf(globals.Stdout, "rnsmoke version %s (%s)\n", Version, Commit)
	return err
}

// Version information (set at build time)
var (
	Version = "dev"
	Commit  = "none"
)
