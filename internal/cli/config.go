package cli

import (
	"fmt"

	"github.com/vburojevic/rnsmoke/internal/config"
	"github.com/vburojevic/rnsmoke/internal/output"
)

// ConfigCmd shows configuration
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" default:"withargs" help:"Show current configuration"`
	Path ConfigPathCmd `cmd:"" help:"Show configuration file path"`
}

// ConfigShowCmd shows current configuration
type ConfigShowCmd struct{}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}

	if globals.Format == "ndjson" {
		return globals.ndjson().Write(map[string]any{
			"type":          "config",
			"schemaVersion": output.SchemaVersion,
			"format":        cfg.Format,
			"verbose":       cfg.Verbose,
			"workspace":     cfg.Workspace,
			"log_dir":       cfg.LogDir,
			"android":       cfg.Android,
			"ios":           cfg.IOS,
			"appium":        cfg.Appium,
			"timeouts":      cfg.Timeouts,
			"retry":         cfg.Retry,
		})
	}

	p := output.NewPainter(globals.Stdout)
	section := func(name string) { fmt.Fprintln(globals.Stdout, p.Render(output.Styles.Header, name)) }
	field := func(name string, v any) {
		fmt.Fprintf(globals.Stdout, "  %s %v\n", p.Render(output.Styles.Label, fmt.Sprintf("%-14s", name+":")), v)
	}

	section("Current Configuration:")
	field("format", cfg.Format)
	field("workspace", cfg.Workspace)
	field("log_dir", cfg.LogDir)
	section("Android:")
	field("avd", cfg.Android.AVD)
	field("adb_path", cfg.Android.AdbPath)
	field("emulator_path", cfg.Android.EmulatorPath)
	section("iOS:")
	field("simulator", cfg.IOS.Simulator)
	field("version", cfg.IOS.Version)
	section("Timeouts:")
	field("boot", cfg.Timeouts.Boot)
	field("shutdown", cfg.Timeouts.Shutdown)
	field("app_install", cfg.Timeouts.AppInstall)
	field("pattern", cfg.Timeouts.Pattern)
	field("launch", cfg.Timeouts.Launch)
	field("poll_interval", cfg.Timeouts.PollInterval)
	return nil
}

// ConfigPathCmd shows which configuration file is loaded
type ConfigPathCmd struct{}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := config.ConfigFile()
	if globals.Format == "ndjson" {
		return globals.ndjson().Write(map[string]any{"type": "config_path", "schemaVersion": output.SchemaVersion, "path": path, "found": path != ""})
	}
	if path == "" {
		path = "(none; using defaults)"
	}
	_, err := fmt.Fprintln(globals.Stdout, path)
	return err
}
