package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/vburojevic/rnsmoke/internal/cli"
	"github.com/vburojevic/rnsmoke/internal/config"
)

func main() {
	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Config values become flag defaults; explicit flags still win.
	vars := kong.Vars{
		"config_format":      cfg.Format,
		"config_log_file":    cfg.LogFile,
		"config_avd":         cfg.Android.AVD,
		"config_ios_version": cfg.IOS.Version,
		"config_log_dir":     cfg.LogDir,
		"config_workspace":   cfg.Workspace,
		"config_appium_url":  cfg.Appium.URL,
		"config_appium_path": cfg.Appium.Path,
		"boot_timeout":       cfg.Timeouts.Boot,
		"shutdown_timeout":   cfg.Timeouts.Shutdown,
		"app_timeout":        cfg.Timeouts.AppInstall,
		"pattern_timeout":    cfg.Timeouts.Pattern,
		"launch_timeout":     cfg.Timeouts.Launch,
	}

	ctx := kong.Parse(&c,
		kong.Name("rnsmoke"),
		kong.Description("rnsmoke: drive emulators, simulators, log markers and launch.json for React Native smoke tests"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	globals := cli.NewGlobalsWithConfig(&c, cfg)

	logger, err := cli.NewLogger(globals.Verbose, globals.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create logger: %v\n", err)
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()
	globals.Logger = logger

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	globals.Ctx = sigCtx

	if err := ctx.Run(globals); err != nil {
		var cliErr *cli.CLIError
		if !errors.As(err, &cliErr) && !errors.Is(err, cli.ErrTimedOut) {
			// Commands report their own failures; anything else is unexpected.
			logger.Error("command failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}
