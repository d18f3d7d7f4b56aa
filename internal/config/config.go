// Package config loads rnsmoke settings from a YAML file and RNSMOKE_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format"`
	Verbose bool   `mapstructure:"verbose"`
	LogFile string `mapstructure:"log_file"`

	Android  AndroidConfig  `mapstructure:"android"`
	IOS      IOSConfig      `mapstructure:"ios"`
	Appium   AppiumConfig   `mapstructure:"appium"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts"`
	Retry    RetryConfig    `mapstructure:"retry"`

	// Workspace is the React Native project whose .vscode/launch.json is edited.
	Workspace string `mapstructure:"workspace"`
	// LogDir holds the extension's per-channel log files.
	LogDir string `mapstructure:"log_dir"`
}

// AndroidConfig selects the emulator and the tools that drive it.
type AndroidConfig struct {
	AVD          string `mapstructure:"avd"`
	AdbPath      string `mapstructure:"adb_path"`
	EmulatorPath string `mapstructure:"emulator_path"`
}

// IOSConfig selects the simulator.
type IOSConfig struct {
	Simulator string `mapstructure:"simulator"`
	Version   string `mapstructure:"version"`
	XcrunPath string `mapstructure:"xcrun_path"`
}

// AppiumConfig points at the Appium server.
type AppiumConfig struct {
	URL  string `mapstructure:"url"`
	Path string `mapstructure:"path"`
}

// TimeoutsConfig holds wait budgets as Go duration strings.
type TimeoutsConfig struct {
	Boot         string `mapstructure:"boot"`
	Shutdown     string `mapstructure:"shutdown"`
	AppInstall   string `mapstructure:"app_install"`
	Pattern      string `mapstructure:"pattern"`
	Launch       string `mapstructure:"launch"`
	PollInterval string `mapstructure:"poll_interval"`
}

// RetryConfig bounds retried UI steps.
type RetryConfig struct {
	Attempts    int    `mapstructure:"attempts"`
	PollTimeout string `mapstructure:"poll_timeout"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format: "ndjson",
		Android: AndroidConfig{
			AdbPath:      "adb",
			EmulatorPath: "emulator",
		},
		IOS: IOSConfig{
			XcrunPath: "xcrun",
		},
		Appium: AppiumConfig{
			URL:  "http://127.0.0.1:4723",
			Path: "appium",
		},
		Timeouts: TimeoutsConfig{
			Boot:         "5m",
			Shutdown:     "1m",
			AppInstall:   "5m",
			Pattern:      "2m",
			Launch:       "10s",
			PollInterval: "2s",
		},
		Retry: RetryConfig{
			Attempts:    3,
			PollTimeout: "10s",
		},
	}
}

// Load loads configuration from files and environment
// Config file search order (highest precedence first):
// 1. ./.rnsmoke.yaml or ./.rnsmoke.yml
// 2. ~/.rnsmoke.yaml or ~/.rnsmoke.yml
// 3. $XDG_CONFIG_HOME/rnsmoke/config.yaml (or ~/.config/rnsmoke/config.yaml)
func Load() (*Config, error) {
	cfg := Default()

	if configFile := findConfigFile(); configFile != "" {
		if err := readInto(configFile, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := readInto(path, cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func readInto(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// ConfigFile returns the path to the config file that would be loaded
func ConfigFile() string {
	return findConfigFile()
}

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	names := []string{".rnsmoke.yaml", ".rnsmoke.yml", "rnsmoke.yaml", "rnsmoke.yml"}

	var searchPaths []string
	if cwd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, home)
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(configDir, "rnsmoke"))
	}

	for i, dir := range searchPaths {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		// config.yaml only counts inside the dedicated config directory.
		if i == len(searchPaths)-1 {
			path := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set("RNSMOKE_FORMAT", &cfg.Format)
	set("RNSMOKE_LOG_FILE", &cfg.LogFile)
	set("RNSMOKE_ANDROID_AVD", &cfg.Android.AVD)
	set("RNSMOKE_ADB_PATH", &cfg.Android.AdbPath)
	set("RNSMOKE_EMULATOR_PATH", &cfg.Android.EmulatorPath)
	set("RNSMOKE_IOS_SIMULATOR", &cfg.IOS.Simulator)
	set("RNSMOKE_IOS_VERSION", &cfg.IOS.Version)
	set("RNSMOKE_XCRUN_PATH", &cfg.IOS.XcrunPath)
	set("RNSMOKE_APPIUM_URL", &cfg.Appium.URL)
	set("RNSMOKE_WORKSPACE", &cfg.Workspace)
	set("RNSMOKE_LOG_DIR", &cfg.LogDir)
	if v := getenv("RNSMOKE_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
}

// Duration parses one of the duration strings, falling back to def when the
// value is empty or invalid.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// Validate rejects malformed duration strings.
func (c *Config) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"timeouts.boot", c.Timeouts.Boot},
		{"timeouts.shutdown", c.Timeouts.Shutdown},
		{"timeouts.app_install", c.Timeouts.AppInstall},
		{"timeouts.pattern", c.Timeouts.Pattern},
		{"timeouts.launch", c.Timeouts.Launch},
		{"timeouts.poll_interval", c.Timeouts.PollInterval},
		{"retry.poll_timeout", c.Retry.PollTimeout},
	} {
		if f.value == "" {
			continue
		}
		if _, err := time.ParseDuration(f.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", f.name, f.value, err)
		}
	}
	return nil
}
