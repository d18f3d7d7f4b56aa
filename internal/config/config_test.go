package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NotNil(t, cfg)
	assert.Equal(t, "ndjson", cfg.Format)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, "adb", cfg.Android.AdbPath)
	assert.Equal(t, "xcrun", cfg.IOS.XcrunPath)
	assert.Equal(t, "http://127.0.0.1:4723", cfg.Appium.URL)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, "5m", cfg.Timeouts.Boot)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("returns defaults when no config file exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Chdir(tmpDir)
		t.Setenv("HOME", tmpDir)
		t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "ndjson", cfg.Format)
		assert.Empty(t, ConfigFile())
	})

	t.Run("finds config in working directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Chdir(tmpDir)
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".rnsmoke.yaml"), []byte("android:\n  avd: Pixel_7_API_34\n"), 0o644))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "Pixel_7_API_34", cfg.Android.AVD)
		assert.Equal(t, "adb", cfg.Android.AdbPath, "unset keys keep defaults")
		assert.Equal(t, filepath.Join(tmpDir, ".rnsmoke.yaml"), ConfigFile())
	})

	t.Run("rejects malformed durations", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Chdir(tmpDir)
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".rnsmoke.yaml"), []byte("timeouts:\n  poll_interval: fast\n"), 0o644))

		cfg, err := Load()
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "timeouts.poll_interval")
	})
}

func TestLoadFromFile(t *testing.T) {
	t.Run("loads config from file", func(t *testing.T) {
		configContent := `
format: text
verbose: true
workspace: /work/AwesomeProject
android:
  avd: Nexus_5X
ios:
  simulator: "iPhone 15"
  version: "17.0"
timeouts:
  boot: 3m
retry:
  attempts: 5
`
		configPath := filepath.Join(t.TempDir(), "rnsmoke.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

		cfg, err := LoadFromFile(configPath)
		require.NoError(t, err)

		assert.Equal(t, "text", cfg.Format)
		assert.True(t, cfg.Verbose)
		assert.Equal(t, "/work/AwesomeProject", cfg.Workspace)
		assert.Equal(t, "Nexus_5X", cfg.Android.AVD)
		assert.Equal(t, "iPhone 15", cfg.IOS.Simulator)
		assert.Equal(t, "17.0", cfg.IOS.Version)
		assert.Equal(t, "3m", cfg.Timeouts.Boot)
		assert.Equal(t, "1m", cfg.Timeouts.Shutdown)
		assert.Equal(t, 5, cfg.Retry.Attempts)
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		_, err := LoadFromFile("/nonexistent/rnsmoke.yaml")
		assert.Error(t, err)
	})

	t.Run("returns error for invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("android: [unclosed"), 0o644))
		_, err := LoadFromFile(configPath)
		assert.Error(t, err)
	})

	t.Run("returns error for malformed duration", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "rnsmoke.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("retry:\n  poll_timeout: 10 seconds\n"), 0o644))
		_, err := LoadFromFile(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retry.poll_timeout")
	})
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"RNSMOKE_ANDROID_AVD":   "Pixel_7_API_34",
		"RNSMOKE_IOS_SIMULATOR": "iPhone 15 Pro",
		"RNSMOKE_IOS_VERSION":   "17.2",
		"RNSMOKE_WORKSPACE":     "/tmp/app",
		"RNSMOKE_APPIUM_URL":    "http://localhost:4724",
		"RNSMOKE_VERBOSE":       "1",
	}
	cfg := Default()
	applyEnvOverrides(cfg, func(k string) string { return env[k] })

	assert.Equal(t, "Pixel_7_API_34", cfg.Android.AVD)
	assert.Equal(t, "iPhone 15 Pro", cfg.IOS.Simulator)
	assert.Equal(t, "17.2", cfg.IOS.Version)
	assert.Equal(t, "/tmp/app", cfg.Workspace)
	assert.Equal(t, "http://localhost:4724", cfg.Appium.URL)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "ndjson", cfg.Format, "unset variables leave values alone")
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 3*time.Minute, Duration("3m", time.Second))
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("soon", time.Second))
	assert.Equal(t, time.Second, Duration("-5s", time.Second))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Timeouts.Pattern = "two minutes"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeouts.pattern")
}
