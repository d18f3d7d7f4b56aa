package cli

import (
	"errors"
	"time"
)

// AppCmd groups app commands
type AppCmd struct {
	WaitInstalled AppWaitInstalledCmd `cmd:"" name:"wait-installed" help:"Wait until an app is installed on a device"`
}

// AppWaitInstalledCmd waits for an app install
type AppWaitInstalledCmd struct {
	Platform string        `short:"p" required:"" enum:"android,ios" help:"Device platform"`
	ID       string        `arg:"" help:"Android package name or iOS bundle identifier"`
	Device   string        `short:"d" help:"adb serial or simulator UDID/name (default: first online emulator, or RNSMOKE_IOS_SIMULATOR)"`
	Version  string        `name:"os-version" default:"${config_ios_version}" help:"iOS version used with a simulator name"`
	Timeout  time.Duration `short:"t" default:"${app_timeout}" help:"How long to wait"`
}

// Run executes the app wait-installed command
func (c *AppWaitInstalledCmd) Run(globals *Globals) error {
	ctx := globals.context()
	start := time.Now()

	if c.Platform == "android" {
		mgr := globals.androidManager("")
		serial := c.Device
		if serial == "" {
			emulators, err := mgr.ListEmulators(ctx)
			if err != nil {
				return outputErrorCommon(globals, "LIST_FAILED", err)
			}
			if len(emulators) == 0 {
				return outputErrorCommon(globals, "DEVICE_NOT_FOUND", errors.New("no online emulator; pass --device"))
			}
			serial = emulators[0].ID
		}
		ok, err := mgr.WaitUntilAppInstalled(ctx, serial, c.ID, c.Timeout)
		if err != nil {
			return outputErrorCommon(globals, "WAIT_FAILED", err)
		}
		return emitWait(globals, "app "+c.ID+" installed", ok, serial, time.Since(start))
	}

	mgr := globals.simulatorManager()
	d, err := SimulatorTarget{Device: c.Device, Version: c.Version}.resolve(ctx, globals, mgr)
	if err != nil {
		return outputErrorCommon(globals, "DEVICE_NOT_FOUND", err)
	}
	ok, err := mgr.WaitUntilAppInstalled(ctx, d.UDID, c.ID, c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "WAIT_FAILED", err)
	}
	return emitWait(globals, "app "+c.ID+" installed", ok, d.UDID, time.Since(start))
}
