package cli

import (
	"errors"
	"time"

	"github.com/vburojevic/rnsmoke/internal/android"
)

// EmulatorCmd groups Android emulator lifecycle commands
type EmulatorCmd struct {
	Start   EmulatorStartCmd   `cmd:"" help:"Start an emulator and optionally wait for it to come online"`
	Wait    EmulatorWaitCmd    `cmd:"" help:"Wait until the emulator is online"`
	Kill    EmulatorKillCmd    `cmd:"" help:"Terminate one emulator"`
	KillAll EmulatorKillAllCmd `cmd:"" name:"kill-all" help:"Terminate every running emulator"`
}

// EmulatorStartCmd starts the configured AVD
type EmulatorStartCmd struct {
	AVD        string        `name:"avd" default:"${config_avd}" help:"AVD name (env RNSMOKE_ANDROID_AVD)"`
	Wipe       bool          `help:"Wipe user data before booting"`
	NoSnapshot bool          `name:"no-snapshot" help:"Cold boot without loading or saving a snapshot"`
	Wait       bool          `short:"w" help:"Wait until the emulator is online"`
	Timeout    time.Duration `short:"t" default:"${boot_timeout}" help:"How long --wait waits"`
	Extra      []string      `arg:"" optional:"" help:"Extra emulator arguments"`
}

// Run executes the emulator start command
func (c *EmulatorStartCmd) Run(globals *Globals) error {
	if c.AVD == "" {
		return outputErrorCommon(globals, "MISSING_AVD", errors.New("no AVD given; pass --avd or set RNSMOKE_ANDROID_AVD"))
	}
	ctx := globals.context()
	mgr := globals.androidManager(c.AVD)

	emu, err := mgr.Start(ctx, android.StartOptions{WipeData: c.Wipe, NoSnapshot: c.NoSnapshot, ExtraArgs: c.Extra})
	if err != nil {
		return outputErrorCommon(globals, "START_FAILED", err)
	}
	if emu.AlreadyRunning {
		emitInfo(globals, "emulator "+mgr.AVD()+" already running", emu.Serial)
	} else {
		emitInfo(globals, "emulator starting", mgr.AVD())
	}
	if !c.Wait {
		return nil
	}

	start := time.Now()
	serial, ok, err := mgr.WaitUntilStarted(ctx, emu, c.Timeout)
	if err != nil {
		_ = emu.Stop()
		return outputErrorCommon(globals, "WAIT_FAILED", err)
	}
	if !ok {
		_ = emu.Stop()
	}
	return emitWait(globals, "emulator "+mgr.AVD()+" online", ok, serial, time.Since(start))
}

// EmulatorWaitCmd waits for the configured AVD to come online
type EmulatorWaitCmd struct {
	AVD     string        `name:"avd" default:"${config_avd}" help:"AVD name; empty accepts any emulator"`
	Timeout time.Duration `short:"t" default:"${boot_timeout}" help:"How long to wait"`
}

// Run executes the emulator wait command
func (c *EmulatorWaitCmd) Run(globals *Globals) error {
	start := time.Now()
	serial, ok, err := globals.androidManager(c.AVD).WaitUntilBooted(globals.context(), c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "WAIT_FAILED", err)
	}
	target := "emulator online"
	if c.AVD != "" {
		target = "emulator " + c.AVD + " online"
	}
	return emitWait(globals, target, ok, serial, time.Since(start))
}

// EmulatorKillCmd terminates one emulator
type EmulatorKillCmd struct {
	Serial  string        `arg:"" help:"adb serial, e.g. emulator-5554"`
	Wait    bool          `short:"w" help:"Wait until it has left adb devices"`
	Timeout time.Duration `short:"t" default:"${shutdown_timeout}" help:"How long --wait waits"`
}

// Run executes the emulator kill command
func (c *EmulatorKillCmd) Run(globals *Globals) error {
	ctx := globals.context()
	mgr := globals.androidManager("")
	if err := mgr.Terminate(ctx, c.Serial); err != nil {
		return outputErrorCommon(globals, "KILL_FAILED", err)
	}
	if !c.Wait {
		emitInfo(globals, "emulator terminating", c.Serial)
		return nil
	}
	start := time.Now()
	ok, err := mgr.WaitUntilTerminated(ctx, c.Serial, c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "WAIT_FAILED", err)
	}
	return emitWait(globals, "emulator "+c.Serial+" terminated", ok, "", time.Since(start))
}

// EmulatorKillAllCmd terminates every emulator
type EmulatorKillAllCmd struct {
	Timeout time.Duration `short:"t" default:"${shutdown_timeout}" help:"How long to wait for all emulators to exit"`
}

// Run executes the emulator kill-all command
func (c *EmulatorKillAllCmd) Run(globals *Globals) error {
	start := time.Now()
	ok, err := globals.androidManager("").TerminateAll(globals.context(), c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "KILL_FAILED", err)
	}
	return emitWait(globals, "all emulators terminated", ok, "", time.Since(start))
}
