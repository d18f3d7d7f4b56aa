package cli

import (
	"context"
	"errors"
	"time"

	"github.com/vburojevic/rnsmoke/internal/domain"
	"github.com/vburojevic/rnsmoke/internal/simulator"
)

// SimulatorCmd groups iOS simulator lifecycle commands
type SimulatorCmd struct {
	Boot        SimulatorBootCmd        `cmd:"" help:"Boot a simulator"`
	Shutdown    SimulatorShutdownCmd    `cmd:"" help:"Shut a simulator down"`
	Erase       SimulatorEraseCmd       `cmd:"" help:"Erase a shut-down simulator"`
	Wait        SimulatorWaitCmd        `cmd:"" help:"Wait for a simulator state"`
	ShutdownAll SimulatorShutdownAllCmd `cmd:"" name:"shutdown-all" help:"Shut down every booted simulator"`
}

// SimulatorTarget selects a simulator by UDID or name, falling back to the
// configured name and OS version.
type SimulatorTarget struct {
	Device  string `arg:"" optional:"" help:"Simulator UDID or name (default: RNSMOKE_IOS_SIMULATOR)"`
	Version string `name:"os-version" default:"${config_ios_version}" help:"iOS version used with a simulator name"`
}

func (t SimulatorTarget) resolve(ctx context.Context, globals *Globals, mgr *simulator.Manager) (*domain.Device, error) {
	name := t.Device
	if name == "" {
		name = globals.Config.IOS.Simulator
	}
	if name == "" {
		return nil, errors.New("no simulator given; pass a UDID or name, or set RNSMOKE_IOS_SIMULATOR")
	}
	if d, err := mgr.FindDevice(ctx, name); err == nil && (t.Version == "" || d.UDID == name) {
		return d, nil
	}
	return mgr.FindByNameAndVersion(ctx, name, t.Version)
}

// SimulatorBootCmd boots a simulator
type SimulatorBootCmd struct {
	SimulatorTarget `embed:""`

	Wait    bool          `short:"w" help:"Wait until booted"`
	Timeout time.Duration `short:"t" default:"${boot_timeout}" help:"How long --wait waits"`
}

// Run executes the simulator boot command
func (c *SimulatorBootCmd) Run(globals *Globals) error {
	ctx := globals.context()
	mgr := globals.simulatorManager()
	d, err := c.resolve(ctx, globals, mgr)
	if err != nil {
		return outputErrorCommon(globals, "DEVICE_NOT_FOUND", err)
	}
	if !c.Wait {
		if err := mgr.Boot(ctx, d.UDID); err != nil {
			return outputErrorCommon(globals, "BOOT_FAILED", err)
		}
		emitInfo(globals, "simulator booting", d.UDID)
		return nil
	}
	start := time.Now()
	ok, err := mgr.EnsureBooted(ctx, d.UDID, c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "BOOT_FAILED", err)
	}
	return emitWait(globals, "simulator "+d.Name+" booted", ok, d.UDID, time.Since(start))
}

// SimulatorShutdownCmd shuts a simulator down
type SimulatorShutdownCmd struct {
	SimulatorTarget `embed:""`

	Wait    bool          `short:"w" help:"Wait until shut down"`
	Timeout time.Duration `short:"t" default:"${shutdown_timeout}" help:"How long --wait waits"`
}

// Run executes the simulator shutdown command
func (c *SimulatorShutdownCmd) Run(globals *Globals) error {
	ctx := globals.context()
	mgr := globals.simulatorManager()
	d, err := c.resolve(ctx, globals, mgr)
	if err != nil {
		return outputErrorCommon(globals, "DEVICE_NOT_FOUND", err)
	}
	if err := mgr.Shutdown(ctx, d.UDID); err != nil {
		return outputErrorCommon(globals, "SHUTDOWN_FAILED", err)
	}
	if !c.Wait {
		emitInfo(globals, "simulator shutting down", d.UDID)
		return nil
	}
	start := time.Now()
	ok, err := mgr.WaitUntilShutdown(ctx, d.UDID, c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "WAIT_FAILED", err)
	}
	return emitWait(globals, "simulator "+d.Name+" shut down", ok, d.UDID, time.Since(start))
}

// SimulatorEraseCmd erases a simulator
type SimulatorEraseCmd struct {
	SimulatorTarget `embed:""`
}

// Run executes the simulator erase command
func (c *SimulatorEraseCmd) Run(globals *Globals) error {
	ctx := globals.context()
	mgr := globals.simulatorManager()
	d, err := c.resolve(ctx, globals, mgr)
	if err != nil {
		return outputErrorCommon(globals, "DEVICE_NOT_FOUND", err)
	}
	if err := mgr.Erase(ctx, d.UDID); err != nil {
		return outputErrorCommon(globals, "ERASE_FAILED", err)
	}
	emitInfo(globals, "simulator erased", d.UDID)
	return nil
}

// SimulatorWaitCmd waits for a simulator state
type SimulatorWaitCmd struct {
	SimulatorTarget `embed:""`

	State   string        `short:"s" default:"booted" enum:"booted,shutdown" help:"State to wait for"`
	Timeout time.Duration `short:"t" default:"${boot_timeout}" help:"How long to wait"`
}

// Run executes the simulator wait command
func (c *SimulatorWaitCmd) Run(globals *Globals) error {
	ctx := globals.context()
	mgr := globals.simulatorManager()
	d, err := c.resolve(ctx, globals, mgr)
	if err != nil {
		return outputErrorCommon(globals, "DEVICE_NOT_FOUND", err)
	}

	wait := mgr.WaitUntilBooted
	if c.State == "shutdown" {
		wait = mgr.WaitUntilShutdown
	}
	start := time.Now()
	ok, err := wait(ctx, d.UDID, c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "WAIT_FAILED", err)
	}
	return emitWait(globals, "simulator "+d.Name+" "+c.State, ok, d.UDID, time.Since(start))
}

// SimulatorShutdownAllCmd shuts down every simulator
type SimulatorShutdownAllCmd struct {
	Timeout time.Duration `short:"t" default:"${shutdown_timeout}" help:"How long to wait for all simulators to stop"`
}

// Run executes the simulator shutdown-all command
func (c *SimulatorShutdownAllCmd) Run(globals *Globals) error {
	start := time.Now()
	ok, err := globals.simulatorManager().ShutdownAll(globals.context(), c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "SHUTDOWN_FAILED", err)
	}
	return emitWait(globals, "all simulators shut down", ok, "", time.Since(start))
}
