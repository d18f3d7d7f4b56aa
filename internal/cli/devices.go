package cli

import (
	"errors"

	"go.uber.org/zap"

	"github.com/vburojevic/rnsmoke/internal/output"
)

// DevicesCmd lists devices on both platforms
type DevicesCmd struct {
	Platform string `short:"p" default:"all" enum:"all,android,ios" help:"Platform to list"`
	Online   bool   `short:"o" help:"Show only booted simulators and online emulators"`
}

// Run executes the devices command
func (c *DevicesCmd) Run(globals *Globals) error {
	ctx := globals.context()
	var (
		devices []output.DeviceOutput
		errs    []error
	)

	if c.Platform != "ios" {
		list, err := globals.androidManager("").ListDevices(ctx)
		if err != nil {
			errs = append(errs, err)
			globals.logger().Warn("android listing failed", zap.Error(err))
		}
		for _, d := range list {
			devices = append(devices, output.AndroidDevice(d))
		}
	}
	if c.Platform != "android" {
		list, err := globals.simulatorManager().ListDevices(ctx)
		if err != nil {
			errs = append(errs, err)
			globals.logger().Warn("ios listing failed", zap.Error(err))
		}
		for _, d := range list {
			devices = append(devices, output.IOSDevice(d))
		}
	}

	// With both platforms requested, one missing toolchain is not fatal.
	want := 1
	if c.Platform == "all" {
		want = 2
	}
	if len(errs) == want {
		return outputErrorCommon(globals, "LIST_FAILED", errors.Join(errs...))
	}

	if c.Online {
		filtered := devices[:0]
		for _, d := range devices {
			if d.Online {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	if globals.Format == "ndjson" {
		w := globals.ndjson()
		for _, d := range devices {
			if err := w.Write(d); err != nil {
				return err
			}
		}
		return nil
	}
	return output.WriteDeviceTable(globals.Stdout, output.NewPainter(globals.Stdout), devices)
}
