package cli

import (
	"fmt"
	"time"

	"github.com/vburojevic/rnsmoke/internal/output"
)

// emitWait reports the outcome of a wait and turns a timeout into
// ErrTimedOut.
func emitWait(globals *Globals, target string, found bool, detail string, elapsed time.Duration) error {
	if globals.Format == "ndjson" {
		if err := globals.ndjson().WriteWait(target, found, detail, elapsed); err != nil {
			return err
		}
	} else {
		p := output.NewPainter(globals.Stdout)
		line := fmt.Sprintf("%s: %s (%s)", target, p.Outcome(found), elapsed.Round(time.Millisecond))
		if detail != "" {
			line += " " + p.Render(output.Styles.Value, detail)
		}
		fmt.Fprintln(globals.Stdout, line)
	}
	if !found {
		return ErrTimedOut
	}
	return nil
}

// emitInfo reports progress that is not a result.
func emitInfo(globals *Globals, message, device string) {
	if globals.Format == "ndjson" {
		_ = globals.ndjson().WriteInfo(message, device)
		return
	}
	p := output.NewPainter(globals.Stdout)
	if device != "" {
		message += " " + p.Render(output.Styles.Label, device)
	}
	fmt.Fprintln(globals.Stdout, message)
}
