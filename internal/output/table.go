package output

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// WriteDeviceTable renders devices as a text table followed by a count line.
func WriteDeviceTable(w io.Writer, p Painter, devices []DeviceOutput) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No devices found")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Platform", "Name", "State", "OS", "ID"})
	online := 0
	for _, d := range devices {
		if d.Online {
			online++
		}
		name := d.Name
		if name == "" {
			name = "-"
		}
		if err := table.Append([]string{d.Platform, name, p.State(d.State, d.Online), d.OSVersion, d.ID}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d device(s), %d online\n", len(devices), online)
	return err
}
