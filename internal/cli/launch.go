package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vburojevic/rnsmoke/internal/launch"
	"github.com/vburojevic/rnsmoke/internal/output"
)

// LaunchCmd groups launch.json commands
type LaunchCmd struct {
	Workspace string `short:"W" default:"${config_workspace}" type:"path" help:"Project directory containing .vscode/launch.json (env RNSMOKE_WORKSPACE)"`

	Show   LaunchShowCmd   `cmd:"" help:"Print configurations"`
	Update LaunchUpdateCmd `cmd:"" help:"Merge fields into a configuration"`
	Wait   LaunchWaitCmd   `cmd:"" help:"Wait until a configuration contains the given fields"`
}

func (c *LaunchCmd) store(globals *Globals) (*launch.Store, error) {
	if c.Workspace == "" {
		return nil, errors.New("no workspace; pass --workspace or set RNSMOKE_WORKSPACE")
	}
	return launch.Open(c.Workspace,
		launch.WithInterval(globals.interval()),
		launch.WithLogger(globals.logger())), nil
}

// parseFields turns key=value pairs into a patch. Values that parse as JSON
// keep their type, anything else is a string.
func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		fields[key] = v
	}
	return fields, nil
}

// LaunchShowCmd prints one or all configurations
type LaunchShowCmd struct {
	Name string `arg:"" optional:"" help:"Configuration name"`
}

// Run executes the launch show command
func (c *LaunchShowCmd) Run(parent *LaunchCmd, globals *Globals) error {
	store, err := parent.store(globals)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_ARGS", err)
	}

	if c.Name != "" {
		cfg, err := store.Lookup(c.Name)
		if err != nil {
			return outputErrorCommon(globals, "LAUNCH_READ_FAILED", err)
		}
		if globals.Format == "ndjson" {
			_, err = fmt.Fprintf(globals.Stdout, `{"type":"launch_config","schemaVersion":%d,"config":%s}`+"\n", output.SchemaVersion, minify(cfg.Raw))
			return err
		}
		_, err = fmt.Fprintln(globals.Stdout, cfg.Raw)
		return err
	}

	doc, err := store.Read()
	if err != nil {
		return outputErrorCommon(globals, "LAUNCH_READ_FAILED", err)
	}
	for _, cfg := range doc.Configurations {
		if globals.Format == "ndjson" {
			if err := globals.ndjson().Write(map[string]any{"type": "launch_config", "schemaVersion": output.SchemaVersion, "config": cfg}); err != nil {
				return err
			}
			continue
		}
		p := output.NewPainter(globals.Stdout)
		fmt.Fprintf(globals.Stdout, "%s  %v %v\n", p.Render(output.Styles.Header, cfg.Name()), cfg["type"], cfg["request"])
	}
	return nil
}

func minify(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return string(b)
}

// LaunchUpdateCmd merges fields into a configuration
type LaunchUpdateCmd struct {
	Name   string   `arg:"" help:"Configuration name"`
	Fields []string `arg:"" help:"key=value pairs; JSON values keep their type"`
}

// Run executes the launch update command
func (c *LaunchUpdateCmd) Run(parent *LaunchCmd, globals *Globals) error {
	store, err := parent.store(globals)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_ARGS", err)
	}
	patch, err := parseFields(c.Fields)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_ARGS", err)
	}
	if err := store.Update(c.Name, patch); err != nil {
		return outputErrorCommon(globals, "LAUNCH_UPDATE_FAILED", err)
	}
	emitInfo(globals, "launch configuration updated", c.Name)
	return nil
}

// LaunchWaitCmd waits for a configuration to converge
type LaunchWaitCmd struct {
	Name    string        `arg:"" help:"Configuration name"`
	Fields  []string      `arg:"" help:"Expected key=value pairs"`
	Timeout time.Duration `short:"t" default:"${launch_timeout}" help:"How long to wait"`
}

// Run executes the launch wait command
func (c *LaunchWaitCmd) Run(parent *LaunchCmd, globals *Globals) error {
	store, err := parent.store(globals)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_ARGS", err)
	}
	expected, err := parseFields(c.Fields)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_ARGS", err)
	}
	start := time.Now()
	ok, err := store.WaitUntilUpdated(globals.context(), c.Name, expected, c.Timeout)
	if err != nil {
		return outputErrorCommon(globals, "WAIT_FAILED", err)
	}
	return emitWait(globals, "launch configuration "+c.Name, ok, "", time.Since(start))
}
