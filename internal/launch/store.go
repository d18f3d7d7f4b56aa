// Package launch reads and edits a workspace's .vscode/launch.json and waits
// for it to converge on expected values.
package launch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tailscale/hujson"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vburojevic/rnsmoke/internal/poll"
)

// DefaultVersion is written into documents created by Add.
const DefaultVersion = "0.2.0"

// NotFoundError reports a missing launch file or configuration.
type NotFoundError struct {
	Path string
	Name string // empty when the file itself is missing
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return "launch file not found: " + e.Path
	}
	return fmt.Sprintf("launch configuration %q not found in %s", e.Name, e.Path)
}

// Configuration is one entry of "configurations". Keys are kept as decoded
// so unknown fields survive a rewrite.
type Configuration map[string]any

// Name returns the configuration's "name" field.
func (c Configuration) Name() string {
	name, _ := c["name"].(string)
	return name
}

// Document is a decoded launch.json. Top-level keys other than "version" and
// "configurations", such as "compounds" and "inputs", are kept in Extra and
// written back in their original order.
type Document struct {
	Version        string
	Configurations []Configuration
	Extra          map[string]any

	order []string
}

// UnmarshalJSON decodes a launch document, remembering key order.
func (d *Document) UnmarshalJSON(b []byte) error {
	root := gjson.ParseBytes(b)
	if !root.IsObject() {
		return errors.New("launch document is not a JSON object")
	}
	*d = Document{}
	var err error
	root.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		d.order = append(d.order, k)
		switch k {
		case "version":
			err = json.Unmarshal([]byte(value.Raw), &d.Version)
		case "configurations":
			err = json.Unmarshal([]byte(value.Raw), &d.Configurations)
		default:
			var v any
			if err = json.Unmarshal([]byte(value.Raw), &v); err == nil {
				if d.Extra == nil {
					d.Extra = make(map[string]any)
				}
				d.Extra[k] = v
			}
		}
		if err != nil {
			err = fmt.Errorf("decode %q: %w", k, err)
			return false
		}
		return true
	})
	return err
}

// MarshalJSON encodes the document with keys in their original order. An
// empty Version is omitted.
func (d Document) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(d.Extra)+2)
	for k, v := range d.Extra {
		fields[k] = v
	}
	if d.Version != "" {
		fields["version"] = d.Version
	}
	configurations := d.Configurations
	if configurations == nil {
		configurations = []Configuration{}
	}
	fields["configurations"] = configurations

	keys := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	add := func(k string) {
		if _, ok := fields[k]; ok && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, k := range d.order {
		add(k)
	}
	add("version")
	add("configurations")
	extra := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		add(k)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := encodeValue(k)
		if err != nil {
			return nil, err
		}
		vb, err := encodeValue(fields[k])
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeValue marshals v without HTML escaping.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Find returns the first configuration with the given name.
func (d *Document) Find(name string) (Configuration, bool) {
	for _, c := range d.Configurations {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Store reads and writes one launch file. Every call goes back to disk.
type Store struct {
	path     string
	poller   *poll.Poller
	interval time.Duration
	log      *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPoller replaces the poller used by WaitUntilUpdated.
func WithPoller(p *poll.Poller) Option {
	return func(s *Store) { s.poller = p }
}

// WithInterval sets how often WaitUntilUpdated re-reads the file.
func WithInterval(d time.Duration) Option {
	return func(s *Store) { s.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore creates a store for the launch file at path.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{path: path, interval: time.Second, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.poller == nil {
		s.poller = poll.New(poll.WithLogger(s.log))
	}
	return s
}

// Open creates a store for <workspaceDir>/.vscode/launch.json.
func Open(workspaceDir string, opts ...Option) *Store {
	return NewStore(filepath.Join(workspaceDir, ".vscode", "launch.json"), opts...)
}

// Path returns the launch file path.
func (s *Store) Path() string { return s.path }

// raw returns the file as standard JSON. Comments and trailing commas are
// accepted.
func (s *Store) raw() ([]byte, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{Path: s.path}
	}
	if err != nil {
		return nil, fmt.Errorf("read launch file: %w", err)
	}
	std, err := hujson.Standardize(b)
	if err != nil {
		return nil, fmt.Errorf("parse launch file %s: %w", s.path, err)
	}
	return std, nil
}

// Read parses the launch file.
func (s *Store) Read() (*Document, error) {
	b, err := s.raw()
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode launch file %s: %w", s.path, err)
	}
	return &doc, nil
}

// Lookup returns the first configuration named name without decoding the
// whole document.
func (s *Store) Lookup(name string) (gjson.Result, error) {
	b, err := s.raw()
	if err != nil {
		return gjson.Result{}, err
	}
	var found gjson.Result
	gjson.GetBytes(b, "configurations").ForEach(func(_, cfg gjson.Result) bool {
		if cfg.Get("name").String() == name {
			found = cfg
			return false
		}
		return true
	})
	if !found.Exists() {
		return gjson.Result{}, &NotFoundError{Path: s.path, Name: name}
	}
	return found, nil
}

// Update merges patch into the first configuration named name and rewrites
// the file. Top-level keys in patch replace existing ones; nested objects
// are not merged. Comments in the original file are not preserved.
func (s *Store) Update(name string, patch map[string]any) error {
	doc, err := s.Read()
	if err != nil {
		return err
	}
	cfg, ok := doc.Find(name)
	if !ok {
		return &NotFoundError{Path: s.path, Name: name}
	}
	for k, v := range patch {
		cfg[k] = v
	}
	s.log.Info("launch configuration updated", zap.String("path", s.path), zap.String("name", name), zap.Int("fields", len(patch)))
	return s.write(doc)
}

// Add appends cfg, creating the file if needed.
func (s *Store) Add(cfg Configuration) error {
	if cfg.Name() == "" {
		return errors.New("add launch configuration: name is required")
	}
	doc, err := s.Read()
	var nf *NotFoundError
	switch {
	case errors.As(err, &nf):
		doc = &Document{Version: DefaultVersion}
	case err != nil:
		return err
	}
	doc.Configurations = append(doc.Configurations, cfg)
	s.log.Info("launch configuration added", zap.String("path", s.path), zap.String("name", cfg.Name()))
	return s.write(doc)
}

func (s *Store) write(doc *Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode launch file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create launch file directory: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write launch file: %w", err)
	}
	return nil
}

// Matches reports whether actual contains every field of expected with an
// equal value after JSON normalization. Extra fields in actual are ignored.
func Matches(actual Configuration, expected map[string]any) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok || !jsonEqual(got, want) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	var an, bn any
	if json.Unmarshal(ab, &an) != nil || json.Unmarshal(bb, &bn) != nil {
		return false
	}
	na, _ := json.Marshal(an)
	nb, _ := json.Marshal(bn)
	return bytes.Equal(na, nb)
}

// WaitUntilUpdated waits until the configuration named name contains every
// field of expected. A missing file or configuration simply keeps the wait
// going; a timeout returns false.
func (s *Store) WaitUntilUpdated(ctx context.Context, name string, expected map[string]any, timeout time.Duration) (bool, error) {
	return s.poller.Until(ctx, func(context.Context) (bool, error) {
		doc, err := s.Read()
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		if err != nil {
			// A half-written file fails to parse; it counts as not yet updated.
			s.log.Debug("launch file unreadable", zap.String("path", s.path), zap.Error(err))
			return false, nil
		}
		cfg, ok := doc.Find(name)
		return ok && Matches(cfg, expected), nil
	}, timeout, s.interval, poll.WithName("launch "+name))
}
