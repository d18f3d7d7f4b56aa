package logwatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vburojevic/rnsmoke/internal/poll"
)

// DefaultInterval is the re-read cadence of file waits.
const DefaultInterval = time.Second

// Result reports which patterns were found in the same read of a file.
// The zero value means neither appeared before the timeout.
type Result struct {
	Successful bool
	Failed     bool
}

// Found reports whether either pattern matched.
func (r Result) Found() bool { return r.Successful || r.Failed }

// Watcher waits for patterns in log files. Files are re-read in full on
// every check; a missing file counts as "not found yet".
type Watcher struct {
	interval time.Duration
	poller   *poll.Poller
	notify   bool
	log      *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the re-read cadence.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

// WithPoller replaces the poller.
func WithPoller(p *poll.Poller) Option {
	return func(w *Watcher) { w.poller = p }
}

// WithNotify toggles filesystem notifications. When on (the default), writes
// to the file trigger an early re-read.
func WithNotify(on bool) Option {
	return func(w *Watcher) { w.notify = on }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// New creates a Watcher.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		interval: DefaultInterval,
		notify:   true,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.poller == nil {
		w.poller = poll.New(poll.WithLogger(w.log))
	}
	return w
}

// WaitForPattern waits until success or failure matches the content of path.
// failure may be nil. Both patterns are evaluated over the same content, so
// a read containing both reports both. A timeout returns the zero Result and
// a nil error.
func (w *Watcher) WaitForPattern(ctx context.Context, path string, success, failure Pattern, timeout time.Duration) (Result, error) {
	if success == nil {
		return Result{}, errors.New("wait for pattern: success pattern is required")
	}

	var res Result
	_, err := w.wait(ctx, path, func(content string) bool {
		res.Successful = success.Match(content)
		res.Failed = failure != nil && failure.Match(content)
		return res.Found()
	}, timeout, zap.Stringer("pattern", success))
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// WaitForAny waits for the first of several named patterns to appear in path
// and returns its name. When one read matches several, the
// alphabetically first name wins.
func (w *Watcher) WaitForAny(ctx context.Context, path string, patterns map[string]Pattern, timeout time.Duration) (string, bool, error) {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	var matched string
	ok, err := w.wait(ctx, path, func(content string) bool {
		for _, name := range names {
			if patterns[name].Match(content) {
				matched = name
				return true
			}
		}
		return false
	}, timeout, zap.Strings("patterns", names))
	if err != nil || !ok {
		return "", false, err
	}
	return matched, true, nil
}

func (w *Watcher) wait(ctx context.Context, path string, match func(string) bool, timeout time.Duration, field zap.Field) (bool, error) {
	log := w.log.With(zap.String("path", path), field)
	start := time.Now()

	var opts []poll.Option
	opts = append(opts, poll.WithName("log "+filepath.Base(path)))
	if w.notify {
		wake, stop, err := notifyOn(path)
		if err != nil {
			log.Debug("file notifications unavailable, polling only", zap.Error(err))
		} else {
			defer stop()
			opts = append(opts, poll.WithWake(wake))
		}
	}

	ok, err := w.poller.Until(ctx, func(context.Context) (bool, error) {
		content, err := readContent(path)
		if err != nil {
			return false, err
		}
		return match(content), nil
	}, timeout, w.interval, opts...)

	log.Debug("log wait finished", zap.Bool("found", ok), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	return ok, err
}

// readContent returns the whole file. A file that does not exist yet reads
// as empty.
func readContent(path string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

// notifyOn watches the parent directory of path and signals on wake whenever
// path is created or written. stop releases the watch.
func notifyOn(path string) (<-chan struct{}, func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, nil, err
	}

	wake := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	stop := func() {
		_ = fw.Close()
		wg.Wait()
	}
	return wake, stop, nil
}
