package logwatch

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vburojevic/rnsmoke/internal/poll"
)

// StreamWatcher consumes a live log stream line by line and latches once a
// line matches. Matching is per line, so a marker split across two lines is
// never seen.
type StreamWatcher struct {
	pattern Pattern
	matched atomic.Bool
	line    atomic.Pointer[string]
	found   chan struct{}
	once    sync.Once
	done    chan struct{}
	err     error

	interval time.Duration
	poller   *poll.Poller
	log      *zap.Logger
}

// WatchStream starts consuming r in the background. The watcher stops
// reading when r returns EOF or an error. It takes the same options as New;
// WithNotify has no effect on a stream.
func WatchStream(r io.Reader, pattern Pattern, opts ...Option) *StreamWatcher {
	w := New(opts...)
	s := &StreamWatcher{
		pattern:  pattern,
		found:    make(chan struct{}),
		done:     make(chan struct{}),
		interval: w.interval,
		poller:   w.poller,
		log:      w.log,
	}
	go s.consume(r)
	return s
}

func (s *StreamWatcher) consume(r io.Reader) {
	defer close(s.done)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if s.matched.Load() {
			continue
		}
		line := sc.Text()
		if s.pattern.Match(line) {
			s.line.Store(&line)
			s.matched.Store(true)
			s.once.Do(func() { close(s.found) })
			s.log.Debug("stream pattern matched", zap.Stringer("pattern", s.pattern), zap.String("line", line))
		}
	}
	s.err = sc.Err()
}

// Matched reports whether a matching line has been seen.
func (s *StreamWatcher) Matched() bool { return s.matched.Load() }

// Line returns the first matching line, if any.
func (s *StreamWatcher) Line() string {
	if p := s.line.Load(); p != nil {
		return *p
	}
	return ""
}

// Done is closed once the stream has been fully consumed.
func (s *StreamWatcher) Done() <-chan struct{} { return s.done }

// Err returns the read error that ended the stream, if any. It is only
// meaningful after Done is closed.
func (s *StreamWatcher) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait polls the match flag until it is set or timeout elapses. A match
// wakes the wait immediately.
func (s *StreamWatcher) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	wake := make(chan struct{}, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-s.found:
			wake <- struct{}{}
		case <-stop:
		}
	}()
	return s.poller.Until(ctx, func(context.Context) (bool, error) {
		return s.Matched(), nil
	}, timeout, s.interval, poll.WithWake(wake), poll.WithName("stream "+s.pattern.String()))
}
