package simulator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LogStreamOptions selects which unified-log lines a stream carries.
type LogStreamOptions struct {
	Process   string // process name, e.g. the app executable
	Subsystem string // subsystem prefix
	Predicate string // raw NSPredicate, overrides Process and Subsystem
	Level     string // debug, info or default
}

// LogStream is a running `simctl spawn <udid> log stream` process.
// It is owned by the caller and must be stopped with Stop.
type LogStream struct {
	UDID string

	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
	cancel context.CancelFunc
	group  *errgroup.Group
	log    *zap.Logger

	stopOnce sync.Once
	stopErr  error
}

// stderrGrace bounds how long Stop waits for stderr to drain after the
// process has exited.
const stderrGrace = 2 * time.Second

// StartLogStream spawns a live log stream for the simulator. Read the
// stream's output through Stdout.
func (m *Manager) StartLogStream(ctx context.Context, udid string, opts LogStreamOptions) (*LogStream, error) {
	args := []string{"simctl", "spawn", udid, "log", "stream", "--style", "compact"}

	level := strings.ToLower(opts.Level)
	if level == "" {
		level = "debug"
	}
	args = append(args, "--level", level)

	if predicate := buildPredicate(opts); predicate != "" {
		args = append(args, "--predicate", predicate)
	}

	// The pipes are ours rather than exec's so that Wait never closes a
	// reader the caller may still be using.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(streamCtx, m.xcrunPath, args...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if err != nil {
		cancel()
		_ = stdoutR.Close()
		_ = stderrR.Close()
		return nil, fmt.Errorf("failed to start log stream: %w", err)
	}
	m.log.Info("log stream started", zap.String("udid", udid), zap.Strings("args", args))

	s := &LogStream{
		UDID:   udid,
		cmd:    cmd,
		stdout: stdoutR,
		stderr: stderrR,
		cancel: cancel,
		group:  &errgroup.Group{},
		log:    m.log,
	}

	// Drain stderr to avoid deadlocks and surface diagnostics.
	s.group.Go(func() error {
		sc := bufio.NewScanner(stderrR)
		sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				s.log.Debug("log stream stderr", zap.String("udid", udid), zap.String("line", line))
			}
		}
		return nil
	})

	return s, nil
}

// Stdout returns the stream's standard output. It stays readable until Stop
// returns; output not read by then is discarded and a pending Read fails.
func (s *LogStream) Stdout() io.Reader {
	return s.stdout
}

// Stop terminates the stream process and waits for it to exit. It is safe
// to call more than once, including while another goroutine reads Stdout.
func (s *LogStream) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		err := s.cmd.Wait()

		drained := make(chan struct{})
		go func() {
			_ = s.group.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(stderrGrace):
			// A child of the stream still holds stderr open.
			_ = s.stderr.Close()
			<-drained
		}
		_ = s.stderr.Close()
		_ = s.stdout.Close()

		if err != nil && s.cmd.ProcessState != nil && !s.cmd.ProcessState.Exited() {
			// Killed by us.
			err = nil
		}
		s.stopErr = err
		s.log.Info("log stream stopped", zap.String("udid", s.UDID), zap.Error(err))
	})
	return s.stopErr
}

func predicateQuoteLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// buildPredicate joins the process and subsystem filters with AND.
func buildPredicate(opts LogStreamOptions) string {
	if opts.Predicate != "" {
		return opts.Predicate
	}
	var parts []string
	if p := strings.TrimSpace(opts.Process); p != "" {
		parts = append(parts, "process == "+predicateQuoteLiteral(p))
	}
	if s := strings.TrimSpace(opts.Subsystem); s != "" {
		parts = append(parts, "subsystem BEGINSWITH "+predicateQuoteLiteral(s))
	}
	return strings.Join(parts, " AND ")
}
