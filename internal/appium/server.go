package appium

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vburojevic/rnsmoke/internal/poll"
)

// DefaultPort is Appium's default listening port.
const DefaultPort = 4723

// ServerOptions controls how the Appium server is launched.
type ServerOptions struct {
	Path         string // appium binary, defaults to "appium"
	Host         string // defaults to 127.0.0.1
	Port         int    // defaults to DefaultPort
	ExtraArgs    []string
	StartTimeout time.Duration // how long to wait for /status, defaults to 60s
	Poller       *poll.Poller
	Logger       *zap.Logger
}

// Server is a running Appium server process. Callers own it and must call
// Stop.
type Server struct {
	URL string

	cmd     *exec.Cmd
	outputs []*os.File
	cancel  context.CancelFunc
	group   *errgroup.Group
	exited  chan struct{}
	waitErr error
	log     *zap.Logger

	stopOnce sync.Once
	stopErr  error
}

// StartServer spawns Appium and waits until its /status endpoint reports
// ready. If it never does, the process is stopped and an error returned.
func StartServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	if opts.Path == "" {
		opts.Path = "appium"
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 60 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	poller := opts.Poller
	if poller == nil {
		poller = poll.New(poll.WithLogger(log))
	}

	args := append([]string{"--address", opts.Host, "--port", strconv.Itoa(opts.Port)}, opts.ExtraArgs...)
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, opts.Path, args...)

	// Wait must not close pipes the drains are reading, so the read ends
	// belong to the Server and are closed by Stop.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("appium stdout pipe: %w", err)
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		cancel()
		_ = stdout.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("appium stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	err = cmd.Start()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if err != nil {
		cancel()
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, fmt.Errorf("start appium: %w", err)
	}

	s := &Server{
		URL:     fmt.Sprintf("http://%s:%d", opts.Host, opts.Port),
		cmd:     cmd,
		outputs: []*os.File{stdout, stderr},
		cancel:  cancel,
		group:   &errgroup.Group{},
		exited:  make(chan struct{}),
		log:     log,
	}
	s.group.Go(func() error { return s.drain("stdout", stdout) })
	s.group.Go(func() error { return s.drain("stderr", stderr) })
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()
	log.Info("appium started", zap.String("url", s.URL), zap.Int("pid", cmd.Process.Pid))

	client := NewClient(s.URL, WithClientLogger(log))
	ready, err := poller.Until(ctx, func(ctx context.Context) (bool, error) {
		select {
		case <-s.exited:
			return false, fmt.Errorf("appium exited before becoming ready")
		default:
		}
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		ok, err := client.Status(reqCtx)
		if err != nil {
			log.Debug("appium not ready", zap.Error(err))
			return false, nil
		}
		return ok, nil
	}, opts.StartTimeout, 500*time.Millisecond, poll.FailFast(), poll.WithName("appium status"))

	if err != nil || !ready {
		_ = s.Stop()
		if err == nil {
			err = fmt.Errorf("appium not ready after %s", opts.StartTimeout)
		}
		return nil, err
	}
	return s, nil
}

func (s *Server) drain(stream string, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			s.log.Debug("appium output", zap.String("stream", stream), zap.String("line", line))
		}
	}
	return nil
}

// drainGrace bounds how long Stop waits for output after the process has
// exited. Children of the server may keep the pipes open.
const drainGrace = 2 * time.Second

// Stop kills the server and waits for it and its output readers to finish.
// It is safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.exited
		err := s.waitErr

		drained := make(chan struct{})
		go func() {
			_ = s.group.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(drainGrace):
			s.closeOutputs()
			<-drained
		}
		s.closeOutputs()

		if err != nil && s.cmd.ProcessState != nil && !s.cmd.ProcessState.Exited() {
			err = nil
		}
		s.stopErr = err
		s.log.Info("appium stopped", zap.String("url", s.URL), zap.Error(err))
	})
	return s.stopErr
}

func (s *Server) closeOutputs() {
	for _, f := range s.outputs {
		_ = f.Close()
	}
}
