package logwatch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func newTestWatcher(notify bool) *Watcher {
	return New(WithInterval(10*time.Millisecond), WithNotify(notify))
}

func TestPatterns(t *testing.T) {
	assert.True(t, Substring("Packager started").Match("[Info] Packager started at port 8081"))
	assert.False(t, Substring("Packager started").Match("packager started"))
	assert.True(t, MustCompile(`Installing .*\.apk`).Match("Installing app-debug.apk..."))
	assert.Equal(t, `a+`, MustCompile(`a+`).String())
	assert.Panics(t, func() { MustCompile(`(`) })
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/logs", "ReactNative.txt"), Path("/logs", ChannelExtension))
	assert.Equal(t, filepath.Join("/logs", "ExpoLogs.txt"), Path("/logs", ChannelExpo))
	assert.Equal(t, filepath.Join("/logs", "Debugger.txt"), Path("/logs", Channel("Debugger")))
}

func TestWaitForPattern_AppearsLater(t *testing.T) {
	for _, notify := range []bool{true, false} {
		t.Run(map[bool]string{true: "notify", false: "polling"}[notify], func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ReactNative.txt")
			go func() {
				time.Sleep(30 * time.Millisecond)
				appendLine(t, path, "Starting packager")
				time.Sleep(30 * time.Millisecond)
				appendLine(t, path, "Packager started")
			}()

			res, err := newTestWatcher(notify).WaitForPattern(context.Background(), path, Substring("Packager started"), nil, 5*time.Second)
			require.NoError(t, err)
			assert.True(t, res.Successful)
			assert.False(t, res.Failed)
		})
	}
}

func TestWaitForPattern_MissingFileTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.txt")
	res, err := newTestWatcher(true).WaitForPattern(context.Background(), path, Substring("x"), Substring("y"), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestWaitForPattern_BothInSameRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ExpoLogs.txt")
	require.NoError(t, os.WriteFile(path, []byte("Tunnel ready.\nError: tunnel closed\n"), 0o644))

	res, err := newTestWatcher(false).WaitForPattern(context.Background(), path,
		Substring("Tunnel ready."), MustCompile(`(?i)error`), time.Second)
	require.NoError(t, err)
	assert.True(t, res.Successful)
	assert.True(t, res.Failed)
}

func TestWaitForPattern_FailureOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ReactNative.txt")
	require.NoError(t, os.WriteFile(path, []byte("Build failed\n"), 0o644))

	res, err := newTestWatcher(false).WaitForPattern(context.Background(), path,
		Substring("Build succeeded"), Substring("Build failed"), time.Second)
	require.NoError(t, err)
	assert.False(t, res.Successful)
	assert.True(t, res.Failed)
}

func TestWaitForPattern_UnreadableIsAnError(t *testing.T) {
	dir := t.TempDir()
	res, err := newTestWatcher(false).WaitForPattern(context.Background(), dir, Substring("x"), nil, time.Second)
	require.Error(t, err, "reading a directory fails every time")
	assert.Equal(t, Result{}, res)
}

func TestWaitForPattern_RequiresSuccess(t *testing.T) {
	_, err := newTestWatcher(false).WaitForPattern(context.Background(), "x", nil, nil, time.Second)
	assert.Error(t, err)
}

func TestWaitForPattern_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestWatcher(true).WaitForPattern(ctx, filepath.Join(t.TempDir(), "x"), Substring("x"), nil, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForAny(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ReactNative.txt")
	go func() {
		time.Sleep(20 * time.Millisecond)
		appendLine(t, path, "Installing the app...")
	}()

	name, ok, err := newTestWatcher(true).WaitForAny(context.Background(), path, map[string]Pattern{
		"packager":  Substring("Packager started"),
		"installed": MustCompile(`Install(ing|ed) the app`),
	}, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "installed", name)
}

func TestWaitForAny_Timeout(t *testing.T) {
	name, ok, err := newTestWatcher(false).WaitForAny(context.Background(), filepath.Join(t.TempDir(), "x"),
		map[string]Pattern{"a": Substring("a")}, 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, name)
}

func TestStreamWatcher(t *testing.T) {
	pr, pw := io.Pipe()
	s := WatchStream(pr, Substring(`Running "AwesomeProject"`), WithInterval(time.Second))
	assert.False(t, s.Matched())

	go func() {
		_, _ = io.WriteString(pw, "Df AwesomeProject[1:2] Loading bundle\n")
		time.Sleep(20 * time.Millisecond)
		_, _ = io.WriteString(pw, "Df AwesomeProject[1:2] Running \"AwesomeProject\" with {}\n")
	}()

	ok, err := s.Wait(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, s.Line(), "with {}")

	require.NoError(t, pw.Close())
	<-s.Done()
	assert.NoError(t, s.Err())
}

func TestStreamWatcher_MarkerSplitAcrossLinesIsMissed(t *testing.T) {
	s := WatchStream(strings.NewReader("Packager\nstarted\n"), Substring("Packager\nstarted"), WithInterval(5*time.Millisecond))
	<-s.Done()
	assert.False(t, s.Matched())

	ok, err := s.Wait(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStreamWatcher_LatchesFirstMatch(t *testing.T) {
	s := WatchStream(strings.NewReader("ready 1\nready 2\n"), Substring("ready"))
	<-s.Done()
	assert.True(t, s.Matched())
	assert.Equal(t, "ready 1", s.Line())
}
