package shell

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStub(t *testing.T, name, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExecRunner_Success(t *testing.T) {
	stub := writeStub(t, "tool", "#!/bin/sh\necho \"hello $1\"\n")

	out, err := NewExecRunner(nil).Run(context.Background(), stub, "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(out))
}

func TestExecRunner_NonZeroExitCapturesStderr(t *testing.T) {
	stub := writeStub(t, "tool", "#!/bin/sh\necho partial\necho 'Unable to boot device in current state: Booted' >&2\nexit 149\n")

	out, err := NewExecRunner(nil).Run(context.Background(), stub, "simctl", "boot", "ABC")
	require.Error(t, err)
	assert.Equal(t, "partial\n", string(out))

	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 149, cerr.ExitCode)
	assert.Contains(t, cerr.Stderr, "current state: Booted")
	assert.Contains(t, cerr.Output(), "partial")
	assert.Contains(t, err.Error(), "simctl boot ABC")
	assert.Contains(t, err.Error(), "exit 149")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := NewExecRunner(nil).Run(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	var cerr *CommandError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 0, cerr.ExitCode)
	assert.NotNil(t, cerr.Unwrap())
}
