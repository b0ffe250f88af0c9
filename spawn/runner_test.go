package spawn

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("spawn tests exercise unix tooling")
	}
}

func ignoreAll() []StdioOption {
	return []StdioOption{
		{Type: StdioIgnore},
		{Type: StdioIgnore},
		{Type: StdioIgnore},
	}
}

func captureStdio(input []byte) []StdioOption {
	return []StdioOption{
		{Type: StdioPipe, Readable: true, Input: input},
		{Type: StdioPipe, Writable: true},
		{Type: StdioPipe, Writable: true},
	}
}

func TestRunEchoSuccess(t *testing.T) {
	skipOnWindows(t)

	res := Run(&Options{
		File: "/bin/echo",
		Args: []string{"echo", "hi"},
		Stdio: []StdioOption{
			{Type: StdioIgnore},
			{Type: StdioPipe, Writable: true},
			{Type: StdioIgnore},
		},
	})

	require.Equal(t, Errno(0), res.Error, "unexpected error: %v", res.Err())
	assert.Equal(t, int64(0), res.Status)
	assert.Empty(t, res.Signal)
	require.Len(t, res.Output, 3)
	assert.Nil(t, res.Output[0])
	assert.Equal(t, "hi\n", string(res.Output[1]))
	assert.Nil(t, res.Output[2])
}

func TestRunCatWithInput(t *testing.T) {
	skipOnWindows(t)

	res := Run(&Options{
		File:  "/bin/cat",
		Args:  []string{"cat"},
		Stdio: captureStdio([]byte("abc")),
	})

	require.Equal(t, Errno(0), res.Error, "unexpected error: %v", res.Err())
	assert.Equal(t, int64(0), res.Status)
	assert.Equal(t, "abc", string(res.Output[1]))
	assert.Empty(t, res.Output[2])
}

func TestRunEmptyInputStillHalfCloses(t *testing.T) {
	skipOnWindows(t)

	// cat must observe EOF immediately even though nothing was written.
	res := Run(&Options{
		File:  "/bin/cat",
		Args:  []string{"cat"},
		Stdio: captureStdio(nil),
	})

	require.Equal(t, Errno(0), res.Error, "unexpected error: %v", res.Err())
	assert.Equal(t, int64(0), res.Status)
	require.NotNil(t, res.Output[1])
	assert.Len(t, res.Output[1], 0)
}

func TestRunExitCode(t *testing.T) {
	skipOnWindows(t)

	res := Run(&Options{
		File:  "/bin/sh",
		Args:  []string{"sh", "-c", "exit 3"},
		Stdio: ignoreAll(),
	})

	require.Equal(t, Errno(0), res.Error)
	assert.Equal(t, int64(3), res.Status)
	assert.Empty(t, res.Signal)
}

func TestRunStderrCapture(t *testing.T) {
	skipOnWindows(t)

	res := Run(&Options{
		File:  "/bin/sh",
		Args:  []string{"sh", "-c", "echo oops 1>&2"},
		Stdio: captureStdio(nil),
	})

	require.Equal(t, Errno(0), res.Error)
	assert.Equal(t, "oops\n", string(res.Output[2]))
	assert.Empty(t, res.Output[1])
}

func TestRunTimeoutKillsChild(t *testing.T) {
	skipOnWindows(t)

	started := time.Now()
	res := Run(&Options{
		File:    "/bin/sleep",
		Args:    []string{"sleep", "10"},
		Stdio:   ignoreAll(),
		Timeout: 100,
	})

	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, ETIMEDOUT, res.Error)
	assert.Equal(t, "SIGTERM", res.Signal)
	// The child ran and was signalled; the OS reports no exit code.
	assert.Equal(t, int64(0), res.Status)
	assert.True(t, res.Started())
}

func TestRunTimeoutWithFakeClock(t *testing.T) {
	skipOnWindows(t)

	clock := clockwork.NewFakeClock()
	go func() {
		// Fire the kill timer as soon as it is armed.
		clock.BlockUntil(1)
		clock.Advance(2 * time.Hour)
	}()

	res := RunWithClock(&Options{
		File:    "/bin/sleep",
		Args:    []string{"sleep", "60"},
		Stdio:   ignoreAll(),
		Timeout: time.Hour.Milliseconds(),
	}, clock)

	assert.Equal(t, ETIMEDOUT, res.Error)
	assert.Equal(t, "SIGTERM", res.Signal)
}

func TestRunPromptExitDoesNotWaitForTimer(t *testing.T) {
	skipOnWindows(t)

	// The armed timer is unreferenced: a child that exits right away
	// must not hold the invocation for the full timeout.
	started := time.Now()
	res := Run(&Options{
		File:    "/bin/echo",
		Args:    []string{"echo"},
		Stdio:   ignoreAll(),
		Timeout: time.Hour.Milliseconds(),
	})

	assert.Less(t, time.Since(started), 30*time.Second)
	require.Equal(t, Errno(0), res.Error)
	assert.Equal(t, int64(0), res.Status)
}

func TestRunMaxBufferOverflowKills(t *testing.T) {
	skipOnWindows(t)

	sig := int64(syscall.SIGKILL)
	res := Run(&Options{
		File: "/bin/sh",
		Args: []string{"sh", "-c", "while :; do echo 0123456789abcdef; done"},
		Stdio: []StdioOption{
			{Type: StdioIgnore},
			{Type: StdioPipe, Writable: true},
			{Type: StdioIgnore},
		},
		MaxBuffer:  1024,
		KillSignal: &sig,
	})

	assert.Equal(t, "SIGKILL", res.Signal)
	// Overflow kills without recording an error.
	assert.Equal(t, Errno(0), res.Error)
	// The tipping read lands; racing reads may add more before the
	// child dies, bounded by what the socket buffered.
	assert.GreaterOrEqual(t, len(res.Output[1]), 1024)
	assert.Less(t, len(res.Output[1]), 1<<21)
}

func TestRunMaxBufferZeroIsUnbounded(t *testing.T) {
	skipOnWindows(t)

	res := Run(&Options{
		File: "/bin/sh",
		Args: []string{"sh", "-c", "seq 1 20000"},
		Stdio: []StdioOption{
			{Type: StdioIgnore},
			{Type: StdioPipe, Writable: true},
			{Type: StdioIgnore},
		},
	})

	require.Equal(t, Errno(0), res.Error)
	assert.Equal(t, int64(0), res.Status)
	assert.Empty(t, res.Signal)

	var want strings.Builder
	for i := 1; i <= 20000; i++ {
		fmt.Fprintf(&want, "%d\n", i)
	}
	// Larger than one chunk, delivered in arrival order with the
	// chunking invisible.
	require.Greater(t, want.Len(), chunkSize)
	assert.Equal(t, want.String(), string(res.Output[1]))
}

func TestRunSpawnFailure(t *testing.T) {
	skipOnWindows(t)

	res := Run(&Options{
		File:  "/no/such/exe",
		Args:  []string{"x"},
		Stdio: ignoreAll(),
	})

	assert.Equal(t, ENOENT, res.Error)
	assert.Equal(t, int64(-1), res.Status)
	assert.False(t, res.Started())
	assert.Empty(t, res.Signal)
	assert.Nil(t, res.Output)
}

func TestRunSpawnFailureWithPipesTearsDown(t *testing.T) {
	skipOnWindows(t)

	// Pipes were created before the spawn failed; teardown must close
	// every handle and still return the structured result.
	res := Run(&Options{
		File:  "/no/such/exe",
		Args:  []string{"x"},
		Stdio: captureStdio([]byte("input")),
	})

	assert.Equal(t, ENOENT, res.Error)
	assert.Nil(t, res.Output)
}

func TestRunChildKilledBySignal(t *testing.T) {
	skipOnWindows(t)

	res := Run(&Options{
		File:  "/bin/sh",
		Args:  []string{"sh", "-c", "kill -TERM $$"},
		Stdio: ignoreAll(),
	})

	require.Equal(t, Errno(0), res.Error)
	assert.Equal(t, "SIGTERM", res.Signal)
	assert.True(t, res.Started())
}

func TestRunDuplexPipe(t *testing.T) {
	skipOnWindows(t)

	// A single slot both feeds the child and captures what it writes
	// back on the same descriptor.
	res := Run(&Options{
		File: "/bin/sh",
		Args: []string{"sh", "-c", "read line; echo \"pong:$line\" >&0"},
		Stdio: []StdioOption{
			{Type: StdioPipe, Readable: true, Writable: true, Input: []byte("ping\n")},
			{Type: StdioIgnore},
			{Type: StdioIgnore},
		},
	})

	require.Equal(t, Errno(0), res.Error, "unexpected error: %v", res.Err())
	assert.Equal(t, int64(0), res.Status)
	assert.Equal(t, "pong:ping\n", string(res.Output[0]))
}

func TestRunInheritFd(t *testing.T) {
	skipOnWindows(t)

	f, err := os.CreateTemp(t.TempDir(), "inherit-*")
	require.NoError(t, err)
	defer f.Close()

	res := Run(&Options{
		File: "/bin/sh",
		Args: []string{"sh", "-c", "echo inherited"},
		Stdio: []StdioOption{
			{Type: StdioIgnore},
			{Type: StdioInherit, FD: int(f.Fd())},
			{Type: StdioIgnore},
		},
	})

	require.Equal(t, Errno(0), res.Error)
	assert.Equal(t, int64(0), res.Status)
	// Inherited slots capture nothing.
	assert.Nil(t, res.Output[1])

	content, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "inherited\n", string(content))
}

func TestRunCwd(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	marker := []byte("marker-content\n")
	require.NoError(t, os.WriteFile(dir+"/marker.txt", marker, 0o644))

	res := Run(&Options{
		File: "/bin/cat",
		Args: []string{"cat", "marker.txt"},
		CWD:  dir,
		Stdio: []StdioOption{
			{Type: StdioIgnore},
			{Type: StdioPipe, Writable: true},
			{Type: StdioIgnore},
		},
	})

	require.Equal(t, Errno(0), res.Error)
	assert.Equal(t, string(marker), string(res.Output[1]))
}

func TestRunEnv(t *testing.T) {
	skipOnWindows(t)

	res := Run(&Options{
		File: "/bin/sh",
		Args: []string{"sh", "-c", "printf '%s' \"$XMSPAWN_PROBE\""},
		Env:  []string{"PATH=/bin:/usr/bin", "XMSPAWN_PROBE=42"},
		Stdio: []StdioOption{
			{Type: StdioIgnore},
			{Type: StdioPipe, Writable: true},
			{Type: StdioIgnore},
		},
	})

	require.Equal(t, Errno(0), res.Error)
	assert.Equal(t, "42", string(res.Output[1]))
}

func TestRunNonWritablePipeHasNilOutput(t *testing.T) {
	skipOnWindows(t)

	res := Run(&Options{
		File:  "/bin/cat",
		Args:  []string{"cat"},
		Stdio: captureStdio([]byte("data")),
	})

	require.Equal(t, Errno(0), res.Error)
	// Slot 0 is readable-only: present as a pipe, but never captured.
	assert.Nil(t, res.Output[0])
	assert.Equal(t, "data", string(res.Output[1]))
}

func TestRunnerIsSingleUse(t *testing.T) {
	r := &runner{exitStatus: -1, termSignal: -1, killSignal: 15, clock: clockwork.NewRealClock()}
	r.state = runnerInitialized
	assert.Panics(t, func() { r.run(validOptions()) })
}
