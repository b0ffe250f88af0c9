// Package spawn implements a synchronous child-process runner: it
// spawns one child, drives all of its stdio to completion on a private
// event loop, enforces timeout and output-size limits, and returns a
// structured Result. One invocation blocks the caller from start to
// finish; errors never propagate as panics or Go errors, they are
// recorded in the Result.
package spawn

import (
	"errors"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Errno is a negated POSIX errno, zero meaning "no error". The negative
// convention mirrors the event-library style the runner's result
// contract is specified in.
type Errno int

const (
	// EINVAL marks option validation failures.
	EINVAL = -Errno(syscall.EINVAL)
	// ENOMEM marks event-loop allocation failure.
	ENOMEM = -Errno(syscall.ENOMEM)
	// ETIMEDOUT marks a fired kill timer.
	ETIMEDOUT = -Errno(syscall.ETIMEDOUT)
	// ENOENT marks a missing executable.
	ENOENT = -Errno(syscall.ENOENT)
	// EACCES marks a non-executable or otherwise forbidden file.
	EACCES = -Errno(syscall.EACCES)
	// ESRCH marks a kill target that has already exited.
	ESRCH = -Errno(syscall.ESRCH)
	// ECANCELED marks pipe operations cancelled by teardown.
	ECANCELED = -Errno(syscall.ECANCELED)
	// EPIPE marks a write to a pipe the child stopped reading.
	EPIPE = -Errno(syscall.EPIPE)
	// EIO is the fallback for errors with no usable errno.
	EIO = -Errno(syscall.EIO)
)

// Name returns the POSIX name of the code ("ETIMEDOUT"), or the decimal
// value when the errno has no name on this platform.
func (e Errno) Name() string {
	if name := unix.ErrnoName(syscall.Errno(-e)); name != "" {
		return name
	}
	return strconv.Itoa(int(e))
}

func (e Errno) Error() string {
	return e.Name() + ": " + syscall.Errno(-e).Error()
}

// errnoFromError reduces an OS-level error to an Errno. Process-done
// sentinels become ESRCH, matching kill semantics on a reaped child.
func errnoFromError(err error) Errno {
	if err == nil {
		return 0
	}
	if errors.Is(err, os.ErrProcessDone) {
		return ESRCH
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -Errno(errno)
	}
	return EIO
}

// SignalName renders a signal number as its conventional name, e.g.
// "SIGTERM". Unknown signals render as their decimal value.
func SignalName(sig int) string {
	if name := unix.SignalName(syscall.Signal(sig)); name != "" {
		return name
	}
	return strconv.Itoa(sig)
}

// SignalNum resolves a conventional signal name ("SIGKILL") to its
// number, returning 0 for unknown names.
func SignalNum(name string) int {
	return int(unix.SignalNum(name))
}
