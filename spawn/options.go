package spawn

import (
	"math"
	"syscall"
	"time"
)

// StdioType selects how one of the child's fds is wired.
type StdioType int

const (
	// StdioIgnore connects the fd to /dev/null.
	StdioIgnore StdioType = iota
	// StdioPipe connects the fd to a parent-held pipe.
	StdioPipe
	// StdioInherit duplicates an existing parent fd into the child.
	StdioInherit
)

// StdioOption is one entry of the stdio plan, in child-fd order.
type StdioOption struct {
	Type StdioType

	// Readable and Writable describe the child's view of a StdioPipe
	// slot. Input is written to a readable pipe before it is
	// half-closed; it is only meaningful when Readable is set.
	Readable bool
	Writable bool
	Input    []byte

	// FD is the parent fd a StdioInherit slot duplicates.
	FD int
}

// Options is the typed option record for one invocation. UID, GID and
// KillSignal use pointers so an explicit zero can be told apart from an
// absent value, matching the decode rules; Timeout and MaxBuffer are
// plain values whose zero means "absent".
type Options struct {
	// File is the path of the executable. Required; PATH resolution is
	// the caller's concern.
	File string

	// Args is the full argv including Args[0]. Required, at least one
	// element.
	Args []string

	// CWD is the child's working directory; empty inherits.
	CWD string

	// Env is the child's environment as KEY=VALUE pairs; nil inherits.
	Env []string

	// UID and GID switch the child's credentials when present. Each
	// must fit the platform id type.
	UID *int64
	GID *int64

	// Detached starts the child in its own session.
	Detached bool

	// WindowsVerbatimArguments suppresses argument quoting on Windows.
	// It is recorded but has no effect on this platform.
	WindowsVerbatimArguments bool

	// Timeout is the kill-timer delay in milliseconds; 0 arms no timer.
	Timeout int64

	// MaxBuffer caps the total captured output in bytes across all
	// writable pipes; 0 is unbounded. Must fit an unsigned 32-bit
	// integer.
	MaxBuffer int64

	// KillSignal is the signal delivered on timeout or overflow. Nil
	// defaults to SIGTERM; an explicit 0 is invalid.
	KillSignal *int64

	// Stdio is the per-fd plan. Required.
	Stdio []StdioOption
}

// parseOptions validates the record and materializes the runner's owned
// spawn state: every string, slice and byte buffer is copied so nothing
// references caller storage after parse returns. Pipe entries get their
// OS handles created here, bound to the runner's loop.
func (r *runner) parseOptions(opts *Options) Errno {
	if opts == nil {
		return EINVAL
	}

	if opts.File == "" {
		return EINVAL
	}
	r.file = opts.File

	if len(opts.Args) == 0 {
		return EINVAL
	}
	r.args = copyStrings(opts.Args)

	r.cwd = opts.CWD

	if opts.Env != nil {
		r.env = copyStrings(opts.Env)
	}

	if opts.UID != nil {
		if !fitsUint32(*opts.UID) {
			return EINVAL
		}
		r.uid = uint32(*opts.UID)
		r.setUID = true
	}
	if opts.GID != nil {
		if !fitsUint32(*opts.GID) {
			return EINVAL
		}
		r.gid = uint32(*opts.GID)
		r.setGID = true
	}

	r.detached = opts.Detached
	r.windowsVerbatimArgs = opts.WindowsVerbatimArguments

	if opts.Timeout < 0 {
		return EINVAL
	}
	r.timeout = time.Duration(opts.Timeout) * time.Millisecond

	if !fitsUint32(opts.MaxBuffer) {
		return EINVAL
	}
	r.maxBuffer = uint32(opts.MaxBuffer)

	if opts.KillSignal != nil {
		if !fitsInt32(*opts.KillSignal) || *opts.KillSignal == 0 {
			return EINVAL
		}
		r.killSignal = syscall.Signal(*opts.KillSignal)
	}

	return r.parseStdioOptions(opts.Stdio)
}

func (r *runner) parseStdioOptions(stdio []StdioOption) Errno {
	if stdio == nil {
		return EINVAL
	}

	r.stdioCount = len(stdio)
	r.stdio = make([]StdioOption, len(stdio))
	r.pipes = make([]*stdioPipe, len(stdio))

	for i, opt := range stdio {
		switch opt.Type {
		case StdioIgnore:
			r.stdio[i] = StdioOption{Type: StdioIgnore}

		case StdioPipe:
			var input []byte
			if opt.Readable && len(opt.Input) > 0 {
				input = append([]byte(nil), opt.Input...)
			}
			p := newStdioPipe(r, opt.Readable, opt.Writable, input)
			if code := p.initialize(r.loop); code < 0 {
				return code
			}
			r.pipes[i] = p
			r.stdio[i] = StdioOption{
				Type:     StdioPipe,
				Readable: opt.Readable,
				Writable: opt.Writable,
				Input:    input,
			}

		case StdioInherit:
			if opt.FD < 0 || !fitsInt32(int64(opt.FD)) {
				return EINVAL
			}
			r.stdio[i] = StdioOption{Type: StdioInherit, FD: opt.FD}

		default:
			return EINVAL
		}
	}
	return 0
}

func copyStrings(src []string) []string {
	return append([]string(nil), src...)
}

// fitsUint32 is the unsigned range check: a non-negative value whose
// high bits beyond the target width are all zero.
func fitsUint32(v int64) bool {
	return v >= 0 && v&^int64(math.MaxUint32) == 0
}

// fitsInt32 is the signed counterpart.
func fitsInt32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}
