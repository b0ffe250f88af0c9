package loop

import (
	"os"
	"syscall"
)

// SpawnOptions describes the child to start. Files is the stdio table
// in fd order; every slot must carry an open file.
type SpawnOptions struct {
	File string
	Args []string
	Env  []string // nil inherits the parent environment
	Cwd  string

	Files []*os.File

	SetUID bool
	UID    uint32
	SetGID bool
	GID    uint32

	Detached bool

	// OnExit is delivered on the loop goroutine once the child has been
	// reaped. A negative status means waiting on the child itself
	// failed; termSignal is nonzero only when the child was killed by a
	// signal.
	OnExit func(status int64, termSignal int)
}

// Process is the handle for a spawned child. It is active and
// referenced from spawn until the exit callback has been delivered; it
// holds no OS resource beyond the reaper goroutine, so it needs no
// explicit close.
type Process struct {
	Handle

	proc *os.Process
}

// Spawn starts the child and registers the exit watcher with the loop.
// On failure no handle is registered and the returned error carries the
// OS-level cause.
func Spawn(l *Loop, opts *SpawnOptions) (*Process, error) {
	attr := &os.ProcAttr{
		Dir:   opts.Cwd,
		Env:   opts.Env,
		Files: opts.Files,
		Sys:   sysProcAttr(opts),
	}

	proc, err := os.StartProcess(opts.File, opts.Args, attr)
	if err != nil {
		return nil, err
	}

	p := &Process{proc: proc}
	p.init(l)
	p.setActive(true)

	go func() {
		state, werr := proc.Wait()
		p.loop.post(func() {
			p.setActive(false)
			status, sig := decodeWait(state, werr)
			opts.OnExit(status, sig)
		})
	}()

	return p, nil
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.proc.Pid
}

// Kill delivers sig to the child. After the child has been reaped the
// error is os.ErrProcessDone.
func (p *Process) Kill(sig syscall.Signal) error {
	return p.proc.Signal(sig)
}

func sysProcAttr(opts *SpawnOptions) *syscall.SysProcAttr {
	sys := &syscall.SysProcAttr{
		Setsid: opts.Detached,
	}
	if opts.SetUID || opts.SetGID {
		cred := &syscall.Credential{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		}
		if opts.SetUID {
			cred.Uid = opts.UID
		}
		if opts.SetGID {
			cred.Gid = opts.GID
		}
		sys.Credential = cred
	}
	return sys
}

func decodeWait(state *os.ProcessState, werr error) (status int64, termSignal int) {
	if werr != nil {
		if errno, ok := rootErrno(werr); ok {
			return -int64(errno), 0
		}
		return -int64(syscall.EIO), 0
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return int64(state.ExitCode()), 0
	}
	if ws.Signaled() {
		return 0, int(ws.Signal())
	}
	return int64(ws.ExitStatus()), 0
}

func rootErrno(err error) (syscall.Errno, bool) {
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return errno, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}
