package spawn

import (
	"os"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sys/unix"

	"github.com/mensylisir/xmspawn/loop"
)

type runnerState int

const (
	runnerUninitialized runnerState = iota
	runnerInitialized
	runnerHandlesClosed
)

// runner drives one synchronous invocation. It owns the private event
// loop, the process handle, the kill timer, the stdio pipes and the
// two-priority error slots. A runner is single-use.
type runner struct {
	clock clockwork.Clock

	// Decoded, runner-owned spawn state.
	file                string
	args                []string
	env                 []string
	cwd                 string
	setUID              bool
	uid                 uint32
	setGID              bool
	gid                 uint32
	detached            bool
	windowsVerbatimArgs bool

	maxBuffer  uint32
	timeout    time.Duration
	killSignal syscall.Signal

	loop       *loop.Loop
	stdioCount int
	stdio      []StdioOption
	pipes      []*stdioPipe

	process *loop.Process
	killed  bool

	bufferedOutputSize int64
	exitStatus         int64
	termSignal         int

	timer            *loop.Timer
	timerInitialized bool

	// err holds initialization, exit, timeout and kill failures; first
	// write wins. pipeErr holds pipe-level I/O failures, reported only
	// when err is empty.
	err     Errno
	pipeErr Errno

	state runnerState
}

// Run spawns the child described by opts, blocks until it has exited
// and every stdio stream has been drained (or an error cut the run
// short), and returns the structured result. It never returns a Go
// error: failures of any kind are recorded in the Result.
func Run(opts *Options) *Result {
	return RunWithClock(opts, clockwork.NewRealClock())
}

// RunWithClock is Run with an injected clock for the kill timer; tests
// use a fake clock to exercise timeout behavior deterministically.
func RunWithClock(opts *Options, clock clockwork.Clock) *Result {
	r := &runner{
		clock:      clock,
		killSignal: syscall.SIGTERM,
		exitStatus: -1,
		termSignal: -1,
	}
	return r.run(opts)
}

func (r *runner) run(opts *Options) *Result {
	if r.state != runnerUninitialized {
		panic("spawn: runner reused")
	}
	r.tryInitializeAndRunLoop(opts)
	r.closeHandlesAndDeleteLoop()
	return r.buildResult()
}

// tryInitializeAndRunLoop is transactional: the first failure records a
// primary error and returns, leaving whatever handles exist for the
// teardown pass to close. There is no recovery path.
func (r *runner) tryInitializeAndRunLoop(opts *Options) {
	r.state = runnerInitialized

	r.loop = loop.New(r.clock)

	if code := r.parseOptions(opts); code < 0 {
		r.setError(code)
		return
	}

	if r.timeout > 0 {
		r.timer = loop.NewTimer(r.loop)
		// Unreferenced while armed: a child that exits promptly must
		// end the loop without waiting out the timer.
		r.timer.Unref()
		r.timerInitialized = true

		// Armed before the spawn. If spawning fails the teardown pass
		// closes the timer, which disarms it, so the timeout callback
		// cannot run for a process that never started.
		r.timer.Start(r.timeout, r.onKillTimerTimeout)
	}

	files, toClose, code := r.buildStdioFiles()
	if code < 0 {
		r.setError(code)
		return
	}

	proc, err := loop.Spawn(r.loop, &loop.SpawnOptions{
		File:     r.file,
		Args:     r.args,
		Env:      r.env,
		Cwd:      r.cwd,
		Files:    files,
		SetUID:   r.setUID,
		UID:      r.uid,
		SetGID:   r.setGID,
		GID:      r.gid,
		Detached: r.detached,
		OnExit:   r.onExit,
	})
	closeAll(toClose)
	if err != nil {
		r.setError(errnoFromError(err))
		return
	}
	r.process = proc

	// The child holds its own copies now; drop ours so reads observe
	// EOF when it exits.
	for _, p := range r.pipes {
		if p != nil {
			p.handle.CloseChildEnd()
		}
	}

	for _, p := range r.pipes {
		if p == nil {
			continue
		}
		if code := p.start(); code < 0 {
			r.setError(code)
			return
		}
	}

	r.loop.Run()

	// The loop only returns once the exit callback has fired and all
	// referenced handles went idle.
	if r.err == 0 && r.exitStatus < 0 {
		panic("spawn: loop returned before the child exited")
	}
}

// closeHandlesAndDeleteLoop always runs, whatever initialization
// achieved: it submits a close for every live handle and drains the
// loop until each close callback has fired.
func (r *runner) closeHandlesAndDeleteLoop() {
	if r.state >= runnerHandlesClosed {
		panic("spawn: teardown entered twice")
	}
	r.state = runnerHandlesClosed

	for _, p := range r.pipes {
		if p != nil && (p.state == pipeInitialized || p.state == pipeStarted) {
			p.close()
		}
	}

	if r.timerInitialized {
		// Referenced for teardown: the drain below must wait for the
		// timer's close callback rather than return while the handle
		// still has pending work.
		r.timer.Ref()
		r.timer.Close(nil)
	}

	r.loop.Run()
	r.loop.Close()
}

// buildStdioFiles materializes the child's fd table from the stdio
// plan. The returned extras (dev-null opens, inherit dups) must be
// closed by the caller once the spawn attempt is over; pipe child ends
// are owned by their pipe handles.
func (r *runner) buildStdioFiles() ([]*os.File, []*os.File, Errno) {
	files := make([]*os.File, r.stdioCount)
	var toClose []*os.File

	for i, opt := range r.stdio {
		switch opt.Type {
		case StdioIgnore:
			f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
			if err != nil {
				closeAll(toClose)
				return nil, nil, errnoFromError(err)
			}
			files[i] = f
			toClose = append(toClose, f)

		case StdioPipe:
			files[i] = r.pipes[i].handle.ChildFile()

		case StdioInherit:
			dup, err := unix.Dup(opt.FD)
			if err != nil {
				closeAll(toClose)
				return nil, nil, errnoFromError(err)
			}
			f := os.NewFile(uintptr(dup), "stdio|inherit")
			files[i] = f
			toClose = append(toClose, f)
		}
	}
	return files, toClose, 0
}

// onExit runs on the loop goroutine when the child has been reaped. A
// negative status means the wait itself failed and is recorded as a
// primary error.
func (r *runner) onExit(status int64, termSignal int) {
	if status < 0 {
		r.setError(Errno(status))
		return
	}
	r.exitStatus = status
	r.termSignal = termSignal
	r.stopKillTimer()
}

func (r *runner) onKillTimerTimeout() {
	r.setError(ETIMEDOUT)
	r.kill()
}

// kill delivers the configured signal at most once. ESRCH means the
// child already exited and is ignored. Any other delivery failure is
// recorded as a primary error and the kill retried with the same
// signal; a second failure is a contract violation.
func (r *runner) kill() {
	if r.killed {
		return
	}
	r.killed = true

	if r.process != nil {
		err := r.process.Kill(r.killSignal)
		if code := errnoFromError(err); code != 0 && code != ESRCH {
			r.setError(code)

			err = r.process.Kill(r.killSignal)
			if code := errnoFromError(err); code != 0 && code != ESRCH {
				panic("spawn: kill retry failed: " + code.Error())
			}
		}
	}

	r.stopKillTimer()
}

func (r *runner) stopKillTimer() {
	if (r.timeout > 0) != r.timerInitialized {
		panic("spawn: timer state out of sync with timeout option")
	}
	if r.timerInitialized {
		r.timer.Stop()
	}
}

// incrementBufferedOutput is invoked from every successful pipe read.
// Crossing the cap kills the child; the read that tipped over still
// lands in its chunk chain, as may reads racing the child's death.
func (r *runner) incrementBufferedOutput(n int) {
	r.bufferedOutputSize += int64(n)
	if r.maxBuffer > 0 && r.bufferedOutputSize > int64(r.maxBuffer) {
		r.kill()
	}
}

func (r *runner) getError() Errno {
	if r.err != 0 {
		return r.err
	}
	return r.pipeErr
}

func (r *runner) setError(code Errno) {
	if r.err == 0 {
		r.err = code
	}
}

func (r *runner) setPipeError(code Errno) {
	if r.pipeErr == 0 {
		r.pipeErr = code
	}
}

func (r *runner) buildResult() *Result {
	res := &Result{
		Error:  r.getError(),
		Status: -1,
	}

	if r.exitStatus >= 0 {
		res.Status = r.exitStatus
		res.Output = r.buildOutput()
	}

	if r.termSignal > 0 {
		res.Signal = SignalName(r.termSignal)
	}

	return res
}

func (r *runner) buildOutput() [][]byte {
	out := make([][]byte, r.stdioCount)
	for i, p := range r.pipes {
		if p != nil && p.writable {
			out[i] = p.outputAsBytes()
		}
	}
	return out
}

func closeAll(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}
