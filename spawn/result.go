package spawn

// Result is the outcome of one synchronous spawn. It is always
// returned, whatever went wrong; inspect Error to distinguish failures.
type Result struct {
	// Error is the first high-priority error recorded during the run,
	// falling back to the first pipe-level error. Zero when the run
	// completed cleanly.
	Error Errno

	// Status is the child's exit code, or -1 when the child never
	// started. A signalled child reports the status the OS assigns it
	// (0 on this platform) together with Signal.
	Status int64

	// Signal is the name of the signal that terminated the child
	// ("SIGTERM"), or empty.
	Signal string

	// Output has one entry per stdio slot: captured bytes for
	// child-writable pipes (possibly empty, never nil), nil for
	// ignored, inherited and non-writable slots. Output itself is nil
	// when the child never started.
	Output [][]byte
}

// Started reports whether the child process ever ran.
func (r *Result) Started() bool {
	return r.Status >= 0
}

// Err returns the recorded error as a Go error, or nil.
func (r *Result) Err() error {
	if r.Error == 0 {
		return nil
	}
	return r.Error
}

// Stdout returns the capture for fd 1, if that slot was a writable pipe.
func (r *Result) Stdout() []byte {
	return r.outputAt(1)
}

// Stderr returns the capture for fd 2, if that slot was a writable pipe.
func (r *Result) Stderr() []byte {
	return r.outputAt(2)
}

func (r *Result) outputAt(i int) []byte {
	if i < len(r.Output) {
		return r.Output[i]
	}
	return nil
}
