package spawn

import (
	"io"

	"github.com/mensylisir/xmspawn/loop"
)

type pipeState int

const (
	pipeUninitialized pipeState = iota
	pipeInitialized
	pipeStarted
	pipeClosing
	pipeClosed
)

// stdioPipe is the per-stream state machine wrapping one loop.Pipe.
// readable/writable describe the child's view. A readable pipe writes
// the caller-supplied input (if any) and then half-closes so the child
// observes EOF; a writable pipe captures the child's output into a
// chunk chain.
type stdioPipe struct {
	runner *runner

	readable bool
	writable bool
	input    []byte

	firstChunk *outputChunk
	lastChunk  *outputChunk

	handle *loop.Pipe
	state  pipeState
}

func newStdioPipe(r *runner, readable, writable bool, input []byte) *stdioPipe {
	if !readable && !writable {
		panic("spawn: stdio pipe must be readable or writable")
	}
	if len(input) > 0 && !readable {
		panic("spawn: input on a non-readable pipe")
	}
	return &stdioPipe{
		runner:   r,
		readable: readable,
		writable: writable,
		input:    input,
	}
}

// initialize creates the OS pipe bound to the loop.
func (p *stdioPipe) initialize(l *loop.Loop) Errno {
	if p.state != pipeUninitialized {
		panic("spawn: pipe initialized twice")
	}
	h, err := loop.NewPipe(l, p.readable, p.writable)
	if err != nil {
		return errnoFromError(err)
	}
	p.handle = h
	p.state = pipeInitialized
	return 0
}

// start enqueues the input write, the half-close and the read loop as
// the pipe's direction requires. The pipe is marked started before any
// enqueue: there is no recovery from a failed start.
func (p *stdioPipe) start() Errno {
	if p.state != pipeInitialized {
		panic("spawn: start on a pipe that is not initialized")
	}
	p.state = pipeStarted

	if p.readable {
		if len(p.input) > 0 {
			p.handle.Write(p.input, p.onWriteDone)
		}
		p.handle.Shutdown(p.onShutdownDone)
	}
	if p.writable {
		p.handle.ReadStart(p.onRead)
	}
	return 0
}

// close submits the async teardown; the Closed state is reached only
// once the close callback has been delivered by the loop.
func (p *stdioPipe) close() {
	if p.state != pipeInitialized && p.state != pipeStarted {
		panic("spawn: close on a pipe outside its legal states")
	}
	p.state = pipeClosing
	p.handle.Close(func() {
		p.state = pipeClosed
	})
}

// onRead is the read path: EOF is a no-op (the loop pipe stops reading
// implicitly), errors demote to the runner's pipe-error slot and stop
// the read defensively, and data lands in the chunk chain before the
// runner's output accounting runs.
func (p *stdioPipe) onRead(data []byte, err error) {
	if err == io.EOF {
		return
	}
	if err != nil {
		p.setError(errnoFromError(err))
		p.handle.ReadStop()
		return
	}

	n := len(data)
	for len(data) > 0 {
		region := p.allocRegion()
		c := copy(region, data)
		p.lastChunk.commit(region, c)
		data = data[c:]
	}
	p.runner.incrementBufferedOutput(n)
}

// allocRegion returns a non-empty write region on the tail chunk,
// growing the chain when the tail is full.
func (p *stdioPipe) allocRegion() []byte {
	if p.lastChunk == nil {
		p.firstChunk = &outputChunk{}
		p.lastChunk = p.firstChunk
	} else if p.lastChunk.available() == 0 {
		next := &outputChunk{}
		p.lastChunk.next = next
		p.lastChunk = next
	}
	return p.lastChunk.allocBuf()
}

func (p *stdioPipe) onWriteDone(err error) {
	if err != nil {
		p.setError(errnoFromError(err))
	}
}

func (p *stdioPipe) onShutdownDone(err error) {
	if err != nil {
		p.setError(errnoFromError(err))
	}
}

func (p *stdioPipe) setError(code Errno) {
	if code == 0 {
		panic("spawn: pipe error with zero code")
	}
	p.runner.setPipeError(code)
}

func (p *stdioPipe) outputLength() int {
	total := 0
	for c := p.firstChunk; c != nil; c = c.next {
		total += c.used
	}
	return total
}

// outputAsBytes flattens the chunk chain into one contiguous buffer,
// in arrival order. Only meaningful for writable pipes.
func (p *stdioPipe) outputAsBytes() []byte {
	out := make([]byte, p.outputLength())
	offset := 0
	for c := p.firstChunk; c != nil; c = c.next {
		offset += c.copyTo(out[offset:])
	}
	return out
}
