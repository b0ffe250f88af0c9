package loop

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// readBufSize is the per-read scratch allocation for pipe readers.
const readBufSize = 65536

// Pipe wraps the parent end of a stdio channel shared with a child
// process. The channel is a unix socketpair, so a single handle can be
// both readable and writable from the child's perspective: the parent
// writes input on a child-readable pipe and captures output from a
// child-writable one.
//
// Writes and the half-close are serialized on a single writer goroutine,
// so a Shutdown submitted after a Write is only performed once the write
// has drained. Reads run on a dedicated reader goroutine; results are
// delivered as loop events.
type Pipe struct {
	Handle

	readable bool // child reads from this pipe
	writable bool // child writes to this pipe

	parent *os.File
	child  *os.File

	ops      chan pipeOp
	writerOn bool

	reading  bool
	stopRead atomic.Bool
	ioClosed atomic.Bool

	pending int // queued write/shutdown operations not yet completed

	wg sync.WaitGroup
}

type pipeOp struct {
	data     []byte // nil for a shutdown op
	shutdown bool
	done     func(error)
}

// NewPipe creates the socketpair backing one stdio slot. readable and
// writable describe the child's view of the pipe; at least one must be
// set. The parent end is switched to non-blocking mode so pending I/O
// can be cancelled by closing the handle.
func NewPipe(l *Loop, readable, writable bool) (*Pipe, error) {
	if !readable && !writable {
		panic("loop: pipe must be readable or writable")
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}

	p := &Pipe{
		readable: readable,
		writable: writable,
		parent:   os.NewFile(uintptr(fds[0]), "pipe|parent"),
		child:    os.NewFile(uintptr(fds[1]), "pipe|child"),
		ops:      make(chan pipeOp, 4),
	}
	p.init(l)
	return p, nil
}

// Readable reports whether the child reads from this pipe.
func (p *Pipe) Readable() bool { return p.readable }

// Writable reports whether the child writes to this pipe.
func (p *Pipe) Writable() bool { return p.writable }

// ChildFile returns the child end, to be placed in the spawned process's
// fd table. The loop retains ownership; call CloseChildEnd once the
// child holds its own copy.
func (p *Pipe) ChildFile() *os.File {
	return p.child
}

// CloseChildEnd releases the parent's copy of the child end. Must be
// called after a successful spawn so reads observe EOF when the child
// exits.
func (p *Pipe) CloseChildEnd() {
	if p.child != nil {
		p.child.Close()
		p.child = nil
	}
}

// Write queues data to be written to the child, in full, in submission
// order. done is invoked on the loop goroutine with the write outcome;
// a write cancelled by Close completes with ECANCELED.
func (p *Pipe) Write(data []byte, done func(error)) {
	if p.closing || p.closed {
		panic("loop: Write on closing pipe")
	}
	p.pending++
	p.setActive(true)
	p.ensureWriter()
	p.ops <- pipeOp{data: data, done: done}
}

// Shutdown queues a half-close of the parent's write side, performed
// after every previously queued write has drained. The child observes
// EOF on its read end.
func (p *Pipe) Shutdown(done func(error)) {
	if p.closing || p.closed {
		panic("loop: Shutdown on closing pipe")
	}
	p.pending++
	p.setActive(true)
	p.ensureWriter()
	p.ops <- pipeOp{shutdown: true, done: done}
}

func (p *Pipe) ensureWriter() {
	if p.writerOn {
		return
	}
	p.writerOn = true
	p.wg.Add(1)
	go p.writerLoop()
}

func (p *Pipe) writerLoop() {
	defer p.wg.Done()
	for op := range p.ops {
		op := op
		var err error
		if p.ioClosed.Load() {
			err = syscall.ECANCELED
		} else if op.shutdown {
			err = p.shutdownWrite()
		} else {
			err = p.writeAll(op.data)
		}
		if isClosedErr(err) {
			err = syscall.ECANCELED
		}
		opErr := err
		p.loop.post(func() {
			p.pending--
			p.recomputeActive()
			if op.done != nil {
				op.done(opErr)
			}
		})
	}
}

func (p *Pipe) writeAll(data []byte) error {
	for len(data) > 0 {
		n, err := p.parent.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (p *Pipe) shutdownWrite() error {
	rc, err := p.parent.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	cerr := rc.Control(func(fd uintptr) {
		serr = unix.Shutdown(int(fd), unix.SHUT_WR)
	})
	if cerr != nil {
		return cerr
	}
	return serr
}

// ReadStart begins delivering the child's output. cb runs on the loop
// goroutine with either a data slice, io.EOF, or a read error. The pipe
// stops reading implicitly on EOF or error; ReadStop stops it early.
func (p *Pipe) ReadStart(cb func(data []byte, err error)) {
	if p.closing || p.closed {
		panic("loop: ReadStart on closing pipe")
	}
	p.reading = true
	p.stopRead.Store(false)
	p.setActive(true)
	p.wg.Add(1)
	go p.readerLoop(cb)
}

func (p *Pipe) readerLoop(cb func(data []byte, err error)) {
	defer p.wg.Done()
	for {
		if p.stopRead.Load() || p.ioClosed.Load() {
			return
		}
		buf := make([]byte, readBufSize)
		n, err := p.parent.Read(buf)
		if n > 0 {
			data := buf[:n]
			p.loop.post(func() {
				if p.closing || p.closed || p.stopRead.Load() {
					return
				}
				cb(data, nil)
			})
		}
		if err != nil {
			if isClosedErr(err) {
				// Cancelled by Close; no event.
				return
			}
			rerr := err
			p.loop.post(func() {
				if p.closing || p.closed || p.stopRead.Load() {
					return
				}
				p.reading = false
				p.recomputeActive()
				cb(nil, rerr)
			})
			return
		}
	}
}

// ReadStop stops the read loop. Reads already performed but not yet
// delivered are dropped.
func (p *Pipe) ReadStop() {
	p.stopRead.Store(true)
	p.reading = false
	p.recomputeActive()
}

// Close cancels outstanding I/O, closes both ends of the socketpair and
// delivers cb once every pipe goroutine has drained. Queued writes and
// shutdowns complete with ECANCELED before the close callback fires.
func (p *Pipe) Close(cb func()) {
	p.startClosing()
	p.ioClosed.Store(true)
	p.parent.Close()
	if p.child != nil {
		p.child.Close()
		p.child = nil
	}
	if p.writerOn {
		close(p.ops)
	}
	go func() {
		p.wg.Wait()
		p.loop.post(func() {
			p.finishClose()
			if cb != nil {
				cb()
			}
		})
	}()
}

func (p *Pipe) recomputeActive() {
	p.setActive(p.reading || p.pending > 0)
}

func isClosedErr(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EBADF)
}
