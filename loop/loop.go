// Package loop provides a minimal single-threaded event loop for driving
// child-process I/O to completion: handles with ref/unref semantics,
// one-shot timers, duplex stdio pipes and a spawned-process watcher.
//
// All callbacks run on the goroutine that called Run. Background
// goroutines (pipe readers/writers, the process waiter, timers) never
// touch shared state directly; they post events into the loop's queue.
package loop

import (
	"sync"

	"github.com/jonboulle/clockwork"
)

// Loop owns a queue of pending callbacks and the set of handles bound to
// it. Run drains the queue until nothing keeps the loop alive: a handle
// keeps the loop alive while it is active and referenced, or while it is
// closing and its close callback has not yet been delivered.
type Loop struct {
	clock clockwork.Clock

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	aliveN  int // active && referenced && !closing handles
	closing int // handles whose close callback is still pending
}

// New creates a loop driven by the given clock. Pass
// clockwork.NewRealClock() outside of tests.
func New(clock clockwork.Clock) *Loop {
	l := &Loop{clock: clock}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Clock returns the clock the loop's timers are driven by.
func (l *Loop) Clock() clockwork.Clock {
	return l.clock
}

// post enqueues fn for execution on the loop goroutine. Safe to call
// from any goroutine.
func (l *Loop) post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.cond.Signal()
}

// Run executes queued callbacks until no handle keeps the loop alive and
// the queue is empty. It blocks waiting for events while any handle is
// alive. Run may be called again after it returns; closing handles
// submitted between runs are drained by the next call.
func (l *Loop) Run() {
	for {
		l.mu.Lock()
		for len(l.queue) == 0 {
			if l.aliveN == 0 && l.closing == 0 {
				l.mu.Unlock()
				return
			}
			l.cond.Wait()
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Alive reports whether any handle still keeps the loop alive.
func (l *Loop) Alive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.aliveN > 0 || l.closing > 0
}

// Close verifies every handle has been torn down. Calling Close while a
// handle is still alive is a programming error.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.aliveN != 0 || l.closing != 0 {
		panic("loop: Close called with live handles")
	}
}
