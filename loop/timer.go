package loop

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a one-shot timer handle. The expiry callback is delivered on
// the loop goroutine. A stopped or restarted timer never delivers a
// stale expiry: every Start/Stop bumps a generation counter and expiry
// events from older generations are dropped.
type Timer struct {
	Handle

	gen     uint64
	pending clockwork.Timer
}

// NewTimer creates a timer bound to the loop. The timer is referenced by
// default; callers that want it to not keep the loop alive must Unref it.
func NewTimer(l *Loop) *Timer {
	t := &Timer{}
	t.init(l)
	return t
}

// Start arms the timer to fire once after delay. Restarting an armed
// timer replaces the previous deadline.
func (t *Timer) Start(delay time.Duration, cb func()) {
	if t.closing || t.closed {
		panic("loop: Start on closed timer")
	}
	t.stopPending()
	t.gen++
	gen := t.gen
	t.setActive(true)
	t.pending = t.loop.clock.AfterFunc(delay, func() {
		t.loop.post(func() {
			if t.closing || t.closed || gen != t.gen {
				return
			}
			t.setActive(false)
			cb()
		})
	})
}

// Stop disarms the timer. A pending expiry that has already been posted
// is discarded.
func (t *Timer) Stop() {
	if t.closing || t.closed {
		panic("loop: Stop on closed timer")
	}
	t.stopPending()
	t.gen++
	t.setActive(false)
}

// Close disarms the timer and schedules cb to run once the handle is
// fully closed. The loop stays alive until the callback is delivered.
func (t *Timer) Close(cb func()) {
	t.stopPending()
	t.gen++
	t.startClosing()
	t.loop.post(func() {
		t.finishClose()
		if cb != nil {
			cb()
		}
	})
}

func (t *Timer) stopPending() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}
