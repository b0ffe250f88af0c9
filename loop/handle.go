package loop

// Handle is the common state shared by everything bound to a Loop.
// A handle contributes to loop liveness while it is active and
// referenced; a closing handle contributes until its close callback has
// been delivered, regardless of the ref flag.
//
// Handle state is mutated only on the loop goroutine (inside posted
// callbacks) or on the caller's goroutine between Run invocations, so
// the loop mutex is held only for the liveness counters.
type Handle struct {
	loop       *Loop
	active     bool
	referenced bool
	closing    bool
	closed     bool
}

func (h *Handle) init(l *Loop) {
	h.loop = l
	h.referenced = true
}

// Ref marks the handle as keeping the loop alive while active.
func (h *Handle) Ref() {
	h.updateLiveness(func() { h.referenced = true })
}

// Unref marks the handle as not keeping the loop alive on its own.
func (h *Handle) Unref() {
	h.updateLiveness(func() { h.referenced = false })
}

// Closing reports whether Close has been requested on the handle.
func (h *Handle) Closing() bool {
	return h.closing
}

// Closed reports whether the handle's close callback has been delivered.
func (h *Handle) Closed() bool {
	return h.closed
}

func (h *Handle) setActive(active bool) {
	h.updateLiveness(func() { h.active = active })
}

// startClosing moves the handle into the closing state. The handle stops
// counting as active and starts counting as closing until finishClose.
func (h *Handle) startClosing() {
	if h.closing || h.closed {
		panic("loop: handle closed twice")
	}
	h.updateLiveness(func() { h.closing = true })
}

func (h *Handle) finishClose() {
	h.updateLiveness(func() {
		h.closing = false
		h.closed = true
	})
}

// updateLiveness applies a state mutation and keeps the loop's liveness
// counters in sync with the handle's before/after contribution.
func (h *Handle) updateLiveness(mutate func()) {
	l := h.loop
	l.mu.Lock()
	beforeAlive, beforeClosing := h.contribution()
	mutate()
	afterAlive, afterClosing := h.contribution()
	l.aliveN += afterAlive - beforeAlive
	l.closing += afterClosing - beforeClosing
	l.mu.Unlock()
	l.cond.Signal()
}

func (h *Handle) contribution() (alive, closing int) {
	if h.closing {
		return 0, 1
	}
	if h.closed {
		return 0, 0
	}
	if h.active && h.referenced {
		return 1, 0
	}
	return 0, 0
}
