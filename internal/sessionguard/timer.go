package sessionguard

import (
	"sync"
	"time"
)

// Timer is a cancellable single-shot timer that can be rescheduled. Each
// Reset or Stop bumps a generation counter; a callback only runs if its
// generation is still current when it fires, so a superseded callback never
// runs even if the underlying timer already fired.
type Timer struct {
	clock Clock

	mu      sync.Mutex
	gen     uint64
	pending Stopper
}

// NewTimer creates an idle timer on clock.
func NewTimer(clock Clock) *Timer {
	return &Timer{clock: clock}
}

// Reset cancels any pending callback and schedules fn after d.
func (t *Timer) Reset(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen
	if t.pending != nil {
		t.pending.Stop()
	}
	t.pending = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if t.gen != gen {
			t.mu.Unlock()
			return
		}
		t.pending = nil
		t.mu.Unlock()
		fn()
	})
}

// Stop cancels any pending callback.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// Pending reports whether a callback is scheduled.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}
