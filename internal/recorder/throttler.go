// File: internal/recorder/throttler.go
package recorder

import (
	"sync"
	"time"
)

// Throttler coalesces rapid scheduling requests. Within one delay window only
// the most recently scheduled unit of work fires; scheduling while a unit is
// pending replaces it without extending the window, so the last request is
// always the one that eventually runs.
type Throttler struct {
	delay time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	pending  func()
	stopped  bool
	inFlight sync.WaitGroup
}

// NewThrottler creates a throttler with the given delay window.
func NewThrottler(delay time.Duration) *Throttler {
	return &Throttler{delay: delay}
}

// Schedule queues fn to run after the delay window, replacing any pending
// unit of work.
func (t *Throttler) Schedule(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.pending = fn
	if t.timer == nil {
		t.inFlight.Add(1)
		t.timer = time.AfterFunc(t.delay, t.fire)
	}
}

// ScheduleImmediate bypasses the delay window: any pending unit of work is
// discarded and fn runs at once (asynchronously, like a fired unit would).
func (t *Throttler) ScheduleImmediate(fn func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.cancelTimerLocked()
	t.pending = nil
	t.inFlight.Add(1)
	t.mu.Unlock()
	go func() {
		defer t.inFlight.Done()
		fn()
	}()
}

// Stop discards pending work, rejects further scheduling, and waits for any
// unit of work that already fired to finish running.
func (t *Throttler) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.cancelTimerLocked()
	t.pending = nil
	t.mu.Unlock()
	t.inFlight.Wait()
}

// cancelTimerLocked stops the armed timer. When Stop wins the race with the
// timer the fire callback will never run, so its in-flight slot is released
// here; when the timer already fired, fire releases it itself.
func (t *Throttler) cancelTimerLocked() {
	if t.timer == nil {
		return
	}
	if t.timer.Stop() {
		t.inFlight.Done()
	}
	t.timer = nil
}

func (t *Throttler) fire() {
	defer t.inFlight.Done()
	t.mu.Lock()
	fn := t.pending
	t.pending = nil
	t.timer = nil
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}
