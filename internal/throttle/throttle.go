// Package throttle rate-limits a callback to one call per interval while
// guaranteeing that the last trigger in a burst is eventually delivered.
package throttle

import (
	"sync"
	"time"
)

// Throttler calls fn at most once per interval. The first trigger after a
// quiet period fires immediately; triggers inside the interval collapse into
// a single trailing call at the end of it. fn should read the latest state
// when it runs rather than capture it at trigger time.
type Throttler struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	last    time.Time
	timer   *time.Timer
	pending bool
	stopped bool

	callMu sync.Mutex // serializes fn
}

// New returns a throttler for fn. A non-positive interval disables throttling.
func New(interval time.Duration, fn func()) *Throttler {
	return &Throttler{interval: interval, fn: fn}
}

// Trigger requests a call of fn.
func (t *Throttler) Trigger() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.pending {
		t.mu.Unlock()
		return
	}
	wait := t.interval - time.Since(t.last)
	if t.interval <= 0 || wait <= 0 {
		t.last = time.Now()
		t.mu.Unlock()
		t.call()
		return
	}
	t.pending = true
	t.timer = time.AfterFunc(wait, t.fire)
	t.mu.Unlock()
}

func (t *Throttler) fire() {
	t.mu.Lock()
	if !t.pending || t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.timer = nil
	t.last = time.Now()
	t.mu.Unlock()
	t.call()
}

// Flush runs a pending trailing call immediately.
func (t *Throttler) Flush() {
	t.mu.Lock()
	if !t.pending || t.stopped {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
	t.last = time.Now()
	t.mu.Unlock()
	t.call()
}

// Pending reports whether a trailing call is scheduled.
func (t *Throttler) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Stop cancels any pending call; later triggers are ignored.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Throttler) call() {
	t.callMu.Lock()
	defer t.callMu.Unlock()
	t.fn()
}
