package debounce

import (
	"sync"
	"time"
)

// Debouncer defers a function until triggers have settled for a window.
// Each Trigger replaces the pending call, so only the last one runs.
type Debouncer struct {
	mu      sync.Mutex
	run     sync.Mutex
	window  time.Duration
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func New(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Trigger schedules fn to run after the window, cancelling any pending call.
// It returns false once the debouncer is stopped. Calls never overlap: a timer
// checks its generation only after the previous call has returned.
func (d *Debouncer) Trigger(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() {
		d.run.Lock()
		defer d.run.Unlock()

		d.mu.Lock()
		current := !d.stopped && gen == d.gen
		if current {
			d.timer = nil
		}
		d.mu.Unlock()

		// a timer that lost the Stop race still sees a newer generation
		if current {
			fn()
		}
	})
	return true
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// Stop cancels the pending call and rejects future triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
