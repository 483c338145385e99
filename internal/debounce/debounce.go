// Package debounce coalesces bursts of events into one call.
package debounce

import (
	"sync"
	"time"
)

var afterFunc = time.AfterFunc

// Debouncer runs fn once after a burst of Trigger calls has been quiet for
// delay. A callback from a timer that was replaced or stopped does nothing.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	gen   uint64
	fn    func()
}

func New(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	gen := d.cancelLocked()
	d.timer = afterFunc(d.delay, func() {
		if d.claim(gen) {
			d.fn()
		}
	})
}

// Stop cancels a pending call. Trigger may be used again afterwards.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

// cancelLocked stops the current timer and invalidates its callback,
// returning the generation of the next one.
func (d *Debouncer) cancelLocked() uint64 {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	return d.gen
}

// claim reports whether the callback of generation gen is still current.
func (d *Debouncer) claim(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return false
	}
	d.timer = nil
	return true
}
