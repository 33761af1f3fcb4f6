package listing

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a typed filter is applied.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer runs an action once input has been quiet for a delay.
type Debouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	action func()
	timer  *time.Timer
	gen    uint64
}

// NewDebouncer returns a Debouncer for action. delay <= 0 uses
// DefaultDebounce.
func NewDebouncer(delay time.Duration, action func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, action: action}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Flush cancels any pending run and runs the action now.
func (d *Debouncer) Flush() {
	d.Cancel()
	d.action()
}

// Cancel drops a pending run.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// fire runs the action for the timer started at gen. A timer that was
// replaced or cancelled after it expired does nothing.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.action()
}
