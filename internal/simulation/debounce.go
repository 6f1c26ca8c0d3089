package simulation

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid calls into one invocation after a quiet period.
// A timer that fires while being re-armed is ignored, so only the most
// recently scheduled function can ever run.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	gen      uint64
	pending  func()
}

// NewDebouncer creates a new debouncer with the specified duration
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
	}
}

// Debounce executes fn after the debounce duration has elapsed without any
// new calls. Rapid successive calls reset the timer.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = time.AfterFunc(d.duration, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

// Cancel cancels any pending call. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	had := d.pending != nil
	d.gen++
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return had
}

// Flush runs the pending call now instead of waiting for the timer. It
// reports whether anything was pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.pending
	if fn == nil {
		d.mu.Unlock()
		return false
	}
	d.gen++
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	fn()
	return true
}

// DefaultInterval is the quiet period used when none is configured.
const DefaultInterval = 500 * time.Millisecond
