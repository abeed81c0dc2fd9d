package watch

import (
	"sync"
	"time"
)

// debouncer coalesces rapid filesystem events into a single trigger. Only
// the last path seen within the quiet interval is forwarded, which keeps
// editor save storms (write + rename + chmod bursts) from queueing several
// rebuilds.
type debouncer struct {
	interval time.Duration
	forward  func(path string)

	mu       sync.Mutex
	timer    *time.Timer
	lastPath string
	stopped  bool
}

func newDebouncer(interval time.Duration, forward func(path string)) *debouncer {
	return &debouncer{
		interval: interval,
		forward:  forward,
	}
}

// trigger records an event for path. If no further events arrive within the
// interval, forward fires with the last path seen. A zero interval forwards
// immediately.
func (d *debouncer) trigger(path string) {
	if d.interval <= 0 {
		d.forward(path)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.lastPath = path

	if d.timer != nil {
		d.timer.Stop()
	}

	// Forwarding happens under the mutex so a callback racing stop either
	// completes before stop acquires the lock or observes the flag and
	// drops out; nothing forwards after stop returns.
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		if d.stopped {
			return
		}

		d.forward(d.lastPath)
	})
}

// stop cancels any pending forward.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
