package checkout

import (
	"context"
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers into a single run of fn after a
// quiescence window. Trigger resets the window rather than stacking timers,
// so at most one run is pending at any time. Flush runs fn immediately in
// the caller's goroutine, cancelling any pending run; Stop cancels without
// running.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	fn      func(ctx context.Context) error
	onError func(err error)
	timer   *time.Timer
}

const debouncedRunTimeout = 15 * time.Second

func NewDebouncer(window time.Duration, fn func(ctx context.Context) error, onError func(err error)) *Debouncer {
	return &Debouncer{
		window:  window,
		fn:      fn,
		onError: onError,
	}
}

// Trigger schedules fn after the quiescence window, resetting any pending
// run. Only the state captured when fn eventually runs matters; intermediate
// triggers are coalesced.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.run)
}

func (d *Debouncer) run() {
	ctx, cancel := context.WithTimeout(context.Background(), debouncedRunTimeout)
	defer cancel()

	if err := d.fn(ctx); err != nil && d.onError != nil {
		d.onError(err)
	}
}

// Flush cancels any pending run and executes fn synchronously, returning its
// error. Used for the forced pre-confirmation sync that must be strictly
// ordered before payment capture.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	return d.fn(ctx)
}

// Stop cancels a pending run without executing it. In-flight runs are not
// interrupted.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
