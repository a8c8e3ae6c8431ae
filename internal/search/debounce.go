package search

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the input-silence window before a query is issued.
const DefaultWindow = 350 * time.Millisecond

// Debouncer coalesces rapid query submissions into one call and discards
// results whose query went stale while in flight. Staleness is a
// generation check at commit time, not a cancellation of the call itself.
type Debouncer struct {
	window time.Duration
	run    func(ctx context.Context, query string)

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	pending string
	inrun   sync.WaitGroup
}

// NewDebouncer returns a debouncer invoking run after window of silence.
// A zero window uses DefaultWindow. run is called on the timer goroutine
// and should commit its result through the context handed to it, which is
// canceled once a newer query supersedes this one.
func NewDebouncer(window time.Duration, run func(ctx context.Context, query string)) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{window: window, run: run}
}

// Submit records query as the latest input and restarts the silence
// window. Only the query standing when the window elapses is issued.
func (d *Debouncer) Submit(ctx context.Context, query string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	d.pending = query
	d.stopTimerLocked()
	d.inrun.Add(1)
	d.timer = time.AfterFunc(d.window, func() {
		defer d.inrun.Done()
		d.fire(ctx, gen, query)
	})
}

// Flush cancels any pending query without issuing it.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.stopTimerLocked()
}

// Drain issues the pending query immediately, if any, and waits until no
// run is in flight. Shutdown path: the last line typed before EOF is
// still searched, and Drain returns only once its output is committed.
func (d *Debouncer) Drain(ctx context.Context) {
	d.mu.Lock()
	gen := d.gen
	query := d.pending
	stopped := d.timer != nil && d.timer.Stop()
	if stopped {
		d.inrun.Done()
	}
	d.timer = nil
	d.mu.Unlock()

	if stopped {
		d.fire(ctx, gen, query)
	}
	d.inrun.Wait()
}

// stopTimerLocked stops a not-yet-fired timer and releases its run slot.
// A timer that already fired keeps its slot until the run returns.
func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil && d.timer.Stop() {
		d.inrun.Done()
	}
	d.timer = nil
}

func (d *Debouncer) fire(ctx context.Context, gen uint64, query string) {
	d.mu.Lock()
	stale := gen != d.gen
	d.mu.Unlock()
	if stale {
		return
	}
	d.run(newGuardContext(ctx, d, gen), query)
}

// Latest reports whether the query issued under the given guard context is
// still the newest one. Callers check this before committing results so a
// slow response for an old query never overwrites a newer one.
func Latest(ctx context.Context) bool {
	guard, ok := ctx.Value(guardKey{}).(*guard)
	if !ok {
		return true
	}
	guard.d.mu.Lock()
	defer guard.d.mu.Unlock()
	return guard.gen == guard.d.gen
}

type guardKey struct{}

type guard struct {
	d   *Debouncer
	gen uint64
}

func newGuardContext(parent context.Context, d *Debouncer, gen uint64) context.Context {
	return context.WithValue(parent, guardKey{}, &guard{d: d, gen: gen})
}
