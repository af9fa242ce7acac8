package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events per path so that a burst of saves
// against one file produces at most one downstream ingest.
//
// Each path's pending timer is independent: a deliberate divergence from a
// single global flush timer, since a single shared timer lets an event on
// an unrelated path extend or reset the delay for every other pending
// path. A map[string]*time.Timer guarded by its own mutex means path A's
// burst never blocks or delays path B's.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	timers  map[string]*time.Timer
	output  chan []FileEvent
	stopped bool
}

// NewDebouncer creates a new debouncer with the given per-path window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		timers: make(map[string]*time.Timer),
		output: make(chan []FileEvent, 10),
	}
}

// Add schedules event's path for dispatch after the debounce window. Any
// prior pending timer for the same path is cancelled and replaced — the
// path is dispatched once, using the most recent event seen for it.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	path := event.Path
	if t, ok := d.timers[path]; ok {
		t.Stop()
	}

	d.timers[path] = time.AfterFunc(d.window, func() {
		d.fire(path, event)
	})
}

// fire emits the single event for path and clears its pending state.
func (d *Debouncer) fire(path string, event FileEvent) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.timers, path)
	d.mu.Unlock()

	select {
	case d.output <- []FileEvent{event}:
	default:
		slog.Warn("debouncer output full, dropping event", slog.String("path", path))
	}
}

// Output returns the channel of debounced event batches. Each batch holds
// exactly one event, emitted once its path's debounce window has elapsed.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop stops all pending timers and closes the output channel. Safe to
// call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true

	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = nil
	close(d.output)
}
