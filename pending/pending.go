// Package pending implements the deferred "wait for media to appear" mechanism.
// A message may reach the bot before its link embed has been resolved; the
// dispatcher then parks the request here for a short window so a later message
// edit (carrying the resolved embed) can still trigger the pipeline.
package pending

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of a Wait.
type Result int

const (
	// Resolved means an edit supplied media before the window closed.
	Resolved Result = iota
	// TimedOut means the window elapsed with no edit.
	TimedOut
	// Canceled means the caller's context was withdrawn.
	Canceled
)

// Waitlist tracks messages waiting for media, keyed by message ID. It is a
// process-wide state object created at startup and mutated only under its
// mutex; entries live for at most one wait window.
type Waitlist struct {
	mu      sync.Mutex
	waiters map[string]chan struct{}
}

func NewWaitlist() *Waitlist {
	return &Waitlist{waiters: make(map[string]chan struct{})}
}

// Wait registers the message ID and blocks until an edit resolves it, the
// window elapses, or ctx is done. The entry is removed exactly once no matter
// how the timeout and a concurrent Resolve race: removal happens under the
// mutex and the closed channel is the single-resolution signal.
func (w *Waitlist) Wait(ctx context.Context, id string, window time.Duration) Result {
	ch := make(chan struct{})
	w.mu.Lock()
	// A second Wait for the same ID supersedes the first; the superseded
	// waiter simply runs out its window unresolved.
	w.waiters[id] = ch
	w.mu.Unlock()

	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case <-ch:
		return Resolved
	case <-timer.C:
		if owned, resolved := w.take(id, ch); !owned && resolved {
			// Resolve won the race; only its caller acts on the edit.
			return Resolved
		}
		return TimedOut
	case <-ctx.Done():
		w.take(id, ch)
		return Canceled
	}
}

// Resolve fires the waiter for id, if one exists. Returns true when a waiter
// was present and has now been released; false for unknown or already
// resolved IDs, so edits to non-pending messages are cheap no-ops. The close
// happens under the mutex so the timeout path can observe it atomically with
// the map lookup.
func (w *Waitlist) Resolve(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.waiters[id]
	if !ok {
		return false
	}
	delete(w.waiters, id)
	close(ch)
	return true
}

// Waiting reports whether id currently has a registered waiter.
func (w *Waitlist) Waiting(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.waiters[id]
	return ok
}

// Len returns the number of pending entries (exported for the metrics gauge).
func (w *Waitlist) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiters)
}

// take drops the entry only if it still points at ch, so a timed-out waiter
// never removes a successor registered for the same message ID. When the
// entry is gone, resolved reports whether a Resolve (as opposed to a
// superseding Wait) took it.
func (w *Waitlist) take(id string, ch chan struct{}) (owned, resolved bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.waiters[id]; ok && cur == ch {
		delete(w.waiters, id)
		return true, false
	}
	select {
	case <-ch:
		return false, true
	default:
		return false, false
	}
}
