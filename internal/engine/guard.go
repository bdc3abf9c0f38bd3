// Package engine owns the processing session: the registry, the periodic
// reconciliation ticks, the loaded macro, and the built-in batch operations.
package engine

import "sync"

// Guard enforces a single live session per process. The host embeds the
// engine once; a second session would double-subscribe every ROI object and
// fight over checkbox state.
type Guard struct {
	mu   sync.Mutex
	held bool
}

// TryAcquire claims the guard. Returns false when a session already holds
// it.
func (g *Guard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return false
	}
	g.held = true
	return true
}

// Release frees the guard. Idempotent; releasing an unheld guard is a no-op.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
}

// Held reports whether a session currently holds the guard.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}
