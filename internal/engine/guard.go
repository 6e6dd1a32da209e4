// Package engine holds the optimistic mutation and reconciliation engine:
// the single-flight guard, the per-relation toggle coordinator, and the
// debounced search reconciler.
package engine

import (
	"sync"

	"github.com/artpar/kith/internal/core"
)

type guardKey struct {
	id     string
	action core.Action
}

// Guard allows at most one in-flight mutation per (entity, action). State is
// memory only.
type Guard struct {
	mu   sync.Mutex
	held map[guardKey]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{held: make(map[guardKey]struct{})}
}

// TryAcquire takes the slot for (id, action). It returns false and changes
// nothing if the slot is already held.
func (g *Guard) TryAcquire(id string, action core.Action) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := guardKey{id: id, action: action}
	if _, ok := g.held[k]; ok {
		return false
	}
	g.held[k] = struct{}{}
	return true
}

// Release frees the slot for (id, action). Releasing a free slot is a no-op.
func (g *Guard) Release(id string, action core.Action) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, guardKey{id: id, action: action})
}

// Held reports whether a mutation for (id, action) is in flight.
func (g *Guard) Held(id string, action core.Action) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[guardKey{id: id, action: action}]
	return ok
}

// Len returns the number of held slots.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}
