package store

import (
	"context"
	"sync"
)

// rebuildGate is the indexing barrier: a single shared gate that all read
// operations check before executing. Begin while already active is a
// no-op; End wakes every waiter, not just one.
type rebuildGate struct {
	mu     sync.Mutex
	active bool
	done   chan struct{}
}

func (g *rebuildGate) Begin() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return
	}
	g.active = true
	g.done = make(chan struct{})
}

func (g *rebuildGate) End() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return
	}
	g.active = false
	close(g.done)
}

// Wait blocks until no rebuild is active. Closing the done channel wakes
// all waiters; the loop re-checks in case a new rebuild started.
func (g *rebuildGate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.active {
			g.mu.Unlock()
			return nil
		}
		ch := g.done
		g.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
