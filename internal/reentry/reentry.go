package reentry

import (
	"sync"

	"github.com/petermattis/goid"
)

// Guard tracks which goroutines are currently inside a guarded section.
// Entering twice on the same goroutine fails, other goroutines are unaffected.
type Guard struct {
	mu     sync.Mutex
	active map[int64]struct{}
}

// Enter marks the calling goroutine as inside the section. It returns false
// when the goroutine is already inside.
func (g *Guard) Enter() bool {
	gid := goid.Get()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active == nil {
		g.active = map[int64]struct{}{}
	}
	if _, ok := g.active[gid]; ok {
		return false
	}
	g.active[gid] = struct{}{}
	return true
}

// Exit leaves the section entered with Enter.
func (g *Guard) Exit() {
	gid := goid.Get()

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, gid)
}

// Active reports whether the calling goroutine is inside the section.
func (g *Guard) Active() bool {
	gid := goid.Get()

	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[gid]
	return ok
}
