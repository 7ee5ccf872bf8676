// Package listeners implements the subscription lists used throughout the
// binding runtime.
//
// A Registry stores listeners weakly: registering with an object never keeps
// the listener alive. Dead listeners are dropped lazily, when a raise walks
// over them or when the array is compacted.
package listeners

import (
	"sync"
	"sync/atomic"
	"weak"
)

type entry struct {
	handle  Handle
	removed atomic.Bool
}

// Registry is an insertion ordered list of listener handles with lazy
// removal. Raise iterates a snapshot, so listeners may be added or removed
// while a raise is in flight.
type Registry struct {
	mu    sync.Mutex
	items []*entry
	holes int

	onFirst func()
	onLast  func()
}

// New creates a registry. onFirst runs when the live count goes from zero to
// one and onLast when it drops back to zero. Either may be nil. Hooks run
// without the registry lock held.
func New(onFirst, onLast func()) *Registry {
	return &Registry{onFirst: onFirst, onLast: onLast}
}

// Token identifies one registration. It refers to its registry weakly, a
// registry embedded in an observed object must not be kept alive by the
// subscriptions made on it.
type Token struct {
	r weak.Pointer[Registry]
	e *entry
}

// Remove unregisters the listener. It reports false when it was already gone.
func (t Token) Remove() bool {
	if t.e == nil {
		return false
	}
	r := t.r.Value()
	if r == nil {
		return t.e.removed.CompareAndSwap(false, true)
	}
	return r.remove(t.e)
}

func (t Token) IsZero() bool { return t.e == nil }

// Add registers l weakly with the given state.
func (r *Registry) Add(l Listener, state any) Token {
	return r.AddHandle(NewHandle(l, state))
}

// AddStrong registers l and keeps it alive until removed.
func (r *Registry) AddStrong(l Listener, state any) Token {
	return r.AddHandle(StrongHandle(l, state))
}

func (r *Registry) AddHandle(h Handle) Token {
	e := &entry{handle: h}

	r.mu.Lock()
	r.items = append(r.items, e)
	first := len(r.items)-r.holes == 1
	r.mu.Unlock()

	if first && r.onFirst != nil {
		r.onFirst()
	}
	return Token{r: weak.Make(r), e: e}
}

func (r *Registry) remove(e *entry) bool {
	r.mu.Lock()
	if !e.removed.CompareAndSwap(false, true) {
		r.mu.Unlock()
		return false
	}
	r.holes++
	empty := len(r.items) == r.holes
	if r.holes*2 > len(r.items) {
		r.compactLocked()
	}
	r.mu.Unlock()

	if empty && r.onLast != nil {
		r.onLast()
	}
	return true
}

// compactLocked rebuilds the array into fresh storage so snapshots taken by
// in-flight raises stay intact.
func (r *Registry) compactLocked() {
	live := len(r.items) - r.holes
	if live == 0 {
		r.items = nil
		r.holes = 0
		return
	}
	items := make([]*entry, 0, live)
	for _, e := range r.items {
		if !e.removed.Load() {
			items = append(items, e)
		}
	}
	r.items = items
	r.holes = 0
}

// Raise delivers msg to every live listener whose state satisfies match (all
// listeners when match is nil), in insertion order. Dead listeners and
// listeners returning false are removed. It returns the number of deliveries.
func (r *Registry) Raise(sender, msg any, match func(state any) bool) int {
	r.mu.Lock()
	items := r.items
	r.mu.Unlock()

	n := 0
	for _, e := range items {
		if e.removed.Load() {
			continue
		}
		l := e.handle.Listener()
		if l == nil {
			r.remove(e)
			continue
		}
		if match != nil && !match(e.handle.state) {
			continue
		}
		n++
		if !l.Handle(sender, msg) {
			r.remove(e)
		}
	}
	return n
}

// Compact drops collected listeners and rebuilds the array when holes
// dominate. It returns the number of evicted listeners.
func (r *Registry) Compact() int {
	r.mu.Lock()
	items := r.items
	r.mu.Unlock()

	n := 0
	for _, e := range items {
		if !e.removed.Load() && !e.handle.IsAlive() && r.remove(e) {
			n++
		}
	}
	return n
}

// Count returns the number of registered listeners, including collected ones
// not yet evicted.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items) - r.holes
}

// Stats describes the physical layout of the registry.
type Stats struct {
	Live     int
	Holes    int
	Capacity int
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Live:     len(r.items) - r.holes,
		Holes:    r.holes,
		Capacity: cap(r.items),
	}
}

// Clear removes every listener, running onLast once if any was registered.
func (r *Registry) Clear() {
	r.mu.Lock()
	items := r.items
	live := len(r.items) - r.holes
	for _, e := range items {
		e.removed.Store(true)
	}
	r.items = nil
	r.holes = 0
	r.mu.Unlock()

	if live > 0 && r.onLast != nil {
		r.onLast()
	}
}
