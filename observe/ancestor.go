package observe

import (
	"reflect"
	"sync"

	"github.com/delaneyj/bindparty/internal/reentry"
	"github.com/delaneyj/bindparty/listeners"
	"github.com/delaneyj/bindparty/weakref"
)

// RootAncestorObserver tracks the parent chain of a Parented target. It
// registers itself with the observer of its parent, so a change anywhere up
// the chain reaches every descendant that is being watched.
//
// There is at most one instance per live target, obtained through
// Observers.RootAncestor. It unsubscribes from everything and leaves the
// table when its last listener goes away.
type RootAncestorObserver struct {
	observers *Observers
	key       weakref.Key
	target    weakref.Ref
	registry  *listeners.Registry
	raising   reentry.Guard

	mu        sync.Mutex
	started   bool
	disposed  bool
	gen       uint64
	parent    weakref.Ref
	parentTok listeners.Token
	sub       func()
}

func newRootAncestorObserver(o *Observers, target any) *RootAncestorObserver {
	key, _ := weakref.KeyOf(target)
	r := &RootAncestorObserver{
		observers: o,
		key:       key,
		target:    weakref.Make(target),
	}
	r.registry = listeners.New(r.start, r.stop)
	return r
}

func (r *RootAncestorObserver) Target() any { return r.target.Value() }

// Parent returns the tracked parent, or reads it from the target when the
// observer has no listeners.
func (r *RootAncestorObserver) Parent() any {
	r.mu.Lock()
	started, parent := r.started, r.parent.Value()
	r.mu.Unlock()
	if started {
		return parent
	}
	return parentOf(r.target.Value())
}

// Root walks the parent chain up to the topmost ancestor.
func (r *RootAncestorObserver) Root() any {
	t := r.target.Value()
	if t == nil {
		return nil
	}
	return rootOf(t)
}

func (r *RootAncestorObserver) ListenerCount() int {
	return r.registry.Count()
}

func (r *RootAncestorObserver) IsDisposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// AddListener registers l for AncestorChanged messages. The token is zero
// when the observer was already disposed, use Observers.ObserveAncestors to
// retry against a fresh instance.
func (r *RootAncestorObserver) AddListener(l listeners.Listener) listeners.Token {
	tok, _ := r.addListener(l)
	return tok
}

func (r *RootAncestorObserver) addListener(l listeners.Listener) (listeners.Token, bool) {
	if r.IsDisposed() {
		return listeners.Token{}, false
	}
	tok := r.registry.Add(l, nil)
	if r.IsDisposed() {
		tok.Remove()
		return listeners.Token{}, false
	}
	return tok, true
}

func (r *RootAncestorObserver) start() {
	target := r.target.Value()
	if target == nil {
		return
	}

	r.mu.Lock()
	if r.disposed || r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	obs := r.observers.memberObserver(reflect.TypeOf(target), ParentMember, DefaultOptions(), true)
	sub := obs.Observe(target, r)

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		if sub != nil {
			sub()
		}
		return
	}
	r.sub = sub
	r.mu.Unlock()

	r.updateParent()
}

func (r *RootAncestorObserver) stop() {
	r.mu.Lock()
	if r.disposed || r.registry.Count() > 0 {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	sub, tok := r.sub, r.parentTok
	r.sub, r.parentTok, r.parent = nil, listeners.Token{}, weakref.Ref{}
	r.mu.Unlock()

	r.observers.roots.DeleteKey(r.key, func(v *RootAncestorObserver) bool { return v == r })
	if sub != nil {
		sub()
	}
	tok.Remove()
}

// updateParent moves the registration to the current parent's observer. It
// reports whether the parent changed.
func (r *RootAncestorObserver) updateParent() bool {
	target := r.target.Value()
	parent := parentOf(target)

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return false
	}
	if (parent == nil && r.parent.IsZero()) || (parent != nil && r.parent.Refers(parent)) {
		r.mu.Unlock()
		return false
	}
	old := r.parentTok
	r.parent = weakref.Make(parent)
	r.parentTok = listeners.Token{}
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	old.Remove()
	if parent == nil || reaches(parent, target) {
		return true
	}

	tok, ok := r.observers.addAncestorListener(parent, r)
	if !ok {
		return true
	}
	r.mu.Lock()
	if r.disposed || r.gen != gen {
		r.mu.Unlock()
		tok.Remove()
		return true
	}
	r.parentTok = tok
	r.mu.Unlock()
	return true
}

// Handle receives Parent member changes of the target and AncestorChanged
// from the parent's observer.
func (r *RootAncestorObserver) Handle(_, _ any) bool {
	if !r.raising.Enter() {
		return true
	}
	defer r.raising.Exit()

	if r.IsDisposed() {
		return false
	}
	target := r.target.Value()
	if target == nil {
		return false
	}
	r.updateParent()
	r.registry.Raise(target, AncestorChanged{}, nil)
	return true
}

// reaches reports whether target is from or one of its ancestors. Such a
// parent closes a cycle and is tracked without registering with it, so the
// observers on the cycle never keep each other alive.
func reaches(from, target any) bool {
	seen := map[weakref.Key]struct{}{}
	cur := from
	for i := 0; cur != nil && i < maxAncestorDepth; i++ {
		if weakref.Identical(cur, target) {
			return true
		}
		if k, ok := weakref.KeyOf(cur); ok {
			if _, dup := seen[k]; dup {
				return false
			}
			seen[k] = struct{}{}
		}
		cur = parentOf(cur)
	}
	return false
}

// ObserveAncestors registers l with the ancestor observer of target. ok is
// false when target is not a Parented pointer.
func (o *Observers) ObserveAncestors(target any, l listeners.Listener) (listeners.Token, bool) {
	return o.addAncestorListener(target, l)
}
