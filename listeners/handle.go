package listeners

import "github.com/delaneyj/bindparty/weakref"

// Listener receives messages raised through a Registry. Returning false
// removes it from the registry.
type Listener interface {
	Handle(sender, msg any) bool
}

// WeakListener is implemented by listeners that are safe to hold strongly,
// typically because they only keep weak references themselves.
type WeakListener interface {
	Listener
	IsWeak() bool
}

// ListenerFunc adapts a function to Listener. Functions cannot be referenced
// weakly, so they are always held strongly.
type ListenerFunc func(sender, msg any) bool

func (f ListenerFunc) Handle(sender, msg any) bool { return f(sender, msg) }
func (f ListenerFunc) IsWeak() bool                { return true }

// Handle couples a listener reference with the state it was registered with.
type Handle struct {
	ref   weakref.Ref
	state any
}

// NewHandle references l weakly unless it declares itself weak.
func NewHandle(l Listener, state any) Handle {
	if w, ok := l.(WeakListener); ok && w.IsWeak() {
		return StrongHandle(l, state)
	}
	return Handle{ref: weakref.Make(l), state: state}
}

// StrongHandle keeps l alive for as long as the handle exists.
func StrongHandle(l Listener, state any) Handle {
	return Handle{ref: weakref.Strong(l), state: state}
}

// Listener returns the listener or nil once it was collected.
func (h Handle) Listener() Listener {
	l, _ := h.ref.Value().(Listener)
	return l
}

func (h Handle) IsAlive() bool { return h.ref.IsAlive() }
func (h Handle) IsWeak() bool  { return h.ref.IsWeak() }
func (h Handle) State() any    { return h.state }
