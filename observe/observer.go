package observe

import (
	"reflect"
	"sync"

	"github.com/delaneyj/bindparty/listeners"
)

// MemberChanged is the message delivered to member listeners. An empty Member
// means every member may have changed.
type MemberChanged struct {
	Member string
}

// AncestorChanged is raised by a RootAncestorObserver when the parent chain
// of its target changed.
type AncestorChanged struct{}

// MemberObserver subscribes listeners to changes of a single member.
type MemberObserver interface {
	// Observe subscribes l to the member on target. A nil result means the
	// target cannot be observed.
	Observe(target any, l listeners.Listener) (unsubscribe func())
}

type MemberObserverFunc func(target any, l listeners.Listener) func()

func (f MemberObserverFunc) Observe(target any, l listeners.Listener) func() {
	return f(target, l)
}

type noOpObserver struct{}

func (noOpObserver) Observe(any, listeners.Listener) func() { return nil }

// NoOpObserver is used for members nothing knows how to observe. Paths
// through them are read but never refreshed automatically.
var NoOpObserver MemberObserver = noOpObserver{}

// IsNoOp reports whether m is the no-op observer.
func IsNoOp(m MemberObserver) bool {
	_, ok := m.(noOpObserver)
	return ok
}

// ObserverProvider returns an observer for a member of a type, or nil when it
// does not support it.
type ObserverProvider interface {
	TryGetMemberObserver(t reflect.Type, member string, opts Options) MemberObserver
}

type ObserverProviderFunc func(t reflect.Type, member string, opts Options) MemberObserver

func (f ObserverProviderFunc) TryGetMemberObserver(t reflect.Type, member string, opts Options) MemberObserver {
	return f(t, member, opts)
}

// MemberNotifier is implemented by objects raising member change
// notifications, usually by embedding Observable.
type MemberNotifier interface {
	AddMemberListener(l listeners.Listener, member string) listeners.Token
}

var memberNotifierType = reflect.TypeFor[MemberNotifier]()

type notifierProvider struct{}

func (notifierProvider) TryGetMemberObserver(t reflect.Type, member string, _ Options) MemberObserver {
	if !t.Implements(memberNotifierType) {
		return nil
	}
	return MemberObserverFunc(func(target any, l listeners.Listener) func() {
		n, ok := target.(MemberNotifier)
		if !ok || isNil(target) {
			return nil
		}
		tok := n.AddMemberListener(l, member)
		return func() { tok.Remove() }
	})
}

var callbackType = reflect.TypeFor[func()]()

// eventMethodProvider observes members through a subscribe method with the
// signature func(func()) func(), named On<Member>Changed unless overridden.
type eventMethodProvider struct{}

func (eventMethodProvider) TryGetMemberObserver(t reflect.Type, member string, opts Options) MemberObserver {
	name := opts.ObservableMethod
	if name == "" {
		name = "On" + member + "Changed"
	}
	method, ok := t.MethodByName(name)
	if !ok {
		return nil
	}
	mt := method.Type
	if mt.NumIn() != 2 || mt.In(1) != callbackType || mt.NumOut() != 1 || mt.Out(0) != callbackType {
		return nil
	}

	return MemberObserverFunc(func(target any, l listeners.Listener) func() {
		if isNil(target) {
			return nil
		}
		h := listeners.NewHandle(l, member)
		var (
			mu    sync.Mutex
			unsub func()
			done  bool
		)
		release := func() {
			mu.Lock()
			fn := unsub
			unsub, done = nil, true
			mu.Unlock()
			if fn != nil {
				fn()
			}
		}
		sender := target
		callback := func() {
			if l := h.Listener(); l != nil && l.Handle(sender, MemberChanged{Member: member}) {
				return
			}
			release()
		}

		out := method.Func.Call([]reflect.Value{reflect.ValueOf(target), reflect.ValueOf(callback)})
		fn, _ := out[0].Interface().(func())
		mu.Lock()
		if done {
			mu.Unlock()
			if fn != nil {
				fn()
			}
			return func() {}
		}
		unsub = fn
		mu.Unlock()
		return release
	})
}

// ancestorProvider routes the Parent and Root members of Parented values
// through their RootAncestorObserver.
type ancestorProvider struct {
	observers *Observers
}

func (p ancestorProvider) TryGetMemberObserver(t reflect.Type, member string, _ Options) MemberObserver {
	if member != ParentMember && member != RootMember || !t.Implements(parentedType) {
		return nil
	}
	return MemberObserverFunc(func(target any, l listeners.Listener) func() {
		tok, ok := p.observers.addAncestorListener(target, l)
		if !ok {
			return nil
		}
		return func() { tok.Remove() }
	})
}
