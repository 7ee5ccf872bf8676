package observe

import (
	"sync"

	"github.com/delaneyj/bindparty/listeners"
)

// Observable is embedded by objects that raise member change notifications.
// The zero value is ready to use.
type Observable struct {
	registry listeners.Registry
}

// AddMemberListener registers l for changes of member, or of every member
// when member is empty. l is held weakly.
func (o *Observable) AddMemberListener(l listeners.Listener, member string) listeners.Token {
	return o.registry.Add(l, member)
}

// RaiseMemberChanged notifies listeners of member, or all listeners when
// member is empty. It returns the number of listeners notified.
func (o *Observable) RaiseMemberChanged(sender any, member string) int {
	return o.registry.Raise(sender, MemberChanged{Member: member}, func(state any) bool {
		s, _ := state.(string)
		return member == "" || s == "" || s == member
	})
}

// MemberListenerCount returns the number of registered member listeners.
func (o *Observable) MemberListenerCount() int {
	return o.registry.Count()
}

// Property is an observable value cell. Its value is exposed as the Value
// member so paths like "Count.Value" can bind to it.
type Property[T comparable] struct {
	Observable

	mu  sync.RWMutex
	val T
	ver uint32
}

func NewProperty[T comparable](v T) *Property[T] {
	return &Property[T]{val: v, ver: 1}
}

func (p *Property[T]) Value() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.val
}

// SetValue stores v and notifies Value listeners when it differs from the
// current value.
func (p *Property[T]) SetValue(v T) {
	p.mu.Lock()
	if p.val == v {
		p.mu.Unlock()
		return
	}
	p.val = v
	p.ver++
	p.mu.Unlock()

	p.RaiseMemberChanged(p, "Value")
}

// Version increments on every effective change.
func (p *Property[T]) Version() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ver
}
