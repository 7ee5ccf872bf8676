package observe

import (
	"runtime"
	"time"
)

type Address struct {
	Observable
	city string
}

func (a *Address) City() string { return a.city }

func (a *Address) SetCity(city string) {
	a.city = city
	a.RaiseMemberChanged(a, "City")
}

type Customer struct {
	Observable
	address *Address
	Name    string
	Tags    map[string]any
}

func (c *Customer) Address() *Address { return c.address }

func (c *Customer) SetAddress(a *Address) {
	c.address = a
	c.RaiseMemberChanged(c, "Address")
}

type Order struct {
	Observable
	customer *Customer
}

func (o *Order) Customer() *Customer { return o.customer }

func (o *Order) SetCustomer(c *Customer) {
	o.customer = c
	o.RaiseMemberChanged(o, "Customer")
}

type Node struct {
	Observable
	parent *Node
	name   string
}

func (n *Node) Parent() any { return n.parent }

func (n *Node) SetParent(p *Node) {
	n.parent = p
	n.RaiseMemberChanged(n, ParentMember)
}

func (n *Node) Name() string { return n.name }

func (n *Node) SetName(name string) {
	n.name = name
	n.RaiseMemberChanged(n, "Name")
}

// Button exposes change events through a subscribe method instead of
// embedding Observable.
type Button struct {
	title    string
	handlers map[int]func()
	next     int
}

func (b *Button) Title() string { return b.title }

func (b *Button) SetTitle(title string) {
	b.title = title
	for _, h := range b.handlers {
		h()
	}
}

func (b *Button) OnTitleChanged(fn func()) func() {
	if b.handlers == nil {
		b.handlers = map[int]func(){}
	}
	id := b.next
	b.next++
	b.handlers[id] = fn
	return func() { delete(b.handlers, id) }
}

type bag map[string]any

func (b bag) GetMember(name string) (any, bool) {
	v, ok := b[name]
	return v, ok
}

func (b bag) SetMember(name string, value any) error {
	b[name] = value
	return nil
}

type events struct {
	members int
	last    int
	errs    []error
}

func (e *events) listener() *PathListenerFuncs {
	return &PathListenerFuncs{
		PathMembersChanged: func(MemberPathObserver) { e.members++ },
		LastMemberChanged:  func(MemberPathObserver) { e.last++ },
		Error:              func(_ MemberPathObserver, err error) { e.errs = append(e.errs, err) },
	}
}

func collected(alive func() bool) bool {
	for range 20 {
		runtime.GC()
		if !alive() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
