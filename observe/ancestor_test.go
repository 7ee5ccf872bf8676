package observe

import (
	"runtime"
	"testing"

	"github.com/delaneyj/bindparty/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootAncestor(t *testing.T) {
	t.Run("root path follows reparenting", func(t *testing.T) {
		obs := NewObservers()
		top := &Node{name: "top"}
		mid := &Node{name: "mid", parent: top}
		leaf := &Node{name: "leaf", parent: mid}
		other := &Node{name: "other"}

		o, err := obs.Observe(leaf, "Root.Name")
		require.NoError(t, err)
		assert.Equal(t, "top", lastValue(t, o))

		var ev events
		l := ev.listener()
		o.AddListener(l)
		assert.Equal(t, 3, obs.RootAncestorCount())

		leaf.SetParent(other)
		assert.Equal(t, 1, ev.members)
		assert.Equal(t, 1, ev.last)
		assert.Equal(t, "other", lastValue(t, o))
		assert.Equal(t, 2, obs.RootAncestorCount())
		assert.Equal(t, 0, mid.MemberListenerCount())

		other.SetName("renamed")
		assert.Equal(t, 2, ev.last)

		o.Dispose()
		assert.Equal(t, 0, obs.RootAncestorCount())
		assert.Equal(t, 0, leaf.MemberListenerCount())
		assert.Equal(t, 0, other.MemberListenerCount())
		runtime.KeepAlive(l)
	})

	t.Run("parent path moves its registration on reparent", func(t *testing.T) {
		obs := NewObservers()
		p1, p2 := &Node{name: "p1"}, &Node{name: "p2"}
		child := &Node{name: "child", parent: p1}

		keep := listeners.ListenerFunc(func(any, any) bool { return true })
		tok1, ok := obs.ObserveAncestors(p1, keep)
		require.True(t, ok)
		tok2, ok := obs.ObserveAncestors(p2, keep)
		require.True(t, ok)
		rao1, _ := obs.RootAncestor(p1)
		rao2, _ := obs.RootAncestor(p2)
		require.Equal(t, 1, rao1.ListenerCount())

		o, err := obs.Observe(child, "Parent.Name")
		require.NoError(t, err)
		var ev events
		l := ev.listener()
		o.AddListener(l)
		assert.Equal(t, "p1", lastValue(t, o))
		assert.Equal(t, 2, rao1.ListenerCount())
		assert.Equal(t, 1, rao2.ListenerCount())

		child.SetParent(p2)
		assert.Equal(t, 1, rao1.ListenerCount())
		assert.Equal(t, 2, rao2.ListenerCount())
		assert.Equal(t, 1, ev.members)
		assert.Equal(t, "p2", lastValue(t, o))

		last := ev.last
		p1.SetName("stale")
		assert.Equal(t, last, ev.last)
		p2.SetName("fresh")
		assert.Equal(t, last+1, ev.last)

		o.Dispose()
		assert.Equal(t, 1, rao2.ListenerCount())
		tok1.Remove()
		tok2.Remove()
		runtime.KeepAlive(l)
	})

	t.Run("change far up the chain reaches the leaf", func(t *testing.T) {
		obs := NewObservers()
		top := &Node{name: "top"}
		mid := &Node{name: "mid", parent: top}
		leaf := &Node{name: "leaf", parent: mid}

		calls := 0
		l := listeners.ListenerFunc(func(sender, msg any) bool {
			_, ok := msg.(AncestorChanged)
			assert.True(t, ok)
			calls++
			return true
		})
		tok, ok := obs.ObserveAncestors(leaf, l)
		require.True(t, ok)

		newTop := &Node{name: "new"}
		mid.SetParent(newTop)
		assert.Equal(t, 1, calls)

		rao, ok := obs.RootAncestor(leaf)
		require.True(t, ok)
		assert.Same(t, newTop, rao.Root())
		assert.Same(t, mid, rao.Parent())

		tok.Remove()
		assert.Equal(t, 0, top.MemberListenerCount())
		assert.Equal(t, 0, newTop.MemberListenerCount())
	})

	t.Run("one observer per target", func(t *testing.T) {
		obs := NewObservers()
		n := &Node{}
		a, ok := obs.RootAncestor(n)
		require.True(t, ok)
		b, _ := obs.RootAncestor(n)
		assert.Same(t, a, b)

		_, ok = obs.RootAncestor(&Customer{})
		assert.False(t, ok)
	})

	t.Run("disposed observer is replaced", func(t *testing.T) {
		obs := NewObservers()
		n := &Node{parent: &Node{}}
		l := listeners.ListenerFunc(func(any, any) bool { return true })

		tok, ok := obs.ObserveAncestors(n, l)
		require.True(t, ok)
		first, _ := obs.RootAncestor(n)
		tok.Remove()
		assert.True(t, first.IsDisposed())

		tok, ok = obs.ObserveAncestors(n, l)
		require.True(t, ok)
		second, _ := obs.RootAncestor(n)
		assert.NotSame(t, first, second)
		assert.Equal(t, 1, second.ListenerCount())
		tok.Remove()
	})

	t.Run("cycles terminate", func(t *testing.T) {
		obs := NewObservers()
		b := &Node{name: "b"}
		a := &Node{name: "a", parent: b}

		calls := 0
		tok, ok := obs.ObserveAncestors(a, listeners.ListenerFunc(func(any, any) bool {
			calls++
			return true
		}))
		require.True(t, ok)
		assert.Equal(t, 2, obs.RootAncestorCount())

		b.SetName("b2")
		assert.Equal(t, 0, calls)
		b.SetParent(a)
		assert.Equal(t, 1, calls)
		b.SetParent(a)
		assert.Equal(t, 2, calls)

		rao, _ := obs.RootAncestor(a)
		assert.NotNil(t, rao.Root())

		self := &Node{}
		self.parent = self
		tok2, ok := obs.ObserveAncestors(self, listeners.ListenerFunc(func(any, any) bool { return true }))
		require.True(t, ok)
		assert.Equal(t, 3, obs.RootAncestorCount())

		tok.Remove()
		tok2.Remove()
		assert.Equal(t, 0, obs.RootAncestorCount())
	})
}
