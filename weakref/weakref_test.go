package weakref

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	name string
	next *node
}

//go:noinline
func makeRef(name string) Ref {
	return Make(&node{name: name})
}

func collect(alive func() bool) bool {
	for i := 0; i < 10 && alive(); i++ {
		runtime.GC()
	}
	return !alive()
}

func TestRef(t *testing.T) {
	t.Run("pointer is weak", func(t *testing.T) {
		n := &node{name: "a"}
		r := Make(n)

		assert.True(t, r.IsWeak())
		assert.True(t, r.IsAlive())
		assert.Same(t, n, r.Value())
		assert.True(t, r.Refers(n))
		assert.False(t, r.Refers(&node{name: "a"}))
		runtime.KeepAlive(n)
	})

	t.Run("collected pointer reads nil", func(t *testing.T) {
		r := makeRef("gone")
		require.True(t, collect(r.IsAlive))
		assert.Nil(t, r.Value())
	})

	t.Run("values are strong", func(t *testing.T) {
		r := Make(42)
		assert.False(t, r.IsWeak())
		assert.Equal(t, 42, r.Value())
		assert.True(t, r.Refers(42))

		assert.True(t, Make(nil).IsZero())
		assert.False(t, Make(nil).IsAlive())
	})

	t.Run("identity", func(t *testing.T) {
		a, b := &node{}, &node{}
		assert.True(t, Identical(a, a))
		assert.False(t, Identical(a, b))
		assert.True(t, Identical("x", "x"))
		assert.False(t, Identical([]int{1}, []int{1}))
		assert.True(t, Identical(nil, nil))
		assert.False(t, Identical(a, nil))
	})
}

func TestTable(t *testing.T) {
	t.Run("attach by identity", func(t *testing.T) {
		var table Table[string]
		a, b := &node{name: "a"}, &node{name: "b"}

		v, ok := table.GetOrAdd(a, func() string { return "va" })
		require.True(t, ok)
		assert.Equal(t, "va", v)

		v, _ = table.GetOrAdd(a, func() string { return "other" })
		assert.Equal(t, "va", v)

		_, ok = table.Get(b)
		assert.False(t, ok)

		assert.False(t, table.DeleteFunc(a, func(v string) bool { return v == "nope" }))
		assert.True(t, table.DeleteFunc(a, func(v string) bool { return v == "va" }))
		assert.Equal(t, 0, table.Len())
	})

	t.Run("non pointers are rejected", func(t *testing.T) {
		var table Table[int]
		_, ok := table.GetOrAdd("str", func() int { return 1 })
		assert.False(t, ok)
	})

	t.Run("sweep drops collected keys", func(t *testing.T) {
		var table Table[int]
		func() {
			table.GetOrAdd(&node{name: "tmp"}, func() int { return 1 })
		}()
		keep := &node{name: "keep"}
		table.GetOrAdd(keep, func() int { return 2 })

		require.Equal(t, 2, table.Len())
		swept := 0
		for i := 0; i < 10 && swept == 0; i++ {
			runtime.GC()
			swept = table.Sweep()
		}
		assert.Equal(t, 1, swept)
		assert.Equal(t, []int{2}, table.Values())
		runtime.KeepAlive(keep)
	})

	t.Run("evict returns dropped values", func(t *testing.T) {
		var table Table[string]
		func() {
			table.GetOrAdd(&node{name: "tmp"}, func() string { return "gone" })
		}()

		var evicted []string
		for i := 0; i < 10 && len(evicted) == 0; i++ {
			runtime.GC()
			evicted = table.Evict()
		}
		assert.Equal(t, []string{"gone"}, evicted)
		assert.Equal(t, 0, table.Len())
	})
}
