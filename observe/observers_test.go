package observe

import (
	"errors"
	"reflect"
	"runtime"
	"testing"

	"github.com/delaneyj/bindparty/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ticker struct {
	n int
}

func (t *ticker) Count() int { return t.n }

func (t *ticker) Failing() (int, error) { return 0, errors.New("broken getter") }

func (t *ticker) Panics() int { panic("boom") }

func TestMembers(t *testing.T) {
	obs := NewObservers()

	t.Run("method field map and dynamic", func(t *testing.T) {
		c := &Customer{Name: "Ada", Tags: map[string]any{"vip": true}}

		name, err := obs.Member(reflect.TypeOf(c), "Name", DefaultFlags)
		require.NoError(t, err)
		assert.Equal(t, KindField, name.Kind)
		require.NoError(t, name.SetValue(c, "Grace"))
		assert.Equal(t, "Grace", c.Name)

		o, err := obs.Observe(c, "Tags.vip")
		require.NoError(t, err)
		assert.Equal(t, true, lastValue(t, o))

		b := bag{"Size": 3}
		size, err := obs.Member(reflect.TypeOf(b), "Size", Dynamic)
		require.NoError(t, err)
		assert.Equal(t, KindDynamic, size.Kind)
		require.NoError(t, size.SetValue(b, 4))
		v, err := size.GetValue(b)
		require.NoError(t, err)
		assert.Equal(t, 4, v)
	})

	t.Run("flags restrict lookup", func(t *testing.T) {
		_, err := obs.Member(reflect.TypeOf(&ticker{}), "Count", Fields)
		assert.ErrorIs(t, err, ErrMemberNotFound)

		m, err := obs.Member(reflect.TypeOf(&ticker{}), "Count", Methods)
		require.NoError(t, err)
		assert.Equal(t, KindMethod, m.Kind)
		assert.False(t, m.CanWrite())
		assert.ErrorIs(t, m.SetValue(&ticker{}, 1), ErrNotSettable)
	})

	t.Run("getter failures become errors", func(t *testing.T) {
		tk := &ticker{}
		failing, err := obs.Member(reflect.TypeOf(tk), "Failing", DefaultFlags)
		require.NoError(t, err)
		_, err = failing.GetValue(tk)
		assert.EqualError(t, err, "broken getter")

		panics, err := obs.Member(reflect.TypeOf(tk), "Panics", DefaultFlags)
		require.NoError(t, err)
		_, err = panics.GetValue(tk)
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("root member on parented values", func(t *testing.T) {
		top := &Node{name: "top"}
		leaf := &Node{parent: &Node{parent: top}}
		m, err := obs.Member(reflect.TypeOf(leaf), RootMember, DefaultFlags)
		require.NoError(t, err)
		assert.Equal(t, KindRoot, m.Kind)
		v, err := m.GetValue(leaf)
		require.NoError(t, err)
		assert.Same(t, top, v)
	})

	t.Run("convert", func(t *testing.T) {
		v, err := Convert("42", reflect.TypeFor[int]())
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		v, err = Convert(3, reflect.TypeFor[float64]())
		require.NoError(t, err)
		assert.Equal(t, 3.0, v)

		v, err = Convert(7, reflect.TypeFor[string]())
		require.NoError(t, err)
		assert.Equal(t, "7", v)

		v, err = Convert(nil, reflect.TypeFor[int]())
		require.NoError(t, err)
		assert.Equal(t, 0, v)

		_, err = Convert("nope", reflect.TypeFor[bool]())
		assert.Error(t, err)
	})
}

func TestObservers(t *testing.T) {
	t.Run("event method provider", func(t *testing.T) {
		obs := NewObservers()
		b := &Button{title: "ok"}
		o, err := obs.Observe(b, "Title")
		require.NoError(t, err)

		var ev events
		l := ev.listener()
		tok := o.AddListener(l)
		assert.Len(t, b.handlers, 1)

		b.SetTitle("cancel")
		assert.Equal(t, 1, ev.last)
		assert.Equal(t, "cancel", lastValue(t, o))

		tok.Remove()
		assert.Empty(t, b.handlers)
		runtime.KeepAlive(l)
	})

	t.Run("custom observable method name", func(t *testing.T) {
		obs := NewObservers()
		m := obs.MemberObserver(reflect.TypeOf(&Button{}), "Caption", NewOptions(WithObservableMethod("OnTitleChanged")))
		assert.False(t, IsNoOp(m))
		m = obs.MemberObserver(reflect.TypeOf(&Button{}), "Caption", DefaultOptions())
		assert.True(t, IsNoOp(m))
	})

	t.Run("registered providers win by priority", func(t *testing.T) {
		obs := NewObservers()
		calls := 0
		custom := MemberObserverFunc(func(target any, l listeners.Listener) func() {
			calls++
			return func() {}
		})
		obs.Register(ObserverProviderFunc(func(t reflect.Type, member string, _ Options) MemberObserver {
			if member == "City" {
				return custom
			}
			return nil
		}), PriorityEventMethod+1)

		a := &Address{city: "x"}
		m := obs.MemberObserver(reflect.TypeOf(a), "City", DefaultOptions())
		m.Observe(a, listeners.ListenerFunc(func(any, any) bool { return true }))
		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, a.MemberListenerCount())
	})

	t.Run("ignored members are not observed", func(t *testing.T) {
		obs := NewObservers()
		obs.Ignore(reflect.TypeFor[*Customer](), "Address")
		c := newCustomer("Paris")
		o, err := obs.Observe(c, "Address.City")
		require.NoError(t, err)

		var ev events
		l := ev.listener()
		o.AddListener(l)
		assert.Equal(t, 0, c.MemberListenerCount())
		assert.Equal(t, 1, c.Address().MemberListenerCount())

		obs.Ignore(reflect.TypeFor[*Address]())
		assert.True(t, IsNoOp(obs.MemberObserver(reflect.TypeFor[*Address](), "City", DefaultOptions())))
		runtime.KeepAlive(l)
	})

	t.Run("paths are shared", func(t *testing.T) {
		obs := NewObservers()
		a, err := obs.Path("A.B")
		require.NoError(t, err)
		b, err := obs.Path("A.B")
		require.NoError(t, err)
		assert.Same(t, a, b)
		assert.Equal(t, []string{"A", "B"}, a.Members())
		assert.Equal(t, "B", a.Last())
		assert.Equal(t, 1, obs.PathCount())
	})

	t.Run("property versions", func(t *testing.T) {
		p := NewProperty("a")
		p.SetValue("a")
		assert.Equal(t, uint32(1), p.Version())
		p.SetValue("b")
		assert.Equal(t, uint32(2), p.Version())
		assert.Equal(t, "b", p.Value())
	})
}
