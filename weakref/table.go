package weakref

import "sync"

const minSweep = 32

// Table attaches values to objects by identity without keeping the objects
// alive. Entries whose object was collected are swept lazily.
type Table[V any] struct {
	mu        sync.Mutex
	items     map[Key]V
	nextSweep int
}

// Get returns the value attached to obj.
func (t *Table[V]) Get(obj any) (V, bool) {
	var zero V
	k, ok := KeyOf(obj)
	if !ok {
		return zero, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[k]
	return v, ok
}

// GetOrAdd returns the value attached to obj, creating it with create when
// missing. create runs under the table lock and must not touch the table.
// ok is false when obj cannot be keyed (not a pointer).
func (t *Table[V]) GetOrAdd(obj any, create func() V) (v V, ok bool) {
	k, ok := KeyOf(obj)
	if !ok {
		return v, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.items[k]; ok {
		return v, true
	}
	if t.items == nil {
		t.items = map[Key]V{}
	}
	if len(t.items) >= t.nextSweep {
		t.sweepLocked()
		t.nextSweep = max(minSweep, 2*len(t.items))
	}
	v = create()
	t.items[k] = v
	return v, true
}

// Delete detaches the value from obj.
func (t *Table[V]) Delete(obj any) {
	k, ok := KeyOf(obj)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, k)
}

// DeleteFunc detaches the value of obj when match approves it.
func (t *Table[V]) DeleteFunc(obj any, match func(V) bool) bool {
	k, ok := KeyOf(obj)
	if !ok {
		return false
	}
	return t.DeleteKey(k, match)
}

// DeleteKey is DeleteFunc for an already computed key, usable after the
// object died.
func (t *Table[V]) DeleteKey(k Key, match func(V) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[k]
	if !ok || (match != nil && !match(v)) {
		return false
	}
	delete(t.items, k)
	return true
}

// Sweep drops entries whose object was collected and returns how many.
func (t *Table[V]) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked()
}

func (t *Table[V]) sweepLocked() int {
	n := 0
	for k := range t.items {
		if k.Dead() {
			delete(t.items, k)
			n++
		}
	}
	return n
}

// Evict is Sweep returning the values of the dropped entries.
func (t *Table[V]) Evict() []V {
	t.mu.Lock()
	defer t.mu.Unlock()
	var vs []V
	for k, v := range t.items {
		if k.Dead() {
			delete(t.items, k)
			vs = append(vs, v)
		}
	}
	return vs
}

// Len returns the number of entries, dead ones included until swept.
func (t *Table[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Values returns a snapshot of the values attached to live objects.
func (t *Table[V]) Values() []V {
	t.mu.Lock()
	defer t.mu.Unlock()
	vs := make([]V, 0, len(t.items))
	for k, v := range t.items {
		if !k.Dead() {
			vs = append(vs, v)
		}
	}
	return vs
}
