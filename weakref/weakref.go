// Package weakref holds references to arbitrary values without keeping them
// alive.
//
// Pointers are tracked through the runtime's weak pointers. Everything else
// (structs, strings, funcs, maps...) cannot be weakly referenced in Go and is
// held strongly; such values never report themselves as dead.
package weakref

import (
	"reflect"
	"unsafe"
	"weak"
)

// Ref is a possibly weak reference to a value. The zero Ref refers to nothing.
type Ref struct {
	typ    reflect.Type
	ptr    weak.Pointer[byte]
	strong any
}

// Make returns a weak reference when v is a non-nil pointer to a sized value
// and a strong one otherwise.
func Make(v any) Ref {
	if v == nil {
		return Ref{}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Type().Elem().Size() == 0 {
		return Ref{strong: v}
	}
	return Ref{
		typ: rv.Type(),
		ptr: weak.Make((*byte)(rv.UnsafePointer())),
	}
}

// Strong returns a reference that keeps v alive.
func Strong(v any) Ref {
	return Ref{strong: v}
}

// Value returns the referenced value, or nil once it has been collected.
func (r Ref) Value() any {
	if r.typ == nil {
		return r.strong
	}
	p := r.ptr.Value()
	if p == nil {
		return nil
	}
	return reflect.NewAt(r.typ.Elem(), unsafe.Pointer(p)).Interface()
}

// IsAlive reports whether Value would return a non-nil value.
func (r Ref) IsAlive() bool {
	if r.typ == nil {
		return r.strong != nil
	}
	return r.ptr.Value() != nil
}

// IsWeak reports whether the reference lets its value be collected.
func (r Ref) IsWeak() bool {
	return r.typ != nil
}

// IsZero reports whether the reference was never set.
func (r Ref) IsZero() bool {
	return r.typ == nil && r.strong == nil
}

// Refers reports whether r points at v by identity.
func (r Ref) Refers(v any) bool {
	if r.typ == nil {
		return Identical(r.strong, v)
	}
	k, ok := KeyOf(v)
	return ok && k == Key{typ: r.typ, ptr: r.ptr}
}

// Key is a comparable identity for a pointer value that does not keep it
// alive. Keys stay valid, and unique, after the value is collected.
type Key struct {
	typ reflect.Type
	ptr weak.Pointer[byte]
}

// KeyOf returns the identity key of v. Only non-nil pointers have one.
func KeyOf(v any) (Key, bool) {
	r := Make(v)
	if r.typ == nil {
		return Key{}, false
	}
	return Key{typ: r.typ, ptr: r.ptr}, true
}

// Dead reports whether the keyed value has been collected.
func (k Key) Dead() bool {
	return k.ptr.Value() == nil
}

// Identical reports whether a and b are the same object. Pointers compare by
// address and type, other comparable values by ==.
func Identical(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if !ta.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
