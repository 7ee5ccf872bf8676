package observe

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/delaneyj/bindparty/weakref"
)

// Well known members resolved through the ancestor chain.
const (
	ParentMember = "Parent"
	RootMember   = "Root"
)

// MemberAccessor is implemented by dynamic objects exposing members by name.
type MemberAccessor interface {
	GetMember(name string) (any, bool)
	SetMember(name string, value any) error
}

// Parented is implemented by objects taking part in a parent/child tree.
type Parented interface {
	Parent() any
}

type MemberKind uint8

const (
	KindMethod MemberKind = iota + 1
	KindField
	KindMapKey
	KindDynamic
	KindRoot
)

func (k MemberKind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindMapKey:
		return "mapkey"
	case KindDynamic:
		return "dynamic"
	case KindRoot:
		return "root"
	}
	return "unknown"
}

// Member reads and writes one named member of a type.
type Member struct {
	Name string
	Kind MemberKind
	// Type is the member value type, nil when it is only known at runtime.
	Type reflect.Type

	get func(target reflect.Value) (any, error)
	set func(target reflect.Value, value any) error
}

func (m *Member) CanRead() bool  { return m.get != nil }
func (m *Member) CanWrite() bool { return m.set != nil }

// GetValue reads the member from target. Panics raised by getters are
// returned as errors, typed nil pointers are returned as nil.
func (m *Member) GetValue(target any) (v any, err error) {
	if m.get == nil {
		return nil, ErrNotReadable
	}
	if isNil(target) {
		return nil, ErrNilSource
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("get %s: panic: %v", m.Name, r)
		}
	}()
	v, err = m.get(reflect.ValueOf(target))
	if err != nil {
		return nil, err
	}
	if isNil(v) {
		return nil, nil
	}
	return v, nil
}

// SetValue writes value to the member of target, converting it to the
// member type when possible.
func (m *Member) SetValue(target any, value any) (err error) {
	if m.set == nil {
		return ErrNotSettable
	}
	if isNil(target) {
		return ErrNilSource
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("set %s: panic: %v", m.Name, r)
		}
	}()
	return m.set(reflect.ValueOf(target), value)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

var (
	errorType          = reflect.TypeFor[error]()
	memberAccessorType = reflect.TypeFor[MemberAccessor]()
	parentedType       = reflect.TypeFor[Parented]()
)

// lookupMember resolves name on t. Methods win over fields, fields over map
// keys, map keys over dynamic members.
func lookupMember(t reflect.Type, name string, flags MemberFlags) (*Member, error) {
	if t == nil {
		return nil, ErrNilSource
	}
	if flags.Has(Methods) {
		if m := methodMember(t, name); m != nil {
			return m, nil
		}
	}
	if flags.Has(Fields) {
		if m := fieldMember(t, name); m != nil {
			return m, nil
		}
	}
	if flags.Has(MapKeys) {
		if m := mapMember(t, name); m != nil {
			return m, nil
		}
	}
	if flags.Has(Dynamic) && t.Implements(memberAccessorType) {
		return dynamicMember(name), nil
	}
	if name == RootMember && t.Implements(parentedType) {
		return &Member{Name: name, Kind: KindRoot, get: func(target reflect.Value) (any, error) {
			return rootOf(target.Interface()), nil
		}}, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrMemberNotFound, t, name)
}

func methodMember(t reflect.Type, name string) *Member {
	method, ok := t.MethodByName(name)
	if !ok {
		return nil
	}
	mt := method.Type
	if mt.NumIn() != 1 || mt.NumOut() == 0 || mt.NumOut() > 2 {
		return nil
	}
	withErr := mt.NumOut() == 2
	if withErr && !mt.Out(1).Implements(errorType) {
		return nil
	}

	m := &Member{Name: name, Kind: KindMethod, Type: mt.Out(0)}
	m.get = func(target reflect.Value) (any, error) {
		out := method.Func.Call([]reflect.Value{target})
		if withErr && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}

	if setter, ok := t.MethodByName("Set" + name); ok {
		st := setter.Type
		if st.NumIn() == 2 && (st.NumOut() == 0 || st.NumOut() == 1 && st.Out(0).Implements(errorType)) {
			arg := st.In(1)
			m.set = func(target reflect.Value, value any) error {
				v, err := convertValue(value, arg)
				if err != nil {
					return err
				}
				out := setter.Func.Call([]reflect.Value{target, v})
				if len(out) == 1 && !out[0].IsNil() {
					return out[0].Interface().(error)
				}
				return nil
			}
		}
	}
	return m
}

func fieldMember(t reflect.Type, name string) *Member {
	st := t
	for st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil
	}
	field, ok := st.FieldByName(name)
	if !ok || !field.IsExported() {
		return nil
	}

	fieldOf := func(target reflect.Value) (reflect.Value, error) {
		for target.Kind() == reflect.Pointer {
			if target.IsNil() {
				return reflect.Value{}, ErrNilSource
			}
			target = target.Elem()
		}
		return target.FieldByIndexErr(field.Index)
	}
	return &Member{
		Name: name,
		Kind: KindField,
		Type: field.Type,
		get: func(target reflect.Value) (any, error) {
			fv, err := fieldOf(target)
			if err != nil {
				return nil, err
			}
			return fv.Interface(), nil
		},
		set: func(target reflect.Value, value any) error {
			fv, err := fieldOf(target)
			if err != nil {
				return err
			}
			if !fv.CanSet() {
				return fmt.Errorf("%w: %s is not addressable", ErrNotSettable, name)
			}
			v, err := convertValue(value, field.Type)
			if err != nil {
				return err
			}
			fv.Set(v)
			return nil
		},
	}
}

func mapMember(t reflect.Type, name string) *Member {
	if t.Kind() != reflect.Map || t.Key().Kind() != reflect.String {
		return nil
	}
	key := reflect.ValueOf(name).Convert(t.Key())
	return &Member{
		Name: name,
		Kind: KindMapKey,
		Type: t.Elem(),
		get: func(target reflect.Value) (any, error) {
			v := target.MapIndex(key)
			if !v.IsValid() {
				return nil, nil
			}
			return v.Interface(), nil
		},
		set: func(target reflect.Value, value any) error {
			if target.IsNil() {
				return ErrNilSource
			}
			v, err := convertValue(value, t.Elem())
			if err != nil {
				return err
			}
			target.SetMapIndex(key, v)
			return nil
		},
	}
}

func dynamicMember(name string) *Member {
	return &Member{
		Name: name,
		Kind: KindDynamic,
		get: func(target reflect.Value) (any, error) {
			v, ok := target.Interface().(MemberAccessor).GetMember(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrMemberNotFound, name)
			}
			return v, nil
		},
		set: func(target reflect.Value, value any) error {
			return target.Interface().(MemberAccessor).SetMember(name, value)
		},
	}
}

// Convert converts v to type t using assignment, Go conversions between
// numeric kinds, string formatting and string parsing.
func Convert(v any, t reflect.Type) (any, error) {
	rv, err := convertValue(v, t)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

func convertValue(v any, t reflect.Type) (reflect.Value, error) {
	if t == nil {
		return reflect.ValueOf(v), nil
	}
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	vt := rv.Type()
	if vt.AssignableTo(t) {
		return rv, nil
	}
	if t.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(v)).Convert(t), nil
	}
	if vt.Kind() == reflect.String {
		return parseString(rv.String(), t)
	}
	if numeric(vt.Kind()) && numeric(t.Kind()) || vt.ConvertibleTo(t) && vt.Kind() == t.Kind() {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", vt, t)
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func parseString(s string, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetFloat(f)
	default:
		return reflect.Value{}, fmt.Errorf("cannot convert string to %s", t)
	}
	return out, nil
}

func parentOf(v any) (p any) {
	pv, ok := v.(Parented)
	if !ok || isNil(v) {
		return nil
	}
	defer func() {
		if recover() != nil {
			p = nil
		}
	}()
	p = pv.Parent()
	if isNil(p) {
		return nil
	}
	return p
}

const maxAncestorDepth = 1 << 10

// rootOf walks the parent chain up to the topmost ancestor. Cycles stop at
// the first repeated object.
func rootOf(v any) any {
	seen := map[weakref.Key]struct{}{}
	cur := v
	for i := 0; i < maxAncestorDepth; i++ {
		p := parentOf(cur)
		if p == nil {
			return cur
		}
		if k, ok := weakref.KeyOf(cur); ok {
			seen[k] = struct{}{}
		}
		if k, ok := weakref.KeyOf(p); ok {
			if _, dup := seen[k]; dup {
				return cur
			}
		}
		cur = p
	}
	return cur
}
