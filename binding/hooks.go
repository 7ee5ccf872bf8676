package binding

import (
	"context"
	"reflect"

	"github.com/delaneyj/bindparty/observe"
)

// Interceptor transforms or vetoes values on their way through a binding.
// Returning false drops the value.
type Interceptor interface {
	InterceptTarget(ctx context.Context, value any) (any, bool)
	InterceptSource(ctx context.Context, value any) (any, bool)
}

// InterceptorFuncs adapts functions to Interceptor. A nil field passes
// values through.
type InterceptorFuncs struct {
	Target func(ctx context.Context, value any) (any, bool)
	Source func(ctx context.Context, value any) (any, bool)
}

func (f InterceptorFuncs) InterceptTarget(ctx context.Context, value any) (any, bool) {
	if f.Target == nil {
		return value, true
	}
	return f.Target(ctx, value)
}

func (f InterceptorFuncs) InterceptSource(ctx context.Context, value any) (any, bool) {
	if f.Source == nil {
		return value, true
	}
	return f.Source(ctx, value)
}

// TargetSetter writes a value to the target. It reports false to let the next
// setter try.
type TargetSetter interface {
	SetTarget(ctx context.Context, target observe.LastMember, value any) (bool, error)
}

type TargetSetterFunc func(ctx context.Context, target observe.LastMember, value any) (bool, error)

func (f TargetSetterFunc) SetTarget(ctx context.Context, target observe.LastMember, value any) (bool, error) {
	return f(ctx, target, value)
}

// SourceSetter writes a value back to the source.
type SourceSetter interface {
	SetSource(ctx context.Context, source observe.LastMember, value any) (bool, error)
}

type SourceSetterFunc func(ctx context.Context, source observe.LastMember, value any) (bool, error)

func (f SourceSetterFunc) SetSource(ctx context.Context, source observe.LastMember, value any) (bool, error) {
	return f(ctx, source, value)
}

// memberSetter is the built-in last setter: it writes through the resolved
// member and declines unresolved ones.
func memberSetter(m observe.LastMember, value any) (bool, error) {
	if !m.IsResolved() || !m.Member.CanWrite() {
		return false, nil
	}
	return true, m.SetValue(value)
}

// Converter converts values between source and target types. t is nil when
// the destination member type is only known at runtime.
type Converter interface {
	Convert(ctx context.Context, value any, t reflect.Type) (any, error)
	ConvertBack(ctx context.Context, value any, t reflect.Type) (any, error)
}

type ConverterFuncs struct {
	To   func(ctx context.Context, value any, t reflect.Type) (any, error)
	Back func(ctx context.Context, value any, t reflect.Type) (any, error)
}

func (f ConverterFuncs) Convert(ctx context.Context, value any, t reflect.Type) (any, error) {
	if f.To == nil {
		return defaultConvert(value, t)
	}
	return f.To(ctx, value, t)
}

func (f ConverterFuncs) ConvertBack(ctx context.Context, value any, t reflect.Type) (any, error) {
	if f.Back == nil {
		return defaultConvert(value, t)
	}
	return f.Back(ctx, value, t)
}

func defaultConvert(value any, t reflect.Type) (any, error) {
	if t == nil || value == nil {
		return value, nil
	}
	return observe.Convert(value, t)
}

// Dispatcher runs target writes, for example on a UI goroutine. The default
// runs them inline.
type Dispatcher interface {
	Dispatch(fn func())
}

type DispatcherFunc func(fn func())

func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }
