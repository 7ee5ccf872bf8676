package binding

import (
	"context"

	"github.com/delaneyj/bindparty/observe"
)

type ctxKey int

const (
	bindingKey ctxKey = iota
	observersKey
)

// WithBinding returns a context carrying b. Converters, interceptors and
// setters receive such a context.
func WithBinding(ctx context.Context, b *Binding) context.Context {
	return context.WithValue(ctx, bindingKey, b)
}

// FromContext returns the binding currently being synchronized.
func FromContext(ctx context.Context) (*Binding, bool) {
	b, ok := ctx.Value(bindingKey).(*Binding)
	return b, ok && b != nil
}

// ContextWithObservers selects the Observers expressions resolve paths with.
func ContextWithObservers(ctx context.Context, o *observe.Observers) context.Context {
	return context.WithValue(ctx, observersKey, o)
}

// ObserversFrom returns the Observers carried by ctx or observe.Default().
func ObserversFrom(ctx context.Context) *observe.Observers {
	if o, ok := ctx.Value(observersKey).(*observe.Observers); ok && o != nil {
		return o
	}
	return observe.Default()
}
