package binding

import (
	"context"

	"github.com/delaneyj/bindparty/errs"
	"github.com/delaneyj/bindparty/observe"
)

// Expression is a node of a parsed binding expression.
type Expression interface {
	// GetSource evaluates the expression root once, without observing it.
	GetSource(ctx context.Context, target, source any) (any, observe.MemberFlags, error)
	// GetBindingSource returns an observer for the expression. A nil observer
	// and nil error mean the expression is constant.
	GetBindingSource(ctx context.Context, target, source any) (observe.MemberPathObserver, error)
}

// Member is a member path evaluated against the source, or against the
// target when no source is given.
type Member struct {
	Path    string
	Options []observe.Option
}

func Path(path string, opts ...observe.Option) *Member {
	return &Member{Path: path, Options: opts}
}

func (m *Member) root(target, source any) (any, error) {
	if source != nil {
		return source, nil
	}
	if target != nil {
		return target, nil
	}
	return nil, errs.Wrap(errs.CodeResolution, "binding.Member", observe.ErrNilSource)
}

func (m *Member) GetSource(_ context.Context, target, source any) (any, observe.MemberFlags, error) {
	root, err := m.root(target, source)
	if err != nil {
		return nil, 0, err
	}
	return root, observe.NewOptions(m.Options...).Flags, nil
}

func (m *Member) GetBindingSource(ctx context.Context, target, source any) (observe.MemberPathObserver, error) {
	root, err := m.root(target, source)
	if err != nil {
		return nil, err
	}
	return ObserversFrom(ctx).Observe(root, m.Path, m.Options...)
}

// with returns a copy of m with extra options appended.
func (m *Member) with(opts ...observe.Option) *Member {
	return &Member{
		Path:    m.Path,
		Options: append(append([]observe.Option(nil), m.Options...), opts...),
	}
}

// Constant is a fixed value.
type Constant struct {
	Value any
}

func (c Constant) GetSource(context.Context, any, any) (any, observe.MemberFlags, error) {
	return c.Value, 0, nil
}

func (c Constant) GetBindingSource(context.Context, any, any) (observe.MemberPathObserver, error) {
	return nil, nil
}
