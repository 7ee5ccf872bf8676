package binding

import (
	"context"
	"log/slog"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/bindparty/errs"
	"github.com/delaneyj/bindparty/listeners"
	"github.com/delaneyj/bindparty/observe"
	"github.com/delaneyj/bindparty/weakref"
)

// Manager compiles binding requests and tracks the bindings of each target.
// A target's bindings live as long as the target, they are detached and
// forgotten once it is collected and Sweep runs.
type Manager struct {
	logger     *slog.Logger
	observers  *observe.Observers
	cfg        Config
	dispatcher Dispatcher

	events   listeners.Registry
	bindings weakref.Table[mapset.Set[*Binding]]
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithObservers(o *observe.Observers) Option {
	return func(m *Manager) { m.observers = o }
}

func WithConfig(c Config) Option {
	return func(m *Manager) { m.cfg = c }
}

func WithDispatcher(d Dispatcher) Option {
	return func(m *Manager) { m.dispatcher = d }
}

// WithListener receives the events of every binding the manager builds.
func WithListener(l Listener) Option {
	return func(m *Manager) { m.AddListener(l) }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "binding")
	if m.observers == nil {
		m.observers = observe.Default()
	}
	return m
}

func (m *Manager) Config() Config                { return m.cfg }
func (m *Manager) Observers() *observe.Observers { return m.observers }

// AddListener registers l for the events of bindings built from now on.
func (m *Manager) AddListener(l Listener) listeners.Token {
	return m.events.AddStrong(listenerAdapter{l: l}, nil)
}

// Compile validates req and returns a Builder. Every problem with the
// request is reported here as a configuration error.
func (m *Manager) Compile(req Request) (*Builder, error) {
	if req.Target == nil {
		return nil, configErr("nil target expression")
	}
	target, ok := req.Target.(*Member)
	if !ok {
		return nil, configErr("target expression must be a member path, got %T", req.Target)
	}
	if _, err := m.observers.Path(target.Path); err != nil {
		return nil, errs.Wrapf(errs.CodeConfiguration, "binding.Compile", err, "target path")
	}
	if req.Source == nil {
		return nil, configErr("nil source expression")
	}

	s, opts, err := parseParams(req.Params, m.cfg)
	if err != nil {
		return nil, err
	}

	source := req.Source
	switch src := source.(type) {
	case *Member:
		if _, err := m.observers.Path(src.Path); err != nil {
			return nil, errs.Wrapf(errs.CodeConfiguration, "binding.Compile", err, "source path")
		}
		source = src.with(opts...)
	default:
		if s.mode.updatesSource() {
			if _, isConst := source.(Constant); isConst {
				return nil, configErr("mode %s needs a member source", s.mode)
			}
		}
	}

	s.interceptors = slices.Clone(req.Interceptors)
	s.targetSetters = slices.Clone(req.TargetSetters)
	s.sourceSetters = slices.Clone(req.SourceSetters)
	s.dispatcher = m.dispatcher

	return &Builder{
		manager: m,
		target:  target,
		source:  source,
		s:       s,
	}, nil
}

// Bind compiles req and builds it for target and source.
func (m *Manager) Bind(ctx context.Context, target, source any, req Request) (*Binding, error) {
	bld, err := m.Compile(req)
	if err != nil {
		return nil, err
	}
	return bld.Build(ctx, target, source)
}

// Bindings returns the live bindings of target.
func (m *Manager) Bindings(target any) []*Binding {
	set, ok := m.bindings.Get(target)
	if !ok {
		return nil
	}
	return set.ToSlice()
}

// Count returns the number of live bindings across every target.
func (m *Manager) Count() int {
	n := 0
	for _, set := range m.bindings.Values() {
		n += set.Cardinality()
	}
	return n
}

// Sweep detaches the bindings of collected targets and returns how many were
// removed.
func (m *Manager) Sweep() int {
	n := 0
	for _, set := range m.bindings.Evict() {
		for _, b := range set.ToSlice() {
			b.Detach()
			n++
		}
	}
	if n > 0 {
		m.logger.Debug("swept bindings", "count", n)
	}
	return n
}

// DetachAll detaches every binding of target.
func (m *Manager) DetachAll(target any) int {
	bs := m.Bindings(target)
	for _, b := range bs {
		b.Detach()
	}
	return len(bs)
}

func (m *Manager) track(target any, b *Binding) {
	set, ok := m.bindings.GetOrAdd(target, func() mapset.Set[*Binding] {
		return mapset.NewSet[*Binding]()
	})
	if !ok {
		return
	}
	set.Add(b)

	key, _ := weakref.KeyOf(target)
	b.onDetach = func(b *Binding) {
		set.Remove(b)
		if set.Cardinality() == 0 {
			m.bindings.DeleteKey(key, func(s mapset.Set[*Binding]) bool {
				return s == set && s.Cardinality() == 0
			})
		}
	}
}

// forward relays binding events to the manager listeners and the log.
type forward struct {
	m *Manager
}

func (f forward) OnTargetUpdated(b *Binding, value any) {
	f.m.events.Raise(b, event{kind: evTargetUpdated, value: value}, nil)
}

func (f forward) OnTargetUpdateFailed(b *Binding, err error) {
	f.m.events.Raise(b, event{kind: evTargetUpdateFailed, err: err}, nil)
}

func (f forward) OnSourceUpdated(b *Binding, value any) {
	f.m.events.Raise(b, event{kind: evSourceUpdated, value: value}, nil)
}

func (f forward) OnSourceUpdateFailed(b *Binding, err error) {
	f.m.events.Raise(b, event{kind: evSourceUpdateFailed, err: err}, nil)
}

func (f forward) OnSourceError(b *Binding, err error) {
	f.m.events.Raise(b, event{kind: evSourceError, err: err}, nil)
}

func (f forward) OnTargetError(b *Binding, err error) {
	f.m.events.Raise(b, event{kind: evTargetError, err: err}, nil)
}

func (f forward) OnDiagnostic(b *Binding, msg string) {
	f.m.events.Raise(b, event{kind: evDiagnostic, msg: msg}, nil)
}

func (f forward) OnDetached(b *Binding) {
	f.m.events.Raise(b, event{kind: evDetached}, nil)
}

// Builder creates bindings from a compiled request.
type Builder struct {
	manager *Manager
	target  *Member
	source  Expression
	s       settings
}

func (bld *Builder) Mode() Mode { return bld.s.mode }

// Build creates the binding of target to source and attaches it. A nil source
// roots the source path at the target.
func (bld *Builder) Build(ctx context.Context, target, source any) (*Binding, error) {
	m := bld.manager
	if target == nil {
		return nil, configErr("nil binding target")
	}
	// bindings are tracked and collected with their target
	if _, ok := weakref.KeyOf(target); !ok {
		return nil, configErr("binding target %T is not a pointer", target)
	}
	ctx = ContextWithObservers(ctx, m.observers)

	targetObs, err := bld.target.GetBindingSource(ctx, target, target)
	if err != nil {
		return nil, errs.Wrapf(errs.CodeConfiguration, "binding.Build", err, "target")
	}
	sourceObs, err := bld.source.GetBindingSource(ctx, target, source)
	if err != nil {
		targetObs.Dispose()
		return nil, errs.Wrapf(errs.CodeConfiguration, "binding.Build", err, "source")
	}
	var constant any
	if sourceObs == nil {
		if bld.s.mode.updatesSource() {
			targetObs.Dispose()
			return nil, configErr("mode %s needs an observable source", bld.s.mode)
		}
		if constant, _, err = bld.source.GetSource(ctx, target, source); err != nil {
			targetObs.Dispose()
			return nil, errs.Wrapf(errs.CodeConfiguration, "binding.Build", err, "source")
		}
	}

	b := newBinding(ctx, bld.s, targetObs, sourceObs, constant, m.logger)
	b.AddListener(forward{m: m})
	m.track(target, b)
	m.logger.Debug("binding built", "id", b.ID(), "mode", bld.s.mode, "target", bld.target.Path)

	if err := b.Attach(); err != nil {
		return nil, err
	}
	return b, nil
}
