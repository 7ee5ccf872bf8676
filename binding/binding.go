package binding

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/delaneyj/bindparty/errs"
	"github.com/delaneyj/bindparty/internal/debounce"
	"github.com/delaneyj/bindparty/internal/reentry"
	"github.com/delaneyj/bindparty/listeners"
	"github.com/delaneyj/bindparty/observe"
	"github.com/google/uuid"
)

// settings are the compiled parameters shared by every binding a Builder
// creates.
type settings struct {
	mode        Mode
	delay       time.Duration
	targetDelay time.Duration
	strict      bool

	converter     Converter
	interceptors  []Interceptor
	targetSetters []TargetSetter
	sourceSetters []SourceSetter
	dispatcher    Dispatcher

	fallback           any
	hasFallback        bool
	targetNullValue    any
	hasTargetNullValue bool
}

// Binding keeps a target member in sync with a source path or constant.
type Binding struct {
	id       uuid.UUID
	settings settings
	ctx      context.Context
	logger   *slog.Logger

	target   observe.MemberPathObserver
	source   observe.MemberPathObserver
	constant any

	state    atomic.Uint32
	syncMu   sync.Mutex
	syncing  reentry.Guard
	toTarget *debounce.Debouncer
	toSource *debounce.Debouncer

	events   *listeners.Registry
	targetEP *endpoint
	sourceEP *endpoint
	onDetach func(*Binding)

	mu     sync.Mutex
	tokens []listeners.Token
}

func newBinding(ctx context.Context, s settings, target, source observe.MemberPathObserver, constant any, logger *slog.Logger) *Binding {
	b := &Binding{
		id:       uuid.New(),
		settings: s,
		logger:   logger,
		target:   target,
		source:   source,
		constant: constant,
		events:   &listeners.Registry{},
	}
	b.ctx = WithBinding(context.WithoutCancel(ctx), b)
	if s.delay > 0 {
		b.toTarget = debounce.New(s.delay)
	}
	if s.targetDelay > 0 {
		b.toSource = debounce.New(s.targetDelay)
	}
	b.targetEP = &endpoint{b: b, isTarget: true}
	b.sourceEP = &endpoint{b: b}
	return b
}

func (b *Binding) ID() uuid.UUID                      { return b.id }
func (b *Binding) Mode() Mode                         { return b.settings.mode }
func (b *Binding) State() State                       { return State(b.state.Load()) }
func (b *Binding) Target() observe.MemberPathObserver { return b.target }

// Source returns the source path observer, nil for constant sources.
func (b *Binding) Source() observe.MemberPathObserver { return b.source }

func (b *Binding) IsDetached() bool { return b.State() == Detached }

// AddListener registers l until the token is removed or the binding detaches.
func (b *Binding) AddListener(l Listener) listeners.Token {
	if l == nil || b.IsDetached() {
		return listeners.Token{}
	}
	return b.events.AddStrong(listenerAdapter{l: l}, nil)
}

func (b *Binding) lifecycleErr(op string) error {
	if !b.settings.strict {
		return nil
	}
	return errs.Wrap(errs.CodeLifecycle, op, errs.ErrDetached)
}

// Attach subscribes to both endpoints and runs the initial synchronization.
// Attaching twice is a no-op.
func (b *Binding) Attach() error {
	if !b.state.CompareAndSwap(uint32(Created), uint32(Attached)) {
		if b.IsDetached() {
			return b.lifecycleErr("binding.Attach")
		}
		return nil
	}

	mode := b.settings.mode
	b.mu.Lock()
	if mode.observesTarget() {
		b.tokens = append(b.tokens, b.target.AddListener(b.targetEP))
	}
	if b.source != nil && mode.observesSource() {
		b.tokens = append(b.tokens, b.source.AddListener(b.sourceEP))
	}
	b.mu.Unlock()
	b.logger.Debug("binding attached", "id", b.id, "mode", mode, "target", b.target.Path())

	switch {
	case mode.updatesTarget():
		b.syncTarget()
	case mode == OneWayToSource:
		b.syncSource()
	default:
		b.setState(Idle)
	}
	return nil
}

// Detach unsubscribes everything. It is idempotent and no event is delivered
// once it returned.
func (b *Binding) Detach() {
	prev := State(b.state.Swap(uint32(Detached)))
	if prev == Detached {
		return
	}

	if b.toTarget != nil {
		b.toTarget.Stop()
	}
	if b.toSource != nil {
		b.toSource.Stop()
	}
	// Wait for a sync running on another goroutine.
	if !b.syncing.Active() {
		b.syncMu.Lock()
		b.syncMu.Unlock()
	}

	b.mu.Lock()
	tokens := b.tokens
	b.tokens = nil
	b.mu.Unlock()
	for _, tok := range tokens {
		tok.Remove()
	}
	b.target.Dispose()
	if b.source != nil {
		b.source.Dispose()
	}

	b.logger.Debug("binding detached", "id", b.id)
	b.events.Raise(b, event{kind: evDetached}, nil)
	b.events.Clear()
	if b.onDetach != nil {
		b.onDetach(b)
	}
}

// UpdateTarget pushes the current source value to the target.
func (b *Binding) UpdateTarget() error {
	if b.IsDetached() {
		return b.lifecycleErr("binding.UpdateTarget")
	}
	return b.syncTarget()
}

// UpdateSource pushes the current target value to the source.
func (b *Binding) UpdateSource() error {
	if b.IsDetached() {
		return b.lifecycleErr("binding.UpdateSource")
	}
	if b.source == nil {
		return errs.New(errs.CodeConfiguration, "constant source cannot be updated")
	}
	return b.syncSource()
}

func (b *Binding) setState(s State) {
	for {
		cur := b.state.Load()
		if State(cur) == Detached || b.state.CompareAndSwap(cur, uint32(s)) {
			return
		}
	}
}

func (b *Binding) raise(ev event) {
	if b.IsDetached() {
		return
	}
	b.events.Raise(b, ev, nil)
}

func (b *Binding) diagnostic(msg string) {
	b.logger.Debug("binding diagnostic", "id", b.id, "msg", msg)
	b.raise(event{kind: evDiagnostic, msg: msg})
}

// checkAlive detaches the binding once neither endpoint can be reached.
func (b *Binding) checkAlive() bool {
	if b.target.IsAlive() || (b.source != nil && b.source.IsAlive()) {
		return true
	}
	if !b.IsDetached() {
		b.logger.Debug("binding endpoints collected", "id", b.id)
		b.Detach()
	}
	return false
}

// enter serializes synchronization. Re-entrant calls on the same goroutine,
// typically the echo of our own write, are dropped.
func (b *Binding) enter() bool {
	if !b.syncing.Enter() {
		return false
	}
	b.syncMu.Lock()
	if b.IsDetached() {
		b.syncMu.Unlock()
		b.syncing.Exit()
		return false
	}
	b.setState(Syncing)
	return true
}

func (b *Binding) leave() {
	b.setState(Idle)
	b.syncMu.Unlock()
	b.syncing.Exit()
}

func (b *Binding) readSource() (v any, ok bool, err error) {
	if b.source == nil {
		return b.constant, true, nil
	}
	lm, err := b.source.GetLastMember()
	if err == nil && lm.IsResolved() {
		v, err = lm.Value()
	} else if err != nil && !b.settings.hasFallback {
		err = pathErr(false, err)
	}
	switch {
	case err != nil && b.settings.hasFallback:
		return b.settings.fallback, true, nil
	case err != nil:
		return nil, false, err
	case !lm.IsResolved() && b.settings.hasFallback:
		return b.settings.fallback, true, nil
	case !lm.IsResolved():
		return nil, false, nil
	}
	if v == nil && b.settings.hasTargetNullValue {
		v = b.settings.targetNullValue
	}
	return v, true, nil
}

func (b *Binding) syncTarget() error {
	if !b.checkAlive() || !b.enter() {
		return nil
	}
	defer b.leave()

	err := b.applyTarget()
	var pe *pathError
	if errors.As(err, &pe) {
		return b.reportPath(pe)
	}
	if err != nil {
		err = errs.Wrap(errs.CodeSynchronization, "binding.UpdateTarget", err)
		b.logger.Warn("target update failed", "id", b.id, "err", err)
		b.raise(event{kind: evTargetUpdateFailed, err: err})
	}
	return err
}

func (b *Binding) applyTarget() error {
	v, ok, err := b.readSource()
	if err != nil {
		return err
	}
	if !ok {
		b.diagnostic("source is unresolved, target left unchanged")
		return nil
	}
	for _, ic := range b.settings.interceptors {
		if v, ok = ic.InterceptTarget(b.ctx, v); !ok {
			b.diagnostic("target update vetoed by interceptor")
			return nil
		}
	}

	lm, err := b.target.GetLastMember()
	if err != nil {
		return pathErr(true, err)
	}
	if lm.Member != nil {
		if b.settings.converter != nil {
			v, err = b.settings.converter.Convert(b.ctx, v, lm.Member.Type)
		} else {
			v, err = defaultConvert(v, lm.Member.Type)
		}
		if err != nil {
			return err
		}
	}

	write := func() error {
		for _, s := range b.settings.targetSetters {
			if done, err := s.SetTarget(b.ctx, lm, v); err != nil || done {
				return err
			}
		}
		done, err := memberSetter(lm, v)
		if err == nil && !done {
			return errNotAccepted
		}
		return err
	}

	if d := b.settings.dispatcher; d != nil {
		d.Dispatch(func() {
			if b.IsDetached() {
				return
			}
			// Queued writes run outside syncMu, the guard alone drops their
			// echo. An inline dispatcher already runs inside it.
			if b.syncing.Enter() {
				defer b.syncing.Exit()
			}
			if err := write(); err != nil {
				b.reportTargetWrite(err)
				return
			}
			b.raise(event{kind: evTargetUpdated, value: v})
		})
		return nil
	}
	if err := write(); err != nil {
		return b.reportTargetWrite(err)
	}
	b.raise(event{kind: evTargetUpdated, value: v})
	return nil
}

var errNotAccepted = errors.New("no setter accepted the value")

func (b *Binding) reportTargetWrite(err error) error {
	if errors.Is(err, errNotAccepted) {
		b.diagnostic("no target setter accepted the value, dropped")
		return nil
	}
	if b.settings.dispatcher != nil {
		err = errs.Wrap(errs.CodeSynchronization, "binding.UpdateTarget", err)
		b.raise(event{kind: evTargetUpdateFailed, err: err})
	}
	return err
}

func (b *Binding) syncSource() error {
	if b.source == nil || !b.checkAlive() || !b.enter() {
		return nil
	}
	defer b.leave()

	v, err := b.applySource()
	var pe *pathError
	if errors.As(err, &pe) {
		return b.reportPath(pe)
	}
	if err != nil {
		err = errs.Wrap(errs.CodeSynchronization, "binding.UpdateSource", err)
		b.logger.Warn("source update failed", "id", b.id, "err", err)
		b.raise(event{kind: evSourceUpdateFailed, err: err})
		return err
	}
	if v != nil {
		b.raise(event{kind: evSourceUpdated, value: *v})
	}
	return nil
}

// applySource returns the written value, or nil when nothing was written.
func (b *Binding) applySource() (*any, error) {
	lm, err := b.target.GetLastMember()
	if err != nil {
		return nil, pathErr(true, err)
	}
	if !lm.IsResolved() {
		b.diagnostic("target is unresolved, source left unchanged")
		return nil, nil
	}
	v, err := lm.Value()
	if err != nil {
		return nil, err
	}
	for _, ic := range b.settings.interceptors {
		var ok bool
		if v, ok = ic.InterceptSource(b.ctx, v); !ok {
			b.diagnostic("source update vetoed by interceptor")
			return nil, nil
		}
	}

	src, err := b.source.GetLastMember()
	if err != nil {
		return nil, pathErr(false, err)
	}
	if src.Member != nil {
		if b.settings.converter != nil {
			v, err = b.settings.converter.ConvertBack(b.ctx, v, src.Member.Type)
		} else {
			v, err = defaultConvert(v, src.Member.Type)
		}
		if err != nil {
			return nil, err
		}
	}

	for _, s := range b.settings.sourceSetters {
		done, err := s.SetSource(b.ctx, src, v)
		if err != nil {
			return nil, err
		}
		if done {
			return &v, nil
		}
	}
	done, err := memberSetter(src, v)
	if err != nil {
		return nil, err
	}
	if !done {
		b.diagnostic("no source setter accepted the value, dropped")
		return nil, nil
	}
	return &v, nil
}

// pathError marks a resolution failure of one endpoint path. It is reported
// as a path error of that side rather than a failed update.
type pathError struct {
	target bool
	err    error
}

func (e *pathError) Error() string { return e.err.Error() }
func (e *pathError) Unwrap() error { return e.err }

func pathErr(target bool, err error) error {
	if !errs.IsCode(err, errs.CodeResolution) {
		return err
	}
	return &pathError{target: target, err: err}
}

// reportPath raises a path error unless the observer of that side already
// delivered it through OnError.
func (b *Binding) reportPath(pe *pathError) error {
	mode := b.settings.mode
	if pe.target {
		if !mode.observesTarget() || !b.target.Options().Observable {
			b.logger.Warn("target path error", "id", b.id, "err", pe.err)
			b.raise(event{kind: evTargetError, err: pe.err})
		}
		return pe.err
	}
	if !mode.observesSource() || !b.source.Options().Observable {
		b.logger.Warn("source path error", "id", b.id, "err", pe.err)
		b.raise(event{kind: evSourceError, err: pe.err})
	}
	return pe.err
}

// scheduleTarget and scheduleSource drop triggers raised while this
// goroutine synchronizes: they are the echo of our own write and would
// otherwise bounce between two debouncers forever.
func (b *Binding) scheduleTarget() {
	if b.syncing.Active() {
		return
	}
	if b.toTarget != nil {
		b.toTarget.Trigger(func() { b.syncTarget() })
		return
	}
	b.syncTarget()
}

func (b *Binding) scheduleSource() {
	if b.syncing.Active() {
		return
	}
	if b.toSource != nil {
		b.toSource.Trigger(func() { b.syncSource() })
		return
	}
	b.syncSource()
}

// endpoint receives path events for one side of a binding. The binding holds
// it strongly, the path observers only weakly.
type endpoint struct {
	b        *Binding
	isTarget bool
}

func (e *endpoint) OnPathMembersChanged(observe.MemberPathObserver) {
	b := e.b
	// A new target member takes the current source value, the last member
	// event that follows covers the source side.
	if e.isTarget && b.settings.mode.observesSource() {
		b.scheduleTarget()
	}
}

func (e *endpoint) OnLastMemberChanged(observe.MemberPathObserver) {
	b := e.b
	if b.IsDetached() {
		return
	}
	if e.isTarget {
		if b.settings.mode.updatesSource() {
			b.scheduleSource()
		}
		return
	}
	b.scheduleTarget()
}

func (e *endpoint) OnError(_ observe.MemberPathObserver, err error) {
	b := e.b
	if !b.checkAlive() {
		return
	}
	if e.isTarget {
		b.logger.Warn("target path error", "id", b.id, "err", err)
		b.raise(event{kind: evTargetError, err: err})
		return
	}
	b.logger.Warn("source path error", "id", b.id, "err", err)
	b.raise(event{kind: evSourceError, err: err})
	// while Attached the initial synchronization still follows
	if b.settings.hasFallback && b.State() != Attached {
		b.scheduleTarget()
	}
}
