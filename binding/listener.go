package binding

import "github.com/delaneyj/bindparty/listeners"

// Listener receives the events of a Binding. Events are delivered
// synchronously on the goroutine that caused them and never after Detach
// returned.
type Listener interface {
	OnTargetUpdated(b *Binding, value any)
	OnTargetUpdateFailed(b *Binding, err error)
	OnSourceUpdated(b *Binding, value any)
	OnSourceUpdateFailed(b *Binding, err error)
	// OnSourceError reports a resolution failure of the source path.
	OnSourceError(b *Binding, err error)
	// OnTargetError reports a resolution failure of the target path.
	OnTargetError(b *Binding, err error)
	// OnDiagnostic reports values that were dropped without an error, for
	// example when no setter accepted them.
	OnDiagnostic(b *Binding, msg string)
	OnDetached(b *Binding)
}

// ListenerFuncs adapts functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	TargetUpdated      func(b *Binding, value any)
	TargetUpdateFailed func(b *Binding, err error)
	SourceUpdated      func(b *Binding, value any)
	SourceUpdateFailed func(b *Binding, err error)
	SourceError        func(b *Binding, err error)
	TargetError        func(b *Binding, err error)
	Diagnostic         func(b *Binding, msg string)
	Detached           func(b *Binding)
}

func (f *ListenerFuncs) OnTargetUpdated(b *Binding, value any) {
	if f.TargetUpdated != nil {
		f.TargetUpdated(b, value)
	}
}

func (f *ListenerFuncs) OnTargetUpdateFailed(b *Binding, err error) {
	if f.TargetUpdateFailed != nil {
		f.TargetUpdateFailed(b, err)
	}
}

func (f *ListenerFuncs) OnSourceUpdated(b *Binding, value any) {
	if f.SourceUpdated != nil {
		f.SourceUpdated(b, value)
	}
}

func (f *ListenerFuncs) OnSourceUpdateFailed(b *Binding, err error) {
	if f.SourceUpdateFailed != nil {
		f.SourceUpdateFailed(b, err)
	}
}

func (f *ListenerFuncs) OnSourceError(b *Binding, err error) {
	if f.SourceError != nil {
		f.SourceError(b, err)
	}
}

func (f *ListenerFuncs) OnTargetError(b *Binding, err error) {
	if f.TargetError != nil {
		f.TargetError(b, err)
	}
}

func (f *ListenerFuncs) OnDiagnostic(b *Binding, msg string) {
	if f.Diagnostic != nil {
		f.Diagnostic(b, msg)
	}
}

func (f *ListenerFuncs) OnDetached(b *Binding) {
	if f.Detached != nil {
		f.Detached(b)
	}
}

type eventKind uint8

const (
	evTargetUpdated eventKind = iota
	evTargetUpdateFailed
	evSourceUpdated
	evSourceUpdateFailed
	evSourceError
	evTargetError
	evDiagnostic
	evDetached
)

type event struct {
	kind  eventKind
	value any
	err   error
	msg   string
}

// listenerAdapter adapts a Listener to the registry. Binding listeners are held
// strongly, the binding owns them.
type listenerAdapter struct {
	l Listener
}

func (d listenerAdapter) IsWeak() bool { return true }

func (d listenerAdapter) Handle(sender, msg any) bool {
	b, _ := sender.(*Binding)
	ev, ok := msg.(event)
	if !ok {
		return true
	}
	switch ev.kind {
	case evTargetUpdated:
		d.l.OnTargetUpdated(b, ev.value)
	case evTargetUpdateFailed:
		d.l.OnTargetUpdateFailed(b, ev.err)
	case evSourceUpdated:
		d.l.OnSourceUpdated(b, ev.value)
	case evSourceUpdateFailed:
		d.l.OnSourceUpdateFailed(b, ev.err)
	case evSourceError:
		d.l.OnSourceError(b, ev.err)
	case evTargetError:
		d.l.OnTargetError(b, ev.err)
	case evDiagnostic:
		d.l.OnDiagnostic(b, ev.msg)
	case evDetached:
		d.l.OnDetached(b)
	}
	return true
}

var _ listeners.WeakListener = listenerAdapter{}
