package observe

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/delaneyj/bindparty/errs"
	"github.com/delaneyj/bindparty/internal/reentry"
	"github.com/delaneyj/bindparty/listeners"
	"github.com/delaneyj/bindparty/weakref"
)

// PathListener receives the events of a MemberPathObserver.
type PathListener interface {
	// OnPathMembersChanged fires when an intermediate segment changed and the
	// path was resolved again.
	OnPathMembersChanged(o MemberPathObserver)
	// OnLastMemberChanged fires when the value at the end of the path may
	// have changed.
	OnLastMemberChanged(o MemberPathObserver)
	// OnError fires when resolution failed, err carries a *SegmentError.
	OnError(o MemberPathObserver, err error)
}

// PathListenerFuncs adapts functions to PathListener. Nil fields are skipped.
type PathListenerFuncs struct {
	PathMembersChanged func(o MemberPathObserver)
	LastMemberChanged  func(o MemberPathObserver)
	Error              func(o MemberPathObserver, err error)
}

func (f *PathListenerFuncs) OnPathMembersChanged(o MemberPathObserver) {
	if f.PathMembersChanged != nil {
		f.PathMembersChanged(o)
	}
}

func (f *PathListenerFuncs) OnLastMemberChanged(o MemberPathObserver) {
	if f.LastMemberChanged != nil {
		f.LastMemberChanged(o)
	}
}

func (f *PathListenerFuncs) OnError(o MemberPathObserver, err error) {
	if f.Error != nil {
		f.Error(o, err)
	}
}

// MemberPathObserver watches a member path rooted at a target.
type MemberPathObserver interface {
	Target() any
	Path() *MemberPath
	Options() Options
	// IsAlive reports whether the target is still reachable and the observer
	// was not disposed.
	IsAlive() bool
	// AddListener registers l weakly. Segment subscriptions exist only while
	// at least one listener is registered.
	AddListener(l PathListener) listeners.Token
	ListenerCount() int
	// GetMembers returns the source and member of every resolved segment.
	GetMembers() (PathMembers, error)
	// GetLastMember returns the terminal member and the object it is read
	// from. An optional path with a nil intermediate returns an unresolved
	// LastMember and no error.
	GetLastMember() (LastMember, error)
	Dispose()
	IsDisposed() bool
}

// PathMembers is a snapshot of a resolved path. Entries past the first
// unresolved segment are nil.
type PathMembers struct {
	Sources []any
	Members []*Member
}

func (p PathMembers) IsResolved() bool {
	for i := range p.Members {
		if p.Sources[i] == nil || p.Members[i] == nil {
			return false
		}
	}
	return len(p.Members) > 0
}

// LastMember pairs the terminal member with its source object.
type LastMember struct {
	Source any
	Member *Member
}

func (l LastMember) IsResolved() bool {
	return l.Source != nil && l.Member != nil
}

func (l LastMember) Value() (any, error) {
	if !l.IsResolved() {
		return nil, ErrUnresolved
	}
	return l.Member.GetValue(l.Source)
}

func (l LastMember) SetValue(v any) error {
	if !l.IsResolved() {
		return ErrUnresolved
	}
	return l.Member.SetValue(l.Source, v)
}

type (
	pathMembersChanged struct{}
	lastMemberChanged  struct{}
	pathError          struct{ err error }
)

// pathDispatch forwards registry messages to a weakly held PathListener.
type pathDispatch struct {
	ref weakref.Ref
}

func (d pathDispatch) IsWeak() bool { return true }

func (d pathDispatch) Handle(sender, msg any) bool {
	l, ok := d.ref.Value().(PathListener)
	if !ok {
		return false
	}
	o, _ := sender.(MemberPathObserver)
	switch m := msg.(type) {
	case pathMembersChanged:
		l.OnPathMembersChanged(o)
	case lastMemberChanged:
		l.OnLastMemberChanged(o)
	case pathError:
		l.OnError(o, m.err)
	}
	return true
}

type segmentOwner interface {
	segmentChanged(l *segmentListener) bool
}

// segmentListener is subscribed to one segment source. The owning observer
// holds it strongly, sources only weakly.
type segmentListener struct {
	owner  segmentOwner
	index  int
	active atomic.Bool
}

func newSegmentListener(owner segmentOwner, index int) *segmentListener {
	l := &segmentListener{owner: owner, index: index}
	l.active.Store(true)
	return l
}

func (l *segmentListener) Handle(_, _ any) bool {
	if !l.active.Load() {
		return false
	}
	return l.owner.segmentChanged(l)
}

type subscription struct {
	listener *segmentListener
	unsub    func()
}

func (s *subscription) release() {
	if s.listener != nil {
		s.listener.active.Store(false)
	}
	if s.unsub != nil {
		s.unsub()
	}
	*s = subscription{}
}

// pathBase holds what single and multi segment observers share: the target,
// listener registry and disposal state.
type pathBase struct {
	observers *Observers
	target    weakref.Ref
	path      *MemberPath
	opts      Options
	self      MemberPathObserver

	registry *listeners.Registry
	disposed atomic.Bool
	// building is held while subscribing, callbacks fired synchronously by a
	// subscribe call are dropped.
	building reentry.Guard
}

func (b *pathBase) Target() any       { return b.target.Value() }
func (b *pathBase) Path() *MemberPath { return b.path }
func (b *pathBase) Options() Options  { return b.opts }
func (b *pathBase) IsDisposed() bool  { return b.disposed.Load() }
func (b *pathBase) ListenerCount() int {
	return b.registry.Count()
}

func (b *pathBase) IsAlive() bool {
	return !b.disposed.Load() && b.target.IsAlive()
}

func (b *pathBase) AddListener(l PathListener) listeners.Token {
	if l == nil || b.disposed.Load() {
		return listeners.Token{}
	}
	return b.registry.AddHandle(listeners.NewHandle(pathDispatch{ref: weakref.Make(l)}, nil))
}

func (b *pathBase) raiseMembersChanged() {
	b.registry.Raise(b.self, pathMembersChanged{}, nil)
}

func (b *pathBase) raiseLastChanged() {
	b.registry.Raise(b.self, lastMemberChanged{}, nil)
}

func (b *pathBase) raiseError(err error) {
	b.registry.Raise(b.self, pathError{err: err}, nil)
}

func (b *pathBase) liveTarget() (any, error) {
	if b.disposed.Load() {
		return nil, errs.ErrDisposed
	}
	t := b.target.Value()
	if t == nil {
		return nil, errs.ErrTargetDead
	}
	return t, nil
}

func (b *pathBase) subscribe(index int, source any, owner segmentOwner) subscription {
	l := newSegmentListener(owner, index)
	obs := b.observers.MemberObserver(reflect.TypeOf(source), b.path.Member(index), b.opts)
	return subscription{listener: l, unsub: obs.Observe(source, l)}
}

// singleObserver is the fast path for one segment paths: the member is
// looked up once and only the target itself is subscribed.
type singleObserver struct {
	pathBase

	member    *Member
	memberErr error

	mu  sync.Mutex
	sub subscription
}

func newSingleObserver(o *Observers, target any, path *MemberPath, opts Options) *singleObserver {
	s := &singleObserver{pathBase: pathBase{
		observers: o,
		target:    weakref.Make(target),
		path:      path,
		opts:      opts,
	}}
	s.self = s
	s.registry = listeners.New(s.start, s.stop)
	s.member, s.memberErr = o.Member(reflect.TypeOf(target), path.Member(0), opts.Flags)
	if s.memberErr != nil {
		s.memberErr = segmentError(path, 0, s.memberErr)
	}
	return s
}

func (s *singleObserver) start() {
	if !s.opts.Observable || s.disposed.Load() {
		return
	}
	target := s.target.Value()
	if target == nil {
		return
	}

	s.mu.Lock()
	if s.sub.listener != nil {
		s.mu.Unlock()
		return
	}
	s.building.Enter()
	s.sub = s.subscribe(0, target, s)
	s.building.Exit()
	s.mu.Unlock()

	// the first listener learns about an unknown member right away
	if s.memberErr != nil {
		s.raiseError(s.memberErr)
	}
}

func (s *singleObserver) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registry.Count() > 0 && !s.disposed.Load() {
		return
	}
	s.sub.release()
}

func (s *singleObserver) segmentChanged(*segmentListener) bool {
	if s.disposed.Load() {
		return false
	}
	if s.building.Active() {
		return true
	}
	s.raiseLastChanged()
	return true
}

func (s *singleObserver) GetMembers() (PathMembers, error) {
	lm, err := s.GetLastMember()
	if err != nil {
		return PathMembers{}, err
	}
	return PathMembers{Sources: []any{lm.Source}, Members: []*Member{lm.Member}}, nil
}

func (s *singleObserver) GetLastMember() (LastMember, error) {
	target, err := s.liveTarget()
	if err != nil {
		return LastMember{}, err
	}
	if s.memberErr != nil {
		return LastMember{}, s.memberErr
	}
	return LastMember{Source: target, Member: s.member}, nil
}

func (s *singleObserver) Dispose() {
	if s.disposed.Swap(true) {
		return
	}
	s.registry.Clear()
	s.stop()
}

// multiObserver keeps one subscription per resolved segment and re-resolves
// the tail of the path when an intermediate value changes.
type multiObserver struct {
	pathBase

	mu      sync.Mutex
	live    bool
	sources []weakref.Ref
	members []*Member
	subs    []subscription
	err     error
}

func newMultiObserver(o *Observers, target any, path *MemberPath, opts Options) *multiObserver {
	n := path.Len()
	m := &multiObserver{
		pathBase: pathBase{
			observers: o,
			target:    weakref.Make(target),
			path:      path,
			opts:      opts,
		},
		sources: make([]weakref.Ref, n),
		members: make([]*Member, n),
		subs:    make([]subscription, n),
	}
	m.self = m
	m.registry = listeners.New(m.start, m.stop)
	return m
}

// walk resolves segments from..n-1 starting with src as the source of
// segment from. It stops at the first failure, or silently at a nil
// intermediate when the path is optional.
func (m *multiObserver) walk(from int, src any, sources []any, members []*Member) error {
	n := m.path.Len()
	for i := from; i < n; i++ {
		if isNil(src) {
			if m.opts.Optional {
				return nil
			}
			return segmentError(m.path, i, ErrNilSource)
		}
		sources[i] = src
		mem, err := m.observers.Member(reflect.TypeOf(src), m.path.Member(i), m.opts.Flags)
		if err != nil {
			return segmentError(m.path, i, err)
		}
		members[i] = mem
		if i == n-1 {
			break
		}
		v, err := mem.GetValue(src)
		if err != nil {
			return segmentError(m.path, i, err)
		}
		src = v
	}
	return nil
}

func (m *multiObserver) shouldSubscribe(i int) bool {
	return m.live && (!m.opts.StablePath || i == m.path.Len()-1)
}

// rebuildLocked drops every segment from index from on and resolves them
// again. Callers hold building so getters raising notifications synchronously
// do not re-enter.
func (m *multiObserver) rebuildLocked(from int) error {
	n := m.path.Len()
	for j := from; j < n; j++ {
		m.subs[j].release()
		m.sources[j] = weakref.Ref{}
		m.members[j] = nil
	}

	var src any
	if from == 0 {
		src = m.target.Value()
		if src == nil {
			return errs.ErrTargetDead
		}
	} else {
		prev, mem := m.sources[from-1].Value(), m.members[from-1]
		if prev == nil || mem == nil {
			return m.rebuildLocked(0)
		}
		v, err := mem.GetValue(prev)
		if err != nil {
			return segmentError(m.path, from-1, err)
		}
		src = v
	}

	sources := make([]any, n)
	members := make([]*Member, n)
	err := m.walk(from, src, sources, members)
	for i := from; i < n; i++ {
		if sources[i] == nil {
			break
		}
		m.sources[i] = weakref.Make(sources[i])
		m.members[i] = members[i]
		if m.shouldSubscribe(i) {
			m.subs[i] = m.subscribe(i, sources[i], m)
		}
	}
	return err
}

func (m *multiObserver) start() {
	if !m.opts.Observable || m.disposed.Load() {
		return
	}

	m.mu.Lock()
	if m.live {
		m.mu.Unlock()
		return
	}
	m.live = true
	m.building.Enter()
	err := m.rebuildLocked(0)
	m.building.Exit()
	m.err = err
	m.mu.Unlock()

	if errs.IsCode(err, errs.CodeResolution) {
		m.raiseError(err)
	}
}

func (m *multiObserver) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registry.Count() > 0 && !m.disposed.Load() {
		return
	}
	m.live = false
	m.err = nil
	for i := range m.subs {
		m.subs[i].release()
		m.sources[i] = weakref.Ref{}
		m.members[i] = nil
	}
}

func (m *multiObserver) segmentChanged(l *segmentListener) bool {
	if m.disposed.Load() {
		return false
	}
	if m.building.Active() {
		return true
	}
	if l.index == m.path.Len()-1 {
		m.raiseLastChanged()
		return true
	}

	m.mu.Lock()
	if !l.active.Load() || !m.live {
		m.mu.Unlock()
		return false
	}
	m.building.Enter()
	err := m.rebuildLocked(l.index + 1)
	m.building.Exit()
	m.err = err
	m.mu.Unlock()

	if err != nil {
		m.raiseError(err)
		return true
	}
	m.raiseMembersChanged()
	m.raiseLastChanged()
	return true
}

// snapshot returns the cached resolution, ok is false when the observer is
// not subscribed or an intermediate was collected behind its back.
func (m *multiObserver) snapshot() (PathMembers, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live {
		return PathMembers{}, false, nil
	}
	if m.err != nil {
		return PathMembers{}, true, m.err
	}
	n := m.path.Len()
	pm := PathMembers{Sources: make([]any, n), Members: make([]*Member, n)}
	for i := range n {
		if m.sources[i].IsZero() {
			break
		}
		src := m.sources[i].Value()
		if src == nil {
			return PathMembers{}, false, nil
		}
		pm.Sources[i] = src
		pm.Members[i] = m.members[i]
	}
	return pm, true, nil
}

func (m *multiObserver) GetMembers() (PathMembers, error) {
	target, err := m.liveTarget()
	if err != nil {
		return PathMembers{}, err
	}
	if pm, ok, err := m.snapshot(); ok {
		return pm, err
	}
	n := m.path.Len()
	pm := PathMembers{Sources: make([]any, n), Members: make([]*Member, n)}
	if err := m.walk(0, target, pm.Sources, pm.Members); err != nil {
		return PathMembers{}, err
	}
	return pm, nil
}

func (m *multiObserver) GetLastMember() (LastMember, error) {
	pm, err := m.GetMembers()
	if err != nil {
		return LastMember{}, err
	}
	last := m.path.Len() - 1
	if pm.Sources[last] == nil || pm.Members[last] == nil {
		return LastMember{}, nil
	}
	return LastMember{Source: pm.Sources[last], Member: pm.Members[last]}, nil
}

func (m *multiObserver) Dispose() {
	if m.disposed.Swap(true) {
		return
	}
	m.registry.Clear()
	m.stop()
}
