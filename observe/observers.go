package observe

import (
	"reflect"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/bindparty/errs"
	"github.com/delaneyj/bindparty/listeners"
	"github.com/delaneyj/bindparty/weakref"
)

// Built-in provider priorities.
const (
	PriorityAncestor    = 100
	PriorityEventMethod = 50
	PriorityNotifier    = 0
)

// IgnoreAll passed to Ignore silences every member of a type.
const IgnoreAll = "*"

type providerEntry struct {
	provider ObserverProvider
	priority int
	ancestor bool
}

type observerKey struct {
	t      reflect.Type
	member string
	method string
	raw    bool
}

type memberKey struct {
	t     reflect.Type
	name  string
	flags MemberFlags
}

type memberResult struct {
	member *Member
	err    error
}

// Observers resolves members and member observers for types and owns the
// shared RootAncestorObserver table. It is safe for concurrent use.
type Observers struct {
	mu        sync.RWMutex
	providers []providerEntry
	observers map[observerKey]MemberObserver
	ignored   map[reflect.Type]mapset.Set[string]

	members sync.Map
	paths   pathCache
	roots   weakref.Table[*RootAncestorObserver]
}

// NewObservers returns an Observers with the built-in providers registered.
func NewObservers() *Observers {
	o := &Observers{
		observers: map[observerKey]MemberObserver{},
		ignored:   map[reflect.Type]mapset.Set[string]{},
	}
	o.providers = []providerEntry{
		{provider: ancestorProvider{observers: o}, priority: PriorityAncestor, ancestor: true},
		{provider: eventMethodProvider{}, priority: PriorityEventMethod},
		{provider: notifierProvider{}, priority: PriorityNotifier},
	}
	return o
}

var defaultObservers = sync.OnceValue(NewObservers)

// Default returns the process wide Observers.
func Default() *Observers {
	return defaultObservers()
}

// Register adds a provider. Providers with a higher priority are asked
// first, equal priorities keep registration order.
func (o *Observers) Register(p ObserverProvider, priority int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	idx := slices.IndexFunc(o.providers, func(e providerEntry) bool {
		return e.priority < priority
	})
	if idx < 0 {
		idx = len(o.providers)
	}
	o.providers = slices.Insert(o.providers, idx, providerEntry{provider: p, priority: priority})
	clear(o.observers)
}

// Ignore makes the given members of t unobservable. With no members, or
// IgnoreAll, every member of t is ignored.
func (o *Observers) Ignore(t reflect.Type, members ...string) {
	if len(members) == 0 {
		members = []string{IgnoreAll}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	set, ok := o.ignored[t]
	if !ok {
		set = mapset.NewThreadUnsafeSet[string]()
		o.ignored[t] = set
	}
	for _, m := range members {
		set.Add(m)
	}
	clear(o.observers)
}

func (o *Observers) isIgnoredLocked(t reflect.Type, member string) bool {
	set, ok := o.ignored[t]
	return ok && (set.Contains(member) || set.Contains(IgnoreAll))
}

// MemberObserver returns the observer for member of t. It never returns
// nil, unsupported members get NoOpObserver.
func (o *Observers) MemberObserver(t reflect.Type, member string, opts Options) MemberObserver {
	return o.memberObserver(t, member, opts, false)
}

// memberObserver with raw set skips the ancestor provider. The ancestor
// observer itself uses it to watch the Parent member.
func (o *Observers) memberObserver(t reflect.Type, member string, opts Options, raw bool) MemberObserver {
	if t == nil {
		return NoOpObserver
	}
	key := observerKey{t: t, member: member, method: opts.ObservableMethod, raw: raw}

	o.mu.RLock()
	m, ok := o.observers[key]
	o.mu.RUnlock()
	if ok {
		return m
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.observers[key]; ok {
		return m
	}
	m = NoOpObserver
	if !o.isIgnoredLocked(t, member) {
		for _, e := range o.providers {
			if raw && e.ancestor {
				continue
			}
			if found := e.provider.TryGetMemberObserver(t, member, opts); found != nil {
				m = found
				break
			}
		}
	}
	o.observers[key] = m
	return m
}

// Member resolves name on t. Results, failures included, are cached.
func (o *Observers) Member(t reflect.Type, name string, flags MemberFlags) (*Member, error) {
	key := memberKey{t: t, name: name, flags: flags}
	if r, ok := o.members.Load(key); ok {
		res := r.(memberResult)
		return res.member, res.err
	}
	m, err := lookupMember(t, name, flags)
	r, _ := o.members.LoadOrStore(key, memberResult{member: m, err: err})
	res := r.(memberResult)
	return res.member, res.err
}

// Path returns the shared parsed form of path.
func (o *Observers) Path(path string) (*MemberPath, error) {
	return o.paths.get(path)
}

// PathCount returns the number of distinct paths parsed so far.
func (o *Observers) PathCount() int {
	return o.paths.len()
}

// Observe creates a path observer for path on target.
func (o *Observers) Observe(target any, path string, opts ...Option) (MemberPathObserver, error) {
	p, err := o.Path(path)
	if err != nil {
		return nil, err
	}
	return o.ObservePath(target, p, NewOptions(opts...))
}

// ObservePath creates a path observer for an already parsed path.
func (o *Observers) ObservePath(target any, path *MemberPath, opts Options) (MemberPathObserver, error) {
	if isNil(target) {
		return nil, errs.Wrap(errs.CodeResolution, "observe.ObservePath", ErrNilSource)
	}
	if path == nil {
		return nil, errs.New(errs.CodeConfiguration, "nil member path")
	}
	if path.IsSingle() {
		return newSingleObserver(o, target, path, opts), nil
	}
	return newMultiObserver(o, target, path, opts), nil
}

// RootAncestor returns the shared ancestor observer of target. ok is false
// when target is not a Parented pointer.
func (o *Observers) RootAncestor(target any) (rao *RootAncestorObserver, ok bool) {
	if _, isParented := target.(Parented); !isParented || isNil(target) {
		return nil, false
	}
	return o.roots.GetOrAdd(target, func() *RootAncestorObserver {
		return newRootAncestorObserver(o, target)
	})
}

// RootAncestorCount returns the number of live ancestor observers.
func (o *Observers) RootAncestorCount() int {
	return len(o.roots.Values())
}

func (o *Observers) addAncestorListener(target any, l listeners.Listener) (listeners.Token, bool) {
	for {
		rao, ok := o.RootAncestor(target)
		if !ok {
			return listeners.Token{}, false
		}
		if tok, ok := rao.addListener(l); ok {
			return tok, true
		}
		// Lost a race with the last listener leaving, drop the disposed
		// instance and create a fresh one.
		o.roots.DeleteFunc(target, func(v *RootAncestorObserver) bool { return v == rao })
	}
}
