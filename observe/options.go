package observe

import "strings"

// MemberFlags selects which kinds of members a lookup considers.
type MemberFlags uint8

const (
	Fields MemberFlags = 1 << iota
	Methods
	MapKeys
	Dynamic

	DefaultFlags = Fields | Methods | MapKeys | Dynamic
)

func (f MemberFlags) Has(flag MemberFlags) bool {
	return f&flag == flag
}

func (f MemberFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, x := range []struct {
		flag MemberFlags
		name string
	}{
		{Fields, "fields"},
		{Methods, "methods"},
		{MapKeys, "mapkeys"},
		{Dynamic, "dynamic"},
	} {
		if f.Has(x.flag) {
			parts = append(parts, x.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFlags parses the String form of MemberFlags.
func ParseFlags(s string) (MemberFlags, bool) {
	var f MemberFlags
	for _, part := range strings.Split(s, "|") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "fields":
			f |= Fields
		case "methods":
			f |= Methods
		case "mapkeys":
			f |= MapKeys
		case "dynamic":
			f |= Dynamic
		case "all", "default":
			f |= DefaultFlags
		case "none":
		default:
			return 0, false
		}
	}
	return f, true
}

// Options configures a member or path observation request.
type Options struct {
	Flags MemberFlags
	// ObservableMethod overrides the On<Member>Changed subscribe method name.
	ObservableMethod string
	// StablePath promises intermediate segments never change, only the last
	// segment is subscribed.
	StablePath bool
	// Observable disables change tracking when false, every read resolves the
	// path again.
	Observable bool
	// Optional treats nil intermediates as unresolved instead of errors.
	Optional bool
}

type Option func(*Options)

func DefaultOptions() Options {
	return Options{Flags: DefaultFlags, Observable: true}
}

func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithFlags(flags MemberFlags) Option {
	return func(o *Options) { o.Flags = flags }
}

func WithObservableMethod(name string) Option {
	return func(o *Options) { o.ObservableMethod = name }
}

func WithStablePath(stable bool) Option {
	return func(o *Options) { o.StablePath = stable }
}

func WithObservable(observable bool) Option {
	return func(o *Options) { o.Observable = observable }
}

func WithOptional(optional bool) Option {
	return func(o *Options) { o.Optional = optional }
}
