package observe

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/bindparty/errs"
)

// MemberPath is a parsed dot separated member path such as "Customer.Address.City".
type MemberPath struct {
	path    string
	members []string
}

// ParsePath splits path into its members. Empty paths and empty segments are
// rejected.
func ParsePath(path string) (*MemberPath, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errs.New(errs.CodeConfiguration, "empty member path")
	}
	members := strings.Split(path, ".")
	for i, m := range members {
		m = strings.TrimSpace(m)
		if m == "" {
			return nil, errs.Newf(errs.CodeConfiguration, "member path %q has an empty segment at %d", path, i)
		}
		members[i] = m
	}
	return &MemberPath{path: strings.Join(members, "."), members: members}, nil
}

func MustParsePath(path string) *MemberPath {
	p, err := ParsePath(path)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *MemberPath) String() string { return p.path }
func (p *MemberPath) Len() int       { return len(p.members) }
func (p *MemberPath) IsSingle() bool { return len(p.members) == 1 }

// Members returns a copy of the path segments.
func (p *MemberPath) Members() []string {
	return append([]string(nil), p.members...)
}

// Member returns segment i, or "" when out of range.
func (p *MemberPath) Member(i int) string {
	if i < 0 || i >= len(p.members) {
		return ""
	}
	return p.members[i]
}

func (p *MemberPath) Last() string {
	return p.members[len(p.members)-1]
}

const pathShards = 16

type pathShard struct {
	mu    sync.RWMutex
	paths map[string]*MemberPath
}

// pathCache interns parsed paths. Paths are immutable so one instance is
// shared by every observer of the same string.
type pathCache struct {
	shards [pathShards]pathShard
}

func (c *pathCache) get(s string) (*MemberPath, error) {
	sh := &c.shards[xxhash.Sum64String(s)%pathShards]

	sh.mu.RLock()
	p, ok := sh.paths[s]
	sh.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := ParsePath(s)
	if err != nil {
		return nil, err
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if existing, ok := sh.paths[s]; ok {
		return existing, nil
	}
	if sh.paths == nil {
		sh.paths = map[string]*MemberPath{}
	}
	sh.paths[s] = p
	return p, nil
}

func (c *pathCache) len() int {
	n := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.RLock()
		n += len(sh.paths)
		sh.mu.RUnlock()
	}
	return n
}
