// Package idmap implements uid/gid range mapping plus a symbolic-name
// lookup through the local name service (spec §3 "Ownership on the
// wire", feeding C9's metadata application). Generalized from teacher's
// internal/receiver/generatoruid.go (amRoot/inGroup group-membership
// cache, os.Lchown) to also cover --usermap/--groupmap range rules and
// cross-host name resolution.
package idmap

import (
	"os/user"
	"strconv"
	"strings"
)

// Rule is one (low..=high -> newID) range mapping, as produced by
// parsing a --usermap/--groupmap clause (spec §3 "id-map").
type Rule struct {
	Low, High int64
	NewID     int64
	// NewName, when non-empty, is resolved through the local name
	// service at apply time instead of using NewID directly (spec §6
	// NameResolver collaborator).
	NewName string
}

func (r Rule) matches(id int64) bool { return id >= r.Low && id <= r.High }

// Map is an ordered list of Rules; the first match wins, matching
// upstream's --usermap/--groupmap semantics.
type Map struct {
	rules    []Rule
	resolver NameResolver
}

// NameResolver is the thin collaborator interface for translating
// symbolic user/group names to/from numeric ids (spec §6).
type NameResolver interface {
	UIDByName(name string) (int64, bool)
	GIDByName(name string) (int64, bool)
	NameByUID(uid int64) (string, bool)
	NameByGID(gid int64) (string, bool)
}

// New builds a Map from parsed rules and a name resolver (nil uses
// osNameResolver).
func New(rules []Rule, resolver NameResolver) *Map {
	if resolver == nil {
		resolver = osNameResolver{}
	}
	return &Map{rules: rules, resolver: resolver}
}

// Apply returns the mapped id for an incoming uid/gid, or the original
// id unchanged if no rule matches.
func (m *Map) Apply(id int64, kind Kind) int64 {
	for _, r := range m.rules {
		if !r.matches(id) {
			continue
		}
		if r.NewName == "" {
			return r.NewID
		}
		switch kind {
		case KindUID:
			if v, ok := m.resolver.UIDByName(r.NewName); ok {
				return v
			}
		case KindGID:
			if v, ok := m.resolver.GIDByName(r.NewName); ok {
				return v
			}
		}
		return id
	}
	return id
}

// Kind distinguishes uid vs gid mapping, since the resolver's by-name
// lookups differ.
type Kind int

const (
	KindUID Kind = iota
	KindGID
)

// ParseMapClause parses one --usermap/--groupmap clause: a
// comma-separated list of "from:to" pairs, where from is a single
// numeric id or a "low-high" numeric range, and to is either a numeric
// id or a symbolic name. Segments whose from side is not numeric (for
// example a user name) are skipped.
func ParseMapClause(clause string) ([]Rule, error) {
	var rules []Rule
	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fromTo := strings.SplitN(part, ":", 2)
		if len(fromTo) != 2 {
			continue // malformed clause segment, ignored per upstream's lenient parsing
		}
		low, high, err := parseRange(fromTo[0])
		if err != nil {
			continue
		}
		rule := Rule{Low: low, High: high}
		if n, err := strconv.ParseInt(fromTo[1], 10, 64); err == nil {
			rule.NewID = n
		} else {
			rule.NewName = fromTo[1]
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseRange(spec string) (low, high int64, err error) {
	if idx := strings.IndexByte(spec, '-'); idx > 0 {
		lowV, errA := strconv.ParseInt(spec[:idx], 10, 64)
		highV, errB := strconv.ParseInt(spec[idx+1:], 10, 64)
		if errA == nil && errB == nil {
			return lowV, highV, nil
		}
	}
	v, err := strconv.ParseInt(spec, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return v, v, nil
}

// osNameResolver resolves names through the local os/user package, used
// whenever no cross-host resolver is configured.
type osNameResolver struct{}

func (osNameResolver) UIDByName(name string) (int64, bool) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(u.Uid, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (osNameResolver) GIDByName(name string) (int64, bool) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(g.Gid, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (osNameResolver) NameByUID(uid int64) (string, bool) {
	u, err := user.LookupId(strconv.FormatInt(uid, 10))
	if err != nil {
		return "", false
	}
	return u.Username, true
}

func (osNameResolver) NameByGID(gid int64) (string, bool) {
	g, err := user.LookupGroupId(strconv.FormatInt(gid, 10))
	if err != nil {
		return "", false
	}
	return g.Name, true
}
