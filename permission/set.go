package permission

import (
	"sort"
	"strings"
)

// Set is an unordered collection of role names or permission codes.
// The zero value is an empty set ready for reads; use [NewSet] or [Set.Add]
// before writing.
type Set map[string]struct{}

// NewSet builds a set from values, dropping empty and whitespace-only entries.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v after trimming surrounding whitespace.
func (s Set) Add(v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	s[v] = struct{}{}
}

// Has reports membership.
func (s Set) Has(v string) bool {
	if s == nil {
		return false
	}
	_, ok := s[v]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// Union adds every member of other into s.
func (s Set) Union(other Set) {
	for v := range other {
		s[v] = struct{}{}
	}
}

// HasAny is true iff s intersects values. It is false for an empty s or
// an empty values list.
func (s Set) HasAny(values ...string) bool {
	if len(s) == 0 {
		return false
	}
	for _, v := range values {
		if s.Has(v) {
			return true
		}
	}
	return false
}

// HasAll is true iff s is a superset of values. An empty s never
// satisfies it, and neither does an empty values list.
func (s Set) HasAll(values ...string) bool {
	if len(s) == 0 || len(values) == 0 {
		return false
	}
	for _, v := range values {
		if !s.Has(v) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order. Claims and API payloads use
// it so token contents are deterministic.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}
