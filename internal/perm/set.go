package perm

import (
	"sort"
	"strings"

	"github.com/gnolang/permcheck/internal/vir"
)

// Set is an immutable set of permissions. The zero value is the empty set.
// Every operation that changes membership returns a new set.
type Set struct {
	m map[string]Permission
}

// NewSet builds a set from the given permissions.
func NewSet(perms ...Permission) Set {
	m := make(map[string]Permission, len(perms))
	for _, p := range perms {
		m[p.Key()] = p
	}
	return Set{m: m}
}

// Len returns the number of permissions in s.
func (s Set) Len() int { return len(s.m) }

func (s Set) IsEmpty() bool { return len(s.m) == 0 }

func (s Set) Contains(p Permission) bool {
	_, ok := s.m[p.Key()]
	return ok
}

func (s Set) clone(extra int) map[string]Permission {
	m := make(map[string]Permission, len(s.m)+extra)
	for k, v := range s.m {
		m[k] = v
	}
	return m
}

// Insert returns s ∪ {perms...}.
func (s Set) Insert(perms ...Permission) Set {
	m := s.clone(len(perms))
	for _, p := range perms {
		m[p.Key()] = p
	}
	return Set{m: m}
}

// Remove returns s \ {perms...}.
func (s Set) Remove(perms ...Permission) Set {
	m := s.clone(0)
	for _, p := range perms {
		delete(m, p.Key())
	}
	return Set{m: m}
}

// Union returns s ∪ other.
func (s Set) Union(other Set) Set {
	m := s.clone(len(other.m))
	for k, v := range other.m {
		m[k] = v
	}
	return Set{m: m}
}

// Difference returns s \ other.
func (s Set) Difference(other Set) Set {
	m := make(map[string]Permission, len(s.m))
	for k, v := range s.m {
		if _, ok := other.m[k]; !ok {
			m[k] = v
		}
	}
	return Set{m: m}
}

// Intersect returns s ∩ other.
func (s Set) Intersect(other Set) Set {
	m := make(map[string]Permission)
	for k, v := range s.m {
		if _, ok := other.m[k]; ok {
			m[k] = v
		}
	}
	return Set{m: m}
}

// SubsetOf reports whether every permission of s is in other.
func (s Set) SubsetOf(other Set) bool {
	for k := range s.m {
		if _, ok := other.m[k]; !ok {
			return false
		}
	}
	return true
}

func (s Set) Equal(other Set) bool {
	return len(s.m) == len(other.m) && s.SubsetOf(other)
}

// Filter returns the permissions for which keep returns true.
func (s Set) Filter(keep func(Permission) bool) Set {
	m := make(map[string]Permission)
	for k, v := range s.m {
		if keep(v) {
			m[k] = v
		}
	}
	return Set{m: m}
}

// Under returns the permissions whose place has root as a strict prefix.
func (s Set) Under(root vir.Place) Set {
	return s.Filter(func(p Permission) bool {
		return p.Place.HasStrictPrefix(root)
	})
}

// Map applies f to every place and collects the results.
func (s Set) Map(f func(vir.Place) (vir.Place, error)) (Set, error) {
	m := make(map[string]Permission, len(s.m))
	for _, v := range s.m {
		mapped, err := v.Map(f)
		if err != nil {
			return Set{}, err
		}
		m[mapped.Key()] = mapped
	}
	return Set{m: m}, nil
}

// Slice returns the permissions in Less order.
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, len(s.m))
	for _, v := range s.m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

func (s Set) String() string {
	perms := s.Slice()
	parts := make([]string, len(perms))
	for i, p := range perms {
		parts[i] = p.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
