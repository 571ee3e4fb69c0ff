package vir

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotPrefix is returned when a prefix substitution is requested
	// with a prefix the place does not start with.
	ErrNotPrefix = errors.New("not a prefix of the place")
	// ErrNoPredicate is returned when a place's type is not guarded by a predicate.
	ErrNoPredicate = errors.New("type has no associated predicate")
)

// ProjectionKind identifies one step in a place path.
type ProjectionKind int

const (
	_ ProjectionKind = iota
	ProjField
	ProjDeref
	ProjIndex
	ProjVariant
)

// Projection is one step from a place to a sub-location.
type Projection struct {
	Kind ProjectionKind
	// Name is the field name, the index expression text or the variant name.
	// It is empty for dereferences.
	Name string
	// Type is the type of the location the projection leads to.
	Type Type
}

func (p Projection) equal(other Projection) bool {
	return p.Kind == other.Kind && p.Name == other.Name
}

func (p Projection) String() string {
	switch p.Kind {
	case ProjField:
		return "." + p.Name
	case ProjDeref:
		return ".*"
	case ProjIndex:
		return "[" + p.Name + "]"
	case ProjVariant:
		return ".@" + p.Name
	default:
		return ".?"
	}
}

// Place is a syntactic path to a storage location: a root variable followed
// by projections. Places are values; every operation returns a fresh place
// and never aliases the receiver's projection slice.
type Place struct {
	Base  LocalVar
	projs []Projection
}

// NewPlace returns the place denoting the local variable itself.
func NewPlace(base LocalVar) Place {
	return Place{Base: base}
}

func (p Place) extend(proj Projection) Place {
	projs := make([]Projection, len(p.projs), len(p.projs)+1)
	copy(projs, p.projs)
	return Place{Base: p.Base, projs: append(projs, proj)}
}

// Field returns p.name.
func (p Place) Field(name string, typ Type) Place {
	return p.extend(Projection{Kind: ProjField, Name: name, Type: typ})
}

// Deref returns *p.
func (p Place) Deref(typ Type) Place {
	return p.extend(Projection{Kind: ProjDeref, Type: typ})
}

// Index returns p[index].
func (p Place) Index(index string, typ Type) Place {
	return p.extend(Projection{Kind: ProjIndex, Name: index, Type: typ})
}

// Variant returns p downcast to the named enum variant.
func (p Place) Variant(name string, typ Type) Place {
	return p.extend(Projection{Kind: ProjVariant, Name: name, Type: typ})
}

// Projections returns a copy of the projection sequence.
func (p Place) Projections() []Projection {
	out := make([]Projection, len(p.projs))
	copy(out, p.projs)
	return out
}

// Len returns the number of projections.
func (p Place) Len() int { return len(p.projs) }

// IsLocal reports whether the place is a bare local variable.
func (p Place) IsLocal() bool { return len(p.projs) == 0 }

// Type returns the static type of the location.
func (p Place) Type() Type {
	if len(p.projs) == 0 {
		return p.Base.Type
	}
	return p.projs[len(p.projs)-1].Type
}

// Equal reports structural equality of root and projection sequence.
func (p Place) Equal(other Place) bool {
	if p.Base.Name != other.Base.Name || len(p.projs) != len(other.projs) {
		return false
	}
	for i := range p.projs {
		if !p.projs[i].equal(other.projs[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix's projections lead p's projections.
// Every place is a prefix of itself.
func (p Place) HasPrefix(prefix Place) bool {
	return IsPrefix(prefix, p)
}

// HasStrictPrefix is HasPrefix excluding equality.
func (p Place) HasStrictPrefix(prefix Place) bool {
	return len(prefix.projs) < len(p.projs) && IsPrefix(prefix, p)
}

// IsPrefix reports whether a is a prefix of b.
func IsPrefix(a, b Place) bool {
	if a.Base.Name != b.Base.Name || len(a.projs) > len(b.projs) {
		return false
	}
	for i := range a.projs {
		if !a.projs[i].equal(b.projs[i]) {
			return false
		}
	}
	return true
}

// ReplacePrefix substitutes oldPrefix with newPrefix at the root of p.
// The projections of p beyond oldPrefix are preserved.
func (p Place) ReplacePrefix(oldPrefix, newPrefix Place) (Place, error) {
	if !IsPrefix(oldPrefix, p) {
		return Place{}, fmt.Errorf("replace %s in %s: %w", oldPrefix, p, ErrNotPrefix)
	}
	suffix := p.projs[len(oldPrefix.projs):]
	if len(newPrefix.projs)+len(suffix) == 0 {
		return NewPlace(newPrefix.Base), nil
	}
	projs := make([]Projection, 0, len(newPrefix.projs)+len(suffix))
	projs = append(projs, newPrefix.projs...)
	projs = append(projs, suffix...)
	return Place{Base: newPrefix.Base, projs: projs}, nil
}

// TypedRefName returns the name of the predicate guarding the place's type.
func (p Place) TypedRefName() (string, error) {
	typ := p.Type()
	if typ.Kind != TypeRef || typ.Name == "" {
		return "", fmt.Errorf("place %s of type %s: %w", p, typ, ErrNoPredicate)
	}
	return typ.Name, nil
}

func (p Place) String() string {
	var sb strings.Builder
	sb.WriteString(p.Base.Name)
	for _, proj := range p.projs {
		sb.WriteString(proj.String())
	}
	return sb.String()
}
