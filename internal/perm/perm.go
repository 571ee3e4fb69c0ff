// Package perm models the permissions tracked by the fold/unfold analysis
// and the immutable sets they are collected in.
package perm

import (
	"fmt"

	"github.com/gnolang/permcheck/internal/vir"
)

// Kind tags a permission.
type Kind int

const (
	// Acc is plain access to a heap location.
	Acc Kind = iota
	// Pred is a folded predicate instance rooted at a place.
	Pred
)

func (k Kind) String() string {
	switch k {
	case Acc:
		return "acc"
	case Pred:
		return "pred"
	default:
		return "?"
	}
}

// Permission is Acc(place) or Pred(place).
type Permission struct {
	Kind  Kind
	Place vir.Place
}

// AccOf returns Acc(p).
func AccOf(p vir.Place) Permission { return Permission{Kind: Acc, Place: p} }

// PredOf returns Pred(p).
func PredOf(p vir.Place) Permission { return Permission{Kind: Pred, Place: p} }

// Key identifies the permission structurally.
func (p Permission) Key() string {
	return p.Kind.String() + ":" + p.Place.String()
}

// Equal reports whether both permissions have the same kind and place.
func (p Permission) Equal(other Permission) bool {
	return p.Kind == other.Kind && p.Place.Equal(other.Place)
}

// Map applies f to the place of the permission, keeping its kind.
func (p Permission) Map(f func(vir.Place) (vir.Place, error)) (Permission, error) {
	place, err := f(p.Place)
	if err != nil {
		return Permission{}, err
	}
	return Permission{Kind: p.Kind, Place: place}, nil
}

func (p Permission) String() string {
	return fmt.Sprintf("%s(%s)", p.Kind, p.Place)
}

// Less orders permissions by place depth, then place text, then kind, so
// that shallow permissions and plain accesses come first.
func Less(a, b Permission) bool {
	if a.Place.Len() != b.Place.Len() {
		return a.Place.Len() < b.Place.Len()
	}
	as, bs := a.Place.String(), b.Place.String()
	if as != bs {
		return as < bs
	}
	return a.Kind < b.Kind
}
