package foldunfold

import (
	"strings"

	"github.com/gnolang/permcheck/internal/perm"
)

// OpKind is the kind of an operation inserted by the analysis.
type OpKind int

const (
	OpFold OpKind = iota
	OpUnfold
	OpExhale
	OpInhale
)

func (k OpKind) String() string {
	switch k {
	case OpFold:
		return "fold"
	case OpUnfold:
		return "unfold"
	case OpExhale:
		return "exhale"
	case OpInhale:
		return "inhale"
	default:
		return "op"
	}
}

// Op is a ghost operation on the permission state. Pred names the predicate
// for fold and unfold, and for exhale or inhale of a Pred permission.
type Op struct {
	Kind OpKind
	Perm perm.Permission
	Pred string
}

func (o Op) String() string {
	return o.Kind.String() + " " + o.target()
}

func (o Op) target() string {
	switch {
	case o.Perm.Kind == perm.Pred && o.Pred != "":
		return "acc(" + o.Pred + "(" + o.Perm.Place.String() + "))"
	case o.Perm.Kind == perm.Pred:
		return "acc(pred(" + o.Perm.Place.String() + "))"
	default:
		return "acc(" + o.Perm.Place.String() + ")"
	}
}

// predOp builds an operation on Pred(place), naming the predicate from the
// place's type when it can be resolved.
func predOp(kind OpKind, p perm.Permission) Op {
	op := Op{Kind: kind, Perm: p}
	if p.Kind == perm.Pred {
		if name, err := p.Place.TypedRefName(); err == nil {
			op.Pred = name
		}
	}
	return op
}

// joinOps renders operations separated by "; ".
func joinOps(ops []Op) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, "; ")
}
