package vir

import (
	"errors"
	"fmt"
)

// ErrUnknownNode is returned by Walk for an expression type outside the grammar.
var ErrUnknownNode = errors.New("unknown expression node")

// Visitor computes a result for every expression node kind. Adding a node
// kind to the grammar adds a method here, so every analysis written as a
// Visitor stops compiling until it handles the new kind.
type Visitor[T any] interface {
	VisitConst(Const) (T, error)
	VisitPlace(PlaceExpr) (T, error)
	VisitPredicateAccess(PredicateAccess) (T, error)
	VisitOld(Old) (T, error)
	VisitLabelledOld(LabelledOld) (T, error)
	VisitUnaryOp(UnaryOp) (T, error)
	VisitBinOp(BinOp) (T, error)
	VisitUnfolding(Unfolding) (T, error)
	VisitFieldAccessPredicate(FieldAccessPredicate) (T, error)
	VisitPredicateAccessPredicate(PredicateAccessPredicate) (T, error)
	VisitMagicWand(MagicWand) (T, error)
}

// Walk dispatches e to the matching Visitor method.
func Walk[T any](v Visitor[T], e Expr) (T, error) {
	switch x := e.(type) {
	case Const:
		return v.VisitConst(x)
	case PlaceExpr:
		return v.VisitPlace(x)
	case PredicateAccess:
		return v.VisitPredicateAccess(x)
	case Old:
		return v.VisitOld(x)
	case LabelledOld:
		return v.VisitLabelledOld(x)
	case UnaryOp:
		return v.VisitUnaryOp(x)
	case BinOp:
		return v.VisitBinOp(x)
	case Unfolding:
		return v.VisitUnfolding(x)
	case FieldAccessPredicate:
		return v.VisitFieldAccessPredicate(x)
	case PredicateAccessPredicate:
		return v.VisitPredicateAccessPredicate(x)
	case MagicWand:
		return v.VisitMagicWand(x)
	default:
		var zero T
		return zero, fmt.Errorf("%w: %T", ErrUnknownNode, e)
	}
}
