package foldunfold

import (
	"github.com/gnolang/permcheck/internal/perm"
	"github.com/gnolang/permcheck/internal/vir"
)

// RequiredStmtPermissions returns what the statement itself requires. Only
// obtain propagates the requirements of its expression; the other kinds are
// handled by the reconciliation pass through their effect on the state.
func RequiredStmtPermissions(s vir.Stmt, preds vir.PredicateTable) (perm.Set, error) {
	if o, ok := s.(vir.Obtain); ok {
		return RequiredPermissions(o.Expr, preds)
	}
	return perm.NewSet(), nil
}

// GrantedStmtPermissions returns the permissions a statement makes
// available to the statements after it.
func GrantedStmtPermissions(s vir.Stmt, preds vir.PredicateTable) (perm.Set, error) {
	switch s := s.(type) {
	case vir.Inhale:
		return AccessPlaces(s.Expr, preds)
	case vir.Fold:
		place, _, err := newCalculus(preds).stmtPredicate(s.Pred, s.Args)
		if err != nil {
			return perm.Set{}, err
		}
		return perm.NewSet(perm.PredOf(place)), nil
	case vir.Unfold:
		place, pred, err := newCalculus(preds).stmtPredicate(s.Pred, s.Args)
		if err != nil {
			return perm.Set{}, err
		}
		return Instantiate(pred, place)
	case vir.New:
		out := perm.NewSet()
		for _, p := range s.FieldPlaces() {
			out = out.Insert(perm.AccOf(p))
		}
		return out, nil
	default:
		return perm.NewSet(), nil
	}
}

// RequiredSequence returns the requirements of a statement sequence that
// the sequence does not satisfy itself: each statement's requirements minus
// everything granted by the statements before it.
func RequiredSequence(stmts []vir.Stmt, preds vir.PredicateTable) (perm.Set, error) {
	required, granted := perm.NewSet(), perm.NewSet()
	for _, s := range stmts {
		req, err := RequiredStmtPermissions(s, preds)
		if err != nil {
			return perm.Set{}, err
		}
		required = required.Union(req.Difference(granted))

		g, err := GrantedStmtPermissions(s, preds)
		if err != nil {
			return perm.Set{}, err
		}
		granted = granted.Union(g)
	}
	return required, nil
}

// stmtPredicate resolves the place and declaration of a fold or unfold
// statement. The declaration must be the one guarding the place's type.
func (c calculus) stmtPredicate(name string, args []vir.Expr) (vir.Place, *vir.Predicate, error) {
	access := vir.PredicateAccess{Name: name, Args: args}
	if len(args) != 1 {
		return vir.Place{}, nil, internalf(access, nil, "%s expects one argument, got %d", name, len(args))
	}
	place, ok := vir.AsPlace(args[0])
	if !ok {
		return vir.Place{}, nil, internalf(access, nil, "predicate argument is not a place")
	}
	pred, ok := c.preds.Lookup(name)
	if !ok {
		return vir.Place{}, nil, internalf(access, nil, "unknown predicate %s", name)
	}
	if typed, err := place.TypedRefName(); err == nil && typed != name {
		return vir.Place{}, nil, internalf(access, nil, "predicate %s does not guard %s of type %s", name, place, place.Type())
	}
	return place, pred, nil
}
