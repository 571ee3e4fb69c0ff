package foldunfold

import (
	"github.com/gnolang/permcheck/internal/perm"
	"github.com/gnolang/permcheck/internal/vir"
)

// calculus evaluates permission requirements against a predicate table.
// strict enables checking predicate names against the table; it is off
// while simulating a predicate body, which is analysed with an empty table.
type calculus struct {
	preds  vir.PredicateTable
	strict bool
}

func newCalculus(preds vir.PredicateTable) calculus {
	return calculus{preds: preds, strict: true}
}

func (c calculus) required(e vir.Expr) (perm.Set, error) {
	return vir.Walk[perm.Set](requiredVisitor{c}, e)
}

func (c calculus) access(e vir.Expr) (perm.Set, error) {
	return vir.Walk[perm.Set](accessVisitor{c}, e)
}

// RequiredPermissions returns the permissions e needs to be well-defined.
func RequiredPermissions(e vir.Expr, preds vir.PredicateTable) (perm.Set, error) {
	return newCalculus(preds).required(e)
}

// AccessPlaces returns the permissions e denotes as accessibility
// predicates, i.e. what inhaling e adds or exhaling e removes.
func AccessPlaces(e vir.Expr, preds vir.PredicateTable) (perm.Set, error) {
	return newCalculus(preds).access(e)
}

// GrantedPermissions returns the permissions evaluating e as an assertion
// makes available.
func GrantedPermissions(e vir.Expr, preds vir.PredicateTable) (perm.Set, error) {
	return AccessPlaces(e, preds)
}

// ContainedPlaces returns the permissions a predicate instance holds when
// unfolded, written against the predicate's self place. Only one level is
// simulated: the body is analysed with an empty predicate table, so nested
// instances stay folded and a body using unfolding is rejected.
func ContainedPlaces(pred *vir.Predicate) (perm.Set, error) {
	if pred.IsAbstract() {
		return perm.NewSet(), nil
	}
	c := calculus{preds: vir.PredicateTable{}, strict: false}
	return c.access(pred.Body)
}

// Instantiate returns the contained permissions of pred with its self place
// replaced by place.
func Instantiate(pred *vir.Predicate, place vir.Place) (perm.Set, error) {
	contained, err := ContainedPlaces(pred)
	if err != nil {
		return perm.Set{}, err
	}
	self := pred.SelfPlace()
	out, err := contained.Map(func(p vir.Place) (vir.Place, error) {
		return p.ReplacePrefix(self, place)
	})
	if err != nil {
		return perm.Set{}, internalf(pred.Body, err, "predicate %s body is not rooted at %s", pred.Name, self)
	}
	return out, nil
}

// predicateFor resolves the predicate guarding the type of place.
func (c calculus) predicateFor(place vir.Place, at vir.Expr) (*vir.Predicate, error) {
	name, err := place.TypedRefName()
	if err != nil {
		return nil, internalf(at, err, "cannot resolve predicate of %s", place)
	}
	pred, ok := c.preds.Lookup(name)
	if !ok {
		if !c.strict {
			return nil, internalf(at, nil, "predicate bodies must not contain unfolding expressions")
		}
		return nil, internalf(at, nil, "unknown predicate %s", name)
	}
	return pred, nil
}

// unfolded simulates the temporary unfold of an unfolding expression and
// returns the unfolded place with the permissions the unfold provides.
func (c calculus) unfolded(u vir.Unfolding) (vir.Place, perm.Set, error) {
	if len(u.Args) != 1 {
		return vir.Place{}, perm.Set{}, internalf(u, nil, "unfolding expects one argument, got %d", len(u.Args))
	}
	place, ok := vir.AsPlace(u.Args[0])
	if !ok {
		return vir.Place{}, perm.Set{}, internalf(u, nil, "unfolding argument is not a place")
	}
	pred, err := c.predicateFor(place, u)
	if err != nil {
		return vir.Place{}, perm.Set{}, err
	}
	contained, err := Instantiate(pred, place)
	if err != nil {
		return vir.Place{}, perm.Set{}, err
	}
	return place, contained, nil
}

type requiredVisitor struct {
	c calculus
}

func (requiredVisitor) VisitConst(vir.Const) (perm.Set, error) {
	return perm.NewSet(), nil
}

func (requiredVisitor) VisitPlace(e vir.PlaceExpr) (perm.Set, error) {
	return perm.NewSet(perm.AccOf(e.Place)), nil
}

func (v requiredVisitor) VisitPredicateAccess(e vir.PredicateAccess) (perm.Set, error) {
	if len(e.Args) != 1 {
		return perm.Set{}, internalf(e, nil, "predicate access expects one argument, got %d", len(e.Args))
	}
	place, ok := vir.AsOldPlace(e.Args[0])
	if !ok {
		return perm.Set{}, internalf(e, nil, "predicate access argument is not a place")
	}
	if v.c.strict {
		if _, ok := v.c.preds.Lookup(e.Name); !ok {
			return perm.Set{}, internalf(e, nil, "unknown predicate %s", e.Name)
		}
	}
	return perm.NewSet(perm.PredOf(place)), nil
}

func (v requiredVisitor) VisitOld(e vir.Old) (perm.Set, error) {
	return v.c.required(e.Expr)
}

func (v requiredVisitor) VisitLabelledOld(e vir.LabelledOld) (perm.Set, error) {
	return v.c.required(e.Expr)
}

func (v requiredVisitor) VisitUnaryOp(e vir.UnaryOp) (perm.Set, error) {
	return v.c.required(e.Expr)
}

func (v requiredVisitor) VisitBinOp(e vir.BinOp) (perm.Set, error) {
	left, err := v.c.required(e.Left)
	if err != nil {
		return perm.Set{}, err
	}
	right, err := v.c.required(e.Right)
	if err != nil {
		return perm.Set{}, err
	}
	return left.Union(right), nil
}

func (v requiredVisitor) VisitUnfolding(e vir.Unfolding) (perm.Set, error) {
	place, contained, err := v.c.unfolded(e)
	if err != nil {
		return perm.Set{}, err
	}
	body, err := v.c.required(e.Body)
	if err != nil {
		return perm.Set{}, err
	}
	// What the temporary unfold provides is discharged inside; the folded
	// instance is what the context must supply.
	return body.Difference(contained).Insert(perm.PredOf(place)), nil
}

func (v requiredVisitor) VisitFieldAccessPredicate(e vir.FieldAccessPredicate) (perm.Set, error) {
	return v.c.required(e.Expr)
}

func (v requiredVisitor) VisitPredicateAccessPredicate(e vir.PredicateAccessPredicate) (perm.Set, error) {
	return v.c.required(e.Expr)
}

func (requiredVisitor) VisitMagicWand(e vir.MagicWand) (perm.Set, error) {
	return perm.Set{}, &UnsupportedError{Construct: "magic wands", Expr: e.String()}
}

type accessVisitor struct {
	c calculus
}

func (accessVisitor) VisitConst(vir.Const) (perm.Set, error) {
	return perm.NewSet(), nil
}

func (accessVisitor) VisitPlace(vir.PlaceExpr) (perm.Set, error) {
	return perm.NewSet(), nil
}

func (accessVisitor) VisitPredicateAccess(vir.PredicateAccess) (perm.Set, error) {
	return perm.NewSet(), nil
}

func (accessVisitor) VisitOld(vir.Old) (perm.Set, error) {
	return perm.NewSet(), nil
}

func (accessVisitor) VisitLabelledOld(vir.LabelledOld) (perm.Set, error) {
	return perm.NewSet(), nil
}

func (v accessVisitor) VisitUnaryOp(e vir.UnaryOp) (perm.Set, error) {
	return v.c.access(e.Expr)
}

func (v accessVisitor) VisitBinOp(e vir.BinOp) (perm.Set, error) {
	left, err := v.c.access(e.Left)
	if err != nil {
		return perm.Set{}, err
	}
	right, err := v.c.access(e.Right)
	if err != nil {
		return perm.Set{}, err
	}
	return left.Union(right), nil
}

func (v accessVisitor) VisitUnfolding(e vir.Unfolding) (perm.Set, error) {
	_, contained, err := v.c.unfolded(e)
	if err != nil {
		return perm.Set{}, err
	}
	body, err := v.c.required(e.Body)
	if err != nil {
		return perm.Set{}, err
	}
	return body.Difference(contained), nil
}

func (v accessVisitor) VisitFieldAccessPredicate(e vir.FieldAccessPredicate) (perm.Set, error) {
	if !isAccessTarget(e.Expr) {
		return perm.Set{}, internalf(e, nil, "accessibility predicate must wrap a place")
	}
	return v.c.required(e.Expr)
}

func (v accessVisitor) VisitPredicateAccessPredicate(e vir.PredicateAccessPredicate) (perm.Set, error) {
	if !isAccessTarget(e.Expr) {
		return perm.Set{}, internalf(e, nil, "accessibility predicate must wrap a place")
	}
	return v.c.required(e.Expr)
}

func (accessVisitor) VisitMagicWand(e vir.MagicWand) (perm.Set, error) {
	return perm.Set{}, &UnsupportedError{Construct: "magic wands", Expr: e.String()}
}

// isAccessTarget accepts a place or a single-place predicate access, each
// optionally under old or labelled-old.
func isAccessTarget(e vir.Expr) bool {
	if _, ok := vir.AsOldPlace(e); ok {
		return true
	}
	var inner vir.Expr = e
	switch x := e.(type) {
	case vir.Old:
		inner = x.Expr
	case vir.LabelledOld:
		inner = x.Expr
	}
	access, ok := inner.(vir.PredicateAccess)
	if !ok || len(access.Args) != 1 {
		return false
	}
	_, ok = vir.AsOldPlace(access.Args[0])
	return ok
}
