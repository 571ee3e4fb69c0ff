package foldunfold

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/gnolang/permcheck/internal/perm"
	"github.com/gnolang/permcheck/internal/vir"
)

// maxSearchDepth bounds the nesting of fold/unfold steps one obtain may
// take. Recursive predicates would otherwise let the search unfold forever.
const maxSearchDepth = 32

var errSearchDepth = errors.New("fold/unfold search depth exceeded")

// folder tracks the held permissions along one path and records the
// operations it inserts.
type folder struct {
	c      calculus
	held   perm.Set
	ops    []Op
	logger *zap.Logger
}

func newFolder(c calculus, held perm.Set, logger *zap.Logger) *folder {
	return &folder{c: c, held: held, logger: logger}
}

func (f *folder) clone() *folder {
	ops := make([]Op, len(f.ops))
	copy(ops, f.ops)
	return &folder{c: f.c, held: f.held, ops: ops, logger: f.logger}
}

// takeOps returns the operations recorded so far and resets the log.
func (f *folder) takeOps() []Op {
	ops := f.ops
	f.ops = nil
	return ops
}

func (f *folder) record(op Op) {
	f.ops = append(f.ops, op)
	f.logger.Debug("insert operation", zap.Stringer("op", op))
}

// holds reports whether p is available. Root places are always accessible.
func (f *folder) holds(p perm.Permission) bool {
	if p.Kind == perm.Acc && p.Place.IsLocal() {
		return true
	}
	return f.held.Contains(p)
}

// unfold replaces Pred(place) by its contained permissions.
func (f *folder) unfold(place vir.Place, record bool) error {
	pred, err := f.c.predicateFor(place, vir.PlaceExpr{Place: place})
	if err != nil {
		return err
	}
	if pred.IsAbstract() {
		return &PermissionError{Perm: perm.PredOf(place), Reason: "predicate " + pred.Name + " is abstract and cannot be unfolded"}
	}
	contained, err := Instantiate(pred, place)
	if err != nil {
		return err
	}
	f.held = f.held.Remove(perm.PredOf(place)).Union(contained)
	if record {
		f.record(Op{Kind: OpUnfold, Perm: perm.PredOf(place), Pred: pred.Name})
	}
	return nil
}

// fold replaces the contained permissions of place by Pred(place). Every
// contained permission must be held.
func (f *folder) fold(place vir.Place, record bool) error {
	pred, err := f.c.predicateFor(place, vir.PlaceExpr{Place: place})
	if err != nil {
		return err
	}
	if pred.IsAbstract() {
		return &PermissionError{Perm: perm.PredOf(place), Reason: "predicate " + pred.Name + " is abstract and cannot be folded"}
	}
	contained, err := Instantiate(pred, place)
	if err != nil {
		return err
	}
	for _, p := range contained.Slice() {
		if !f.holds(p) {
			return &PermissionError{Perm: p, Reason: "needed to fold " + pred.Name + "(" + place.String() + ")"}
		}
	}
	f.held = f.held.Difference(contained).Insert(perm.PredOf(place))
	if record {
		f.record(Op{Kind: OpFold, Perm: perm.PredOf(place), Pred: pred.Name})
	}
	return nil
}

// obtain makes want held, inserting fold and unfold operations. On failure
// the state and the operation log are left as they were.
func (f *folder) obtain(want perm.Permission) error {
	held, n := f.held, len(f.ops)
	if err := f.search(want, 0); err != nil {
		f.held, f.ops = held, f.ops[:n]
		return err
	}
	return nil
}

func (f *folder) obtainAll(wants perm.Set) error {
	for _, w := range wants.Slice() {
		if err := f.obtain(w); err != nil {
			return err
		}
	}
	return nil
}

func (f *folder) search(want perm.Permission, depth int) error {
	if depth > maxSearchDepth {
		return &PermissionError{Perm: want, Reason: errSearchDepth.Error()}
	}
	if f.holds(want) {
		return nil
	}

	// The deepest folded instance above the wanted place has to be opened.
	if outer, ok := f.deepestEnclosingPred(want.Place); ok {
		if err := f.unfold(outer, true); err != nil {
			return err
		}
		return f.search(want, depth+1)
	}

	if want.Kind == perm.Pred && f.holdsUnder(want.Place) {
		pred, err := f.c.predicateFor(want.Place, vir.PlaceExpr{Place: want.Place})
		if err != nil {
			return err
		}
		if pred.IsAbstract() {
			return &PermissionError{Perm: want, Reason: "predicate " + pred.Name + " is abstract and cannot be folded"}
		}
		contained, err := Instantiate(pred, want.Place)
		if err != nil {
			return err
		}
		for _, p := range accFirst(contained) {
			if err := f.search(p, depth+1); err != nil {
				return err
			}
		}
		return f.fold(want.Place, true)
	}

	return &PermissionError{Perm: want, Reason: "not held and not derivable by fold or unfold"}
}

// deepestEnclosingPred returns the deepest held Pred(p) with p a strict
// prefix of place.
func (f *folder) deepestEnclosingPred(place vir.Place) (vir.Place, bool) {
	var (
		best  vir.Place
		found bool
	)
	for _, p := range f.held.Slice() {
		if p.Kind != perm.Pred || !place.HasStrictPrefix(p.Place) {
			continue
		}
		if !found || p.Place.Len() > best.Len() {
			best, found = p.Place, true
		}
	}
	return best, found
}

// holdsUnder reports whether anything at or under place is held.
func (f *folder) holdsUnder(place vir.Place) bool {
	for _, p := range f.held.Slice() {
		if p.Place.HasPrefix(place) {
			return true
		}
	}
	return false
}

// forget drops what a write to place invalidates: every permission under
// place and the predicate instance rooted at it. Acc(place) is kept.
func (f *folder) forget(place vir.Place) {
	f.held = f.held.Difference(f.held.Under(place)).Remove(perm.PredOf(place))
}

// accFirst orders a set for folding: plain accesses before predicates,
// each group in Less order.
func accFirst(s perm.Set) []perm.Permission {
	out := s.Slice()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Kind == perm.Acc && out[j].Kind == perm.Pred
	})
	return out
}
