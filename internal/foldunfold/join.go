package foldunfold

import (
	"errors"

	"go.uber.org/zap"

	"github.com/gnolang/permcheck/internal/analysis/lattice"
	"github.com/gnolang/permcheck/internal/perm"
	"github.com/gnolang/permcheck/internal/vir"
)

// join reconciles the states reaching a block. Predicates held folded on
// some edges and unfolded on others are brought to the majority form (ties
// fold); edges that cannot reach that form keep their own and the
// intersection drops the disagreement. It returns the joined permissions
// and the operations each edge needs to arrive there.
func join(incoming []*folder, logger *zap.Logger) (perm.Set, [][]Op, error) {
	edges := make([]*folder, len(incoming))
	for i, f := range incoming {
		edges[i] = f.clone()
		edges[i].ops = nil
	}

	decided := make(map[string]bool)
	for {
		place, ok := nextConflict(edges, decided)
		if !ok {
			break
		}
		decided[perm.PredOf(place).Key()] = true

		var folded, unfolded []int
		for i, e := range edges {
			switch {
			case e.held.Contains(perm.PredOf(place)):
				folded = append(folded, i)
			case !e.held.Under(place).IsEmpty():
				unfolded = append(unfolded, i)
			}
		}

		if len(folded) >= len(unfolded) {
			logger.Debug("join folds", zap.Stringer("place", place),
				zap.Int("folded", len(folded)), zap.Int("unfolded", len(unfolded)))
			for _, i := range unfolded {
				if err := edges[i].obtain(perm.PredOf(place)); err != nil && !isPermissionError(err) {
					return perm.Set{}, nil, err
				}
			}
			continue
		}

		logger.Debug("join unfolds", zap.Stringer("place", place),
			zap.Int("folded", len(folded)), zap.Int("unfolded", len(unfolded)))
		for _, i := range folded {
			if err := edges[i].unfold(place, true); err != nil && !isPermissionError(err) {
				return perm.Set{}, nil, err
			}
		}
	}

	states := make([]*lattice.State, len(edges))
	for i, e := range edges {
		states[i] = lattice.NewState(e.held)
	}
	joined := lattice.MeetAll(states...)
	if lattice.IsBottom(joined) {
		return perm.Set{}, nil, internalf(nil, nil, "join over no reachable edge")
	}
	target := joined.Held

	ops := make([][]Op, len(edges))
	for i, e := range edges {
		for _, p := range e.held.Difference(target).Slice() {
			e.record(predOp(OpExhale, p))
		}
		e.held = target
		ops[i] = e.takeOps()
	}
	return target, ops, nil
}

// nextConflict returns the shallowest undecided place that one edge holds
// as Pred and another holds permissions strictly under.
func nextConflict(edges []*folder, decided map[string]bool) (vir.Place, bool) {
	union := perm.NewSet()
	for _, e := range edges {
		union = union.Union(e.held)
	}
	for _, p := range union.Slice() {
		if p.Kind != perm.Pred || decided[p.Key()] {
			continue
		}
		var folded, unfolded bool
		for _, e := range edges {
			if e.held.Contains(p) {
				folded = true
			} else if !e.held.Under(p.Place).IsEmpty() {
				unfolded = true
			}
		}
		if folded && unfolded {
			return p.Place, true
		}
	}
	return vir.Place{}, false
}

func isPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
