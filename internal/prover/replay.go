package prover

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gnolang/permcheck/internal/analysis/cfg"
	"github.com/gnolang/permcheck/internal/foldunfold"
	"github.com/gnolang/permcheck/internal/perm"
	"github.com/gnolang/permcheck/internal/vir"
)

// Replayer re-executes the annotated procedure on permission sets and
// rejects any operation or statement whose permissions are not held
// without further folding or unfolding. It also checks that every edge
// delivers exactly the in-state its target was analysed with.
type Replayer struct {
	preds  vir.PredicateTable
	logger *zap.Logger
}

var _ Prover = (*Replayer)(nil)

func NewReplayer(preds vir.PredicateTable, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{preds: preds, logger: logger}
}

func (r *Replayer) Check(ctx context.Context, res *foldunfold.Result) ([]Verdict, error) {
	proc := res.Procedure
	var verdicts []Verdict

	out := make(map[cfg.BlockID]perm.Set)
	for _, ab := range res.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := ab.Block.ID
		in, completed := res.In[id], res.Out[id]
		if in == nil || completed == nil {
			// Unreachable, or the analysis already reported the failure.
			continue
		}
		held, vs := r.replayBlock(proc.Name, ab, in.Held)
		verdicts = append(verdicts, vs...)
		if held != nil {
			out[id] = *held
		}
	}

	for _, e := range proc.Edges() {
		held, ok := out[e.From]
		target := res.In[e.To]
		if !ok || target == nil {
			continue
		}
		verdicts = append(verdicts, r.checkEdge(res, e, held, target.Held))
	}
	if entry := res.In[proc.Entry]; entry != nil && !entry.Held.IsEmpty() {
		verdicts = append(verdicts, Verdict{
			Procedure: proc.Name,
			Block:     proc.Block(proc.Entry).Label,
			Subject:   "entry",
			Reason:    fmt.Sprintf("entry state %s is not empty", entry),
		})
	}

	r.logger.Debug("replayed procedure",
		zap.String("procedure", proc.Name),
		zap.Int("verdicts", len(verdicts)),
		zap.Int("rejected", len(Rejected(verdicts))))
	return verdicts, nil
}

// replayBlock returns the out-state, or nil if a statement was rejected.
func (r *Replayer) replayBlock(procName string, ab *foldunfold.AnnotatedBlock, held perm.Set) (*perm.Set, []Verdict) {
	var verdicts []Verdict
	st := &replayState{preds: r.preds, held: held}
	for _, entry := range ab.Entries {
		v := Verdict{
			Procedure: procName,
			Block:     ab.Block.Label,
			Subject:   entry.Stmt.String(),
			Position:  entry.Stmt.Pos(),
			OK:        true,
		}
		err := st.applyOps(entry.Ops)
		if err == nil {
			err = st.applyStmt(entry.Stmt)
		}
		if err != nil {
			v.OK, v.Reason = false, err.Error()
			return nil, append(verdicts, v)
		}
		verdicts = append(verdicts, v)
	}
	return &st.held, verdicts
}

func (r *Replayer) checkEdge(res *foldunfold.Result, e cfg.Edge, held, want perm.Set) Verdict {
	proc := res.Procedure
	v := Verdict{
		Procedure: proc.Name,
		Block:     proc.Block(e.From).Label,
		Subject:   "goto " + proc.Block(e.To).Label,
		OK:        true,
	}
	st := &replayState{preds: r.preds, held: held}
	if err := st.applyOps(res.EdgeOps[e]); err != nil {
		v.OK, v.Reason = false, err.Error()
		return v
	}
	if !st.held.Equal(want) {
		v.OK = false
		v.Reason = fmt.Sprintf("edge delivers %s but %s expects %s", st.held, proc.Block(e.To).Label, want)
	}
	return v
}

type replayState struct {
	preds vir.PredicateTable
	held  perm.Set
}

func (s *replayState) holds(p perm.Permission) bool {
	return (p.Kind == perm.Acc && p.Place.IsLocal()) || s.held.Contains(p)
}

func (s *replayState) require(p perm.Permission) error {
	if !s.holds(p) {
		return fmt.Errorf("%s is not held", p)
	}
	return nil
}

func (s *replayState) requireAll(ps perm.Set) error {
	for _, p := range ps.Slice() {
		if err := s.require(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *replayState) contained(place vir.Place) (perm.Set, error) {
	name, err := place.TypedRefName()
	if err != nil {
		return perm.Set{}, err
	}
	pred, ok := s.preds.Lookup(name)
	if !ok {
		return perm.Set{}, fmt.Errorf("unknown predicate %s", name)
	}
	if pred.IsAbstract() {
		return perm.Set{}, fmt.Errorf("predicate %s is abstract", name)
	}
	return foldunfold.Instantiate(pred, place)
}

func (s *replayState) fold(place vir.Place) error {
	contained, err := s.contained(place)
	if err != nil {
		return err
	}
	if err := s.requireAll(contained); err != nil {
		return fmt.Errorf("fold %s: %w", place, err)
	}
	s.held = s.held.Difference(contained).Insert(perm.PredOf(place))
	return nil
}

func (s *replayState) unfold(place vir.Place) error {
	if err := s.require(perm.PredOf(place)); err != nil {
		return fmt.Errorf("unfold %s: %w", place, err)
	}
	contained, err := s.contained(place)
	if err != nil {
		return err
	}
	s.held = s.held.Remove(perm.PredOf(place)).Union(contained)
	return nil
}

func (s *replayState) forget(place vir.Place) {
	s.held = s.held.Difference(s.held.Under(place)).Remove(perm.PredOf(place))
}

func (s *replayState) applyOps(ops []foldunfold.Op) error {
	for _, op := range ops {
		var err error
		switch op.Kind {
		case foldunfold.OpFold:
			err = s.fold(op.Perm.Place)
		case foldunfold.OpUnfold:
			err = s.unfold(op.Perm.Place)
		case foldunfold.OpExhale:
			if err = s.require(op.Perm); err == nil {
				s.held = s.held.Remove(op.Perm)
			}
		case foldunfold.OpInhale:
			s.held = s.held.Insert(op.Perm)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (s *replayState) applyStmt(stmt vir.Stmt) error {
	switch stmt := stmt.(type) {
	case vir.Obtain:
		reqs, err := foldunfold.RequiredStmtPermissions(stmt, s.preds)
		if err != nil {
			return err
		}
		return s.requireAll(reqs)
	case vir.Exhale:
		acc, err := foldunfold.AccessPlaces(stmt.Expr, s.preds)
		if err != nil {
			return err
		}
		if err := s.requireAll(acc); err != nil {
			return err
		}
		s.held = s.held.Difference(acc)
	case vir.Inhale:
		acc, err := foldunfold.AccessPlaces(stmt.Expr, s.preds)
		if err != nil {
			return err
		}
		s.held = s.held.Union(acc)
	case vir.Fold:
		if p, ok := stmtPlace(stmt.Args); ok {
			return s.fold(p)
		}
		return fmt.Errorf("fold argument is not a place")
	case vir.Unfold:
		if p, ok := stmtPlace(stmt.Args); ok {
			return s.unfold(p)
		}
		return fmt.Errorf("unfold argument is not a place")
	case vir.Assign:
		if err := s.require(perm.AccOf(stmt.Target)); err != nil {
			return err
		}
		s.forget(stmt.Target)
	case vir.New:
		s.forget(vir.NewPlace(stmt.Target))
		for _, p := range stmt.FieldPlaces() {
			s.held = s.held.Insert(perm.AccOf(p))
		}
	case vir.MethodCall:
		for _, t := range stmt.Targets {
			s.forget(vir.NewPlace(t))
		}
	}
	return nil
}

func stmtPlace(args []vir.Expr) (vir.Place, bool) {
	if len(args) != 1 {
		return vir.Place{}, false
	}
	return vir.AsPlace(args[0])
}
