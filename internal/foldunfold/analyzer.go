// Package foldunfold computes the permissions expressions and statements
// need and inserts the fold and unfold operations that make every statement
// of a procedure well-permissioned.
package foldunfold

import (
	"errors"
	"fmt"
	"go/token"

	"go.uber.org/zap"

	"github.com/gnolang/permcheck/internal/analysis/cfg"
	"github.com/gnolang/permcheck/internal/analysis/lattice"
	"github.com/gnolang/permcheck/internal/perm"
	"github.com/gnolang/permcheck/internal/vir"
)

// DefaultMaxLoopIterations bounds the fixed-point passes over a loop.
const DefaultMaxLoopIterations = 8

// Analyzer runs the fold/unfold analysis over procedures sharing one
// predicate table. It keeps no state between procedures.
type Analyzer struct {
	preds   vir.PredicateTable
	logger  *zap.Logger
	maxIter int
}

type Option func(*Analyzer)

// WithLogger sets the debug logger. A nil logger discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMaxLoopIterations bounds the passes spent waiting for loop states to
// stabilize. Values below one are ignored.
func WithMaxLoopIterations(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxIter = n
		}
	}
}

func NewAnalyzer(preds vir.PredicateTable, opts ...Option) *Analyzer {
	a := &Analyzer{
		preds:   preds,
		logger:  zap.NewNop(),
		maxIter: DefaultMaxLoopIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze annotates proc. Permission failures are collected in the result;
// an *UnsupportedError or *InternalError aborts the procedure.
func (a *Analyzer) Analyze(proc *cfg.Procedure) (*Result, error) {
	logger := a.logger.With(zap.String("procedure", proc.Name))
	run := &run{
		a:      a,
		c:      newCalculus(a.preds),
		proc:   proc,
		order:  proc.ForwardOrder(),
		back:   proc.BackEdges(),
		logger: logger,
	}

	var last *Result
	prev := make(map[cfg.BlockID]*lattice.State)
	for pass := 1; ; pass++ {
		res, err := run.pass(prev)
		if err != nil {
			return nil, err
		}
		res.Passes = pass
		logger.Debug("fixed point pass", zap.Int("pass", pass))

		if len(run.back) == 0 || (pass > 1 && sameStates(prev, res.Out)) {
			return res, nil
		}
		// The first pass only seeds the back-edge states.
		if pass > a.maxIter {
			run.reportUnstable(res, last)
			return res, nil
		}
		last, prev = res, res.Out
	}
}

type run struct {
	a      *Analyzer
	c      calculus
	proc   *cfg.Procedure
	order  []cfg.BlockID
	back   map[cfg.Edge]bool
	logger *zap.Logger
}

// pass processes every reachable block once in forward order. Back-edges
// carry the out-states of the previous pass.
func (r *run) pass(prevOut map[cfg.BlockID]*lattice.State) (*Result, error) {
	res := newResult(r.proc)
	for _, b := range r.proc.Blocks {
		res.Blocks[b.ID] = plainBlock(b)
	}

	for _, id := range r.order {
		block := r.proc.Block(id)

		var (
			incoming []*folder
			edges    []cfg.Edge
		)
		if id == r.proc.Entry {
			incoming = append(incoming, newFolder(r.c, perm.NewSet(), r.logger))
			edges = append(edges, cfg.Edge{From: -1, To: id})
		}
		for _, pred := range r.proc.Preds(id) {
			e := cfg.Edge{From: pred, To: id}
			state := res.Out[pred]
			if r.back[e] {
				state = prevOut[pred]
			}
			if lattice.IsBottom(state) {
				continue
			}
			incoming = append(incoming, newFolder(r.c, state.Held, r.logger))
			edges = append(edges, e)
		}
		if len(incoming) == 0 {
			continue
		}

		held := incoming[0].held
		if len(incoming) > 1 {
			target, ops, err := join(incoming, r.logger)
			if err != nil {
				return nil, err
			}
			held = target
			for i, e := range edges {
				if e.From >= 0 && len(ops[i]) > 0 {
					res.EdgeOps[e] = ops[i]
				}
			}
		}
		res.In[id] = lattice.NewState(held)

		out, err := r.block(res, block, held)
		if err != nil {
			return nil, err
		}
		if out != nil {
			res.Out[id] = out
		}
	}
	return res, nil
}

// block applies the statements of b starting from held. A permission
// failure ends the path and yields Bottom.
func (r *run) block(res *Result, b *cfg.Block, held perm.Set) (*lattice.State, error) {
	f := newFolder(r.c, held, r.logger.With(zap.String("block", b.Label)))
	ab := &AnnotatedBlock{Block: b}
	res.Blocks[b.ID] = ab

	failed := false
	for _, s := range b.Stmts {
		if failed {
			ab.Entries = append(ab.Entries, Entry{Stmt: s})
			continue
		}
		err := r.apply(f, s)
		ab.Entries = append(ab.Entries, Entry{Ops: f.takeOps(), Stmt: s})
		if err == nil {
			continue
		}
		var pe *PermissionError
		if !errors.As(err, &pe) {
			var ue *UnsupportedError
			if errors.As(err, &ue) && !ue.Position.IsValid() {
				ue.Position = s.Pos()
			}
			return nil, err
		}
		pe.Position = s.Pos()
		pe.Stmt = s.Kind()
		res.Failures = append(res.Failures, Failure{
			Kind:     MissingPermission,
			Block:    b.ID,
			Position: s.Pos(),
			Message:  pe.Error(),
			Err:      pe,
		})
		failed = true
	}
	if failed {
		return nil, nil
	}
	return lattice.NewState(f.held), nil
}

// apply performs the state effect of s, obtaining what it consumes first.
func (r *run) apply(f *folder, s vir.Stmt) error {
	switch s := s.(type) {
	case vir.Obtain:
		reqs, err := RequiredStmtPermissions(s, r.a.preds)
		if err != nil {
			return err
		}
		return obtainTogether(f, reqs)

	case vir.Exhale:
		acc, err := AccessPlaces(s.Expr, r.a.preds)
		if err != nil {
			return err
		}
		if err := obtainTogether(f, acc); err != nil {
			return err
		}
		f.held = f.held.Difference(acc)
		return nil

	case vir.Inhale:
		acc, err := AccessPlaces(s.Expr, r.a.preds)
		if err != nil {
			return err
		}
		f.held = f.held.Union(acc)
		return nil

	case vir.Fold:
		place, pred, err := r.c.stmtPredicate(s.Pred, s.Args)
		if err != nil {
			return err
		}
		contained, err := Instantiate(pred, place)
		if err != nil {
			return err
		}
		for _, p := range accFirst(contained) {
			if err := f.obtain(p); err != nil {
				return err
			}
		}
		return f.fold(place, false)

	case vir.Unfold:
		place, _, err := r.c.stmtPredicate(s.Pred, s.Args)
		if err != nil {
			return err
		}
		if err := f.obtain(perm.PredOf(place)); err != nil {
			return err
		}
		return f.unfold(place, false)

	case vir.Assign:
		if _, err := RequiredPermissions(s.Value, r.a.preds); err != nil {
			return err
		}
		if err := f.obtain(perm.AccOf(s.Target)); err != nil {
			return err
		}
		f.forget(s.Target)
		return nil

	case vir.New:
		f.forget(vir.NewPlace(s.Target))
		for _, p := range s.FieldPlaces() {
			f.held = f.held.Insert(perm.AccOf(p))
		}
		return nil

	case vir.MethodCall:
		for _, arg := range s.Args {
			if _, err := RequiredPermissions(arg, r.a.preds); err != nil {
				return err
			}
		}
		for _, t := range s.Targets {
			f.forget(vir.NewPlace(t))
		}
		return nil

	case vir.Assert:
		_, err := RequiredPermissions(s.Expr, r.a.preds)
		return err

	case vir.Comment, vir.Label:
		return nil

	default:
		return internalf(nil, nil, "unknown statement %T", s)
	}
}

// obtainTogether obtains every permission of perms and checks they are
// held at once: obtaining one may fold or unfold another away.
func obtainTogether(f *folder, perms perm.Set) error {
	if err := f.obtainAll(perms); err != nil {
		return err
	}
	for _, p := range perms.Slice() {
		if !f.holds(p) {
			return &PermissionError{Perm: p, Reason: "conflicts with another requirement of the same statement"}
		}
	}
	return nil
}

// reportUnstable adds a failure for every loop head whose in-state still
// changed in the last pass, or for every loop head if none did.
func (r *run) reportUnstable(res, last *Result) {
	heads := r.proc.LoopHeads()
	var unstable []*cfg.Block
	for _, b := range r.proc.Blocks {
		if heads[b.ID] && !lattice.StateEqual(res.In[b.ID], last.In[b.ID]) {
			unstable = append(unstable, b)
		}
	}
	if len(unstable) == 0 {
		for _, b := range r.proc.Blocks {
			if heads[b.ID] {
				unstable = append(unstable, b)
			}
		}
	}
	for _, b := range unstable {
		res.Failures = append(res.Failures, Failure{
			Kind:     LoopNotStable,
			Block:    b.ID,
			Position: firstPos(b),
			Message: fmt.Sprintf("permission state at loop head %s did not stabilize after %d iterations (last in-state %s)",
				b.Label, r.a.maxIter, res.In[b.ID]),
		})
	}
}

func firstPos(b *cfg.Block) (pos token.Position) {
	if len(b.Stmts) > 0 {
		pos = b.Stmts[0].Pos()
	}
	return pos
}

func plainBlock(b *cfg.Block) *AnnotatedBlock {
	ab := &AnnotatedBlock{Block: b}
	for _, s := range b.Stmts {
		ab.Entries = append(ab.Entries, Entry{Stmt: s})
	}
	return ab
}

func sameStates(a, b map[cfg.BlockID]*lattice.State) bool {
	if len(a) != len(b) {
		return false
	}
	for id, s := range a {
		if !lattice.StateEqual(s, b[id]) {
			return false
		}
	}
	return true
}
