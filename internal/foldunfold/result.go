package foldunfold

import (
	"fmt"
	"go/token"
	"io"
	"strings"

	"github.com/gnolang/permcheck/internal/analysis/cfg"
	"github.com/gnolang/permcheck/internal/analysis/lattice"
	"github.com/gnolang/permcheck/internal/vir"
)

// FailureKind classifies a recoverable verification failure.
type FailureKind int

const (
	MissingPermission FailureKind = iota
	LoopNotStable
)

func (k FailureKind) String() string {
	switch k {
	case MissingPermission:
		return "missing-permission"
	case LoopNotStable:
		return "loop-not-stable"
	default:
		return "unknown"
	}
}

// Failure is a verification failure tied to a program point. Err is set
// for MissingPermission.
type Failure struct {
	Kind     FailureKind
	Block    cfg.BlockID
	Position token.Position
	Message  string
	Err      *PermissionError
}

// Entry is a statement with the operations inserted before it.
type Entry struct {
	Ops  []Op
	Stmt vir.Stmt
}

// AnnotatedBlock is a block after operation insertion.
type AnnotatedBlock struct {
	Block   *cfg.Block
	Entries []Entry
}

// Result is the annotated procedure. Unreachable blocks and blocks after a
// failure on every path have Bottom in and out states.
type Result struct {
	Procedure *cfg.Procedure
	Blocks    []*AnnotatedBlock
	EdgeOps   map[cfg.Edge][]Op
	In        map[cfg.BlockID]*lattice.State
	Out       map[cfg.BlockID]*lattice.State
	Failures  []Failure
	Passes    int
}

func newResult(proc *cfg.Procedure) *Result {
	return &Result{
		Procedure: proc,
		Blocks:    make([]*AnnotatedBlock, len(proc.Blocks)),
		EdgeOps:   make(map[cfg.Edge][]Op),
		In:        make(map[cfg.BlockID]*lattice.State),
		Out:       make(map[cfg.BlockID]*lattice.State),
	}
}

// OK reports whether the procedure verified without failures.
func (r *Result) OK() bool {
	return len(r.Failures) == 0
}

// String prints the annotated procedure in a Viper-like listing.
func (r *Result) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "procedure %s {\n", r.Procedure.Name)
	for i, ab := range r.Blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		r.writeBlock(&sb, ab)
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (r *Result) writeBlock(sb *strings.Builder, ab *AnnotatedBlock) {
	b := ab.Block
	fmt.Fprintf(sb, "  %s:\n", b.Label)
	fmt.Fprintf(sb, "    // in: %s\n", r.In[b.ID])
	for _, e := range ab.Entries {
		for _, op := range e.Ops {
			fmt.Fprintf(sb, "    %s\n", op)
		}
		fmt.Fprintf(sb, "    %s\n", e.Stmt)
	}
	fmt.Fprintf(sb, "    // out: %s\n", r.Out[b.ID])
	for _, s := range b.Succs {
		target := r.Procedure.Block(s).Label
		if ops := r.EdgeOps[cfg.Edge{From: b.ID, To: s}]; len(ops) > 0 {
			fmt.Fprintf(sb, "    goto %s with %s\n", target, joinOps(ops))
			continue
		}
		fmt.Fprintf(sb, "    goto %s\n", target)
	}
}

// Dot writes the annotated CFG in GraphViz format.
func (r *Result) Dot(w io.Writer) {
	r.Procedure.PrintDot(w, func(b *cfg.Block) string {
		lines := []string{"in: " + r.In[b.ID].String()}
		if ab := r.Blocks[b.ID]; ab != nil {
			for _, e := range ab.Entries {
				for _, op := range e.Ops {
					lines = append(lines, fmt.Sprintf("%s (before %s)", op, e.Stmt.Kind()))
				}
			}
		}
		lines = append(lines, "out: "+r.Out[b.ID].String())
		return strings.Join(lines, "\n")
	}, func(e cfg.Edge) string {
		return joinOps(r.EdgeOps[e])
	})
}
