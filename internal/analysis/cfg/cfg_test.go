package cfg

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gnolang/permcheck/internal/vir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spec(label string, succs ...string) BlockSpec {
	return BlockSpec{
		Label: label,
		Stmts: []vir.Stmt{vir.Comment{Text: label}},
		Succs: succs,
	}
}

func TestNewProcedure(t *testing.T) {
	t.Parallel()

	proc, err := NewProcedure("main", nil, []BlockSpec{
		spec("entry", "then", "else"),
		spec("then", "join"),
		spec("else", "join"),
		spec("join"),
	})
	require.NoError(t, err)

	assert.Equal(t, BlockID(0), proc.Entry)
	assert.Equal(t, []BlockID{1, 2}, proc.Succs(0))
	assert.Equal(t, []BlockID{1, 2}, proc.Preds(3))
	assert.Empty(t, proc.Preds(0))
	assert.Len(t, proc.Edges(), 4)
	assert.Empty(t, proc.BackEdges())
}

func TestNewProcedureErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		specs []BlockSpec
		want  string
	}{
		{"no blocks", nil, "has no blocks"},
		{"unknown successor", []BlockSpec{spec("entry", "nowhere")}, "unknown block"},
		{"duplicate label", []BlockSpec{spec("a"), spec("a")}, "duplicate block label"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewProcedure("p", nil, tt.specs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBackEdgesAndOrder(t *testing.T) {
	t.Parallel()

	// entry -> head; head -> body, exit; body -> head
	proc, err := NewProcedure("loop", nil, []BlockSpec{
		spec("entry", "head"),
		spec("head", "body", "exit"),
		spec("body", "head"),
		spec("exit"),
	})
	require.NoError(t, err)

	back := proc.BackEdges()
	assert.Equal(t, map[Edge]bool{{From: 2, To: 1}: true}, back)
	assert.Equal(t, map[BlockID]bool{1: true}, proc.LoopHeads())
	assert.Equal(t, []BlockID{0, 1, 2, 3}, proc.ForwardOrder())
}

func TestForwardOrderWaitsForAllPredecessors(t *testing.T) {
	t.Parallel()

	// The join is declared before the else branch but must come after it.
	proc, err := NewProcedure("diamond", nil, []BlockSpec{
		spec("entry", "then", "else"),
		spec("then", "join"),
		spec("join"),
		spec("else", "join"),
	})
	require.NoError(t, err)

	assert.Equal(t, []BlockID{0, 1, 3, 2}, proc.ForwardOrder())
}

func TestForwardOrderSkipsUnreachable(t *testing.T) {
	t.Parallel()

	proc, err := NewProcedure("dead", nil, []BlockSpec{
		spec("entry", "exit"),
		spec("dead", "exit"),
		spec("exit"),
	})
	require.NoError(t, err)

	assert.Equal(t, []BlockID{0, 2}, proc.ForwardOrder())
	assert.False(t, proc.Reachable()[1])
}

func TestNestedLoops(t *testing.T) {
	t.Parallel()

	proc, err := NewProcedure("nested", nil, []BlockSpec{
		spec("entry", "outer"),
		spec("outer", "inner", "exit"),
		spec("inner", "inner_body", "outer_latch"),
		spec("inner_body", "inner"),
		spec("outer_latch", "outer"),
		spec("exit"),
	})
	require.NoError(t, err)

	back := proc.BackEdges()
	assert.True(t, back[Edge{From: 3, To: 2}])
	assert.True(t, back[Edge{From: 4, To: 1}])
	assert.Len(t, back, 2)
	assert.Equal(t, []BlockID{0, 1, 2, 3, 4, 5}, proc.ForwardOrder())
}

func TestPrintDot(t *testing.T) {
	t.Parallel()

	proc, err := NewProcedure("loop", nil, []BlockSpec{
		spec("entry", "head"),
		spec("head", "head", "exit"),
		spec("exit"),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	proc.PrintDot(&buf, func(b *Block) string {
		return "in: \"" + b.Label + "\""
	}, func(e Edge) string {
		if e.To == 2 {
			return "exhale acc(x.f)"
		}
		return ""
	})
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "digraph \"loop\" {"))
	assert.Contains(t, out, "n1 -> n1 [style=dashed];")
	assert.Contains(t, out, "n1 -> n2 [label=\"exhale acc(x.f)\"];")
	assert.Contains(t, out, "in: \\\"head\\\"")
}

func TestRenderDotFile(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "graph.dot")
	require.NoError(t, RenderToGraphVizFile([]byte("digraph {}"), out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "digraph {}", string(data))
}
