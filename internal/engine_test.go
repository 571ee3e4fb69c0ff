package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gnolang/permcheck/internal/foldunfold"
	"github.com/gnolang/permcheck/internal/prover"
	tt "github.com/gnolang/permcheck/internal/types"
	"github.com/gnolang/permcheck/internal/vir"
)

const mixedProgram = `version: "1.0"
fields:
  val: Int
  next: Ref(Node)
  f: Int
predicates:
  Node:
    self: Ref(Node)
    body: (&& (acc self.val) (acc self.next) (acc (Node self.next)))
  P:
    self: Ref(P)
    body: (acc self.f)
procedures:
  - name: ok
    locals:
      x: Ref(Node)
    blocks:
      - label: entry
        stmts:
          - inhale (acc (Node x))
          - x.val := 1
          - exhale (acc (Node x))
  - name: missing
    locals:
      a: Ref(P)
      b: Ref(P)
    blocks:
      - label: entry
        stmts:
          - inhale (acc a.f)
          - b.f := 1
  - name: spin
    locals:
      a: Ref(P)
      b: Ref(P)
    blocks:
      - label: entry
        stmts:
          - inhale (&& (acc a.f) (acc b.f))
        goto: [head]
      - label: head
        stmts:
          - // loop
        goto: [body, exit]
      - label: body
        stmts:
          - exhale (acc a.f)
        goto: [head]
      - label: exit
  - name: wand
    locals:
      a: Ref(P)
      b: Ref(P)
    blocks:
      - label: entry
        stmts:
          - inhale (wand (acc a.f) (acc b.f))
`

func writeProgram(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

type issueKey struct {
	Procedure string
	Rule      string
	Line      int
}

func keys(issues []tt.Issue) []issueKey {
	out := make([]issueKey, len(issues))
	for i, issue := range issues {
		out[i] = issueKey{issue.Procedure, issue.Rule, issue.Start.Line}
	}
	return out
}

func TestEngineRun(t *testing.T) {
	t.Parallel()

	path := writeProgram(t, t.TempDir(), "mixed.vir.yaml", mixedProgram)
	engine := NewEngine(zap.NewNop(), WithMaxLoopIterations(3), WithParallelism(2))

	issues, err := engine.Run(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []issueKey{
		{"missing", tt.RuleMissingPermission, 31},
		{"spin", tt.RuleLoopNotStable, 43},
		{"spin", tt.RuleMissingPermission, 47},
		{"wand", tt.RuleUnsupportedConstruct, 57},
	}, keys(issues))

	missing := issues[0]
	assert.Equal(t, path, missing.Filename)
	assert.Equal(t, "acc(b.f)", missing.Permission)
	assert.Equal(t, "assign", missing.StmtKind)
	assert.Equal(t, tt.SeverityError, missing.Severity)
	assert.Equal(t, 13, missing.Start.Column)
	assert.Equal(t, "in block entry", missing.Note)

	assert.Contains(t, issues[1].Note, "loop head head")
	assert.Equal(t, tt.SeverityWarning, issues[3].Severity)
	assert.Contains(t, issues[3].Message, "magic wands")
}

func TestEngineRuleConfiguration(t *testing.T) {
	t.Parallel()

	path := writeProgram(t, t.TempDir(), "mixed.vir.yaml", mixedProgram)
	engine := NewEngine(nil,
		WithMaxLoopIterations(3),
		WithRules(map[string]tt.ConfigRule{
			tt.RuleMissingPermission:    {Severity: tt.SeverityOff},
			tt.RuleUnsupportedConstruct: {Severity: tt.SeverityError},
			"no-such-rule":              {Severity: tt.SeverityInfo},
		}),
	)
	engine.IgnoreProcedure("spin")

	issues, err := engine.Run(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, []issueKey{{"wand", tt.RuleUnsupportedConstruct, 57}}, keys(issues))
	assert.Equal(t, tt.SeverityError, issues[0].Severity)

	engine.IgnoreRule(tt.RuleUnsupportedConstruct)
	issues, err = engine.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

type mockProver struct {
	mock.Mock
}

func (m *mockProver) Check(ctx context.Context, res *foldunfold.Result) ([]prover.Verdict, error) {
	args := m.Called(ctx, res)
	return args.Get(0).([]prover.Verdict), args.Error(1)
}

func TestEngineQueriesProverOnlyForCleanProcedures(t *testing.T) {
	t.Parallel()

	path := writeProgram(t, t.TempDir(), "mixed.vir.yaml", mixedProgram)
	rejected := prover.Verdict{
		Procedure: "ok",
		Block:     "entry",
		Subject:   "exhale acc(Node(x), write)",
		OK:        false,
		Reason:    "backend says no",
	}
	rejected.Position.Line = 22

	p := new(mockProver)
	p.On("Check", mock.Anything, mock.MatchedBy(func(res *foldunfold.Result) bool {
		return res.Procedure.Name == "ok"
	})).Return([]prover.Verdict{{OK: true}, rejected}, nil)

	engine := NewEngine(nil,
		WithMaxLoopIterations(3),
		WithProver(func(vir.PredicateTable, *zap.Logger) prover.Prover { return p }),
	)
	issues, err := engine.Run(context.Background(), path)
	require.NoError(t, err)

	require.NotEmpty(t, issues)
	first := issues[0]
	assert.Equal(t, issueKey{"ok", tt.RuleProverFailure, 22}, keys(issues)[0])
	assert.Equal(t, "exhale acc(Node(x), write): backend says no", first.Message)
	p.AssertNumberOfCalls(t, "Check", 1)
}

func TestEngineProverError(t *testing.T) {
	t.Parallel()

	path := writeProgram(t, t.TempDir(), "mixed.vir.yaml", mixedProgram)
	p := new(mockProver)
	p.On("Check", mock.Anything, mock.Anything).Return([]prover.Verdict(nil), errors.New("backend down"))

	engine := NewEngine(nil, WithProver(func(vir.PredicateTable, *zap.Logger) prover.Prover { return p }))
	_, err := engine.Run(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "procedure ok: prover: backend down")
}

func TestEngineInternalErrorAbortsRun(t *testing.T) {
	t.Parallel()

	src := `version: "1.0"
fields:
  f: Int
predicates:
  P:
    self: Ref(P)
    body: (acc self.f)
procedures:
  - name: wrong
    locals:
      x: Ref(Node)
    blocks:
      - label: entry
        stmts:
          - fold (P x)
`
	path := writeProgram(t, t.TempDir(), "bad.vir.yaml", src)
	_, err := NewEngine(nil).Run(context.Background(), path)

	var internal *foldunfold.InternalError
	require.True(t, errors.As(err, &internal), "got %v", err)
	assert.Contains(t, err.Error(), "procedure wrong")
}

func TestEngineLoadErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	engine := NewEngine(nil)

	_, err := engine.Run(context.Background(), filepath.Join(dir, "absent.vir.yaml"))
	assert.ErrorContains(t, err, "error reading program")

	path := writeProgram(t, dir, "broken.vir.yaml", "version: \"3.0\"\n")
	_, err = engine.Run(context.Background(), path)
	assert.ErrorContains(t, err, "unsupported version")
}

func TestEngineCanceledContext(t *testing.T) {
	t.Parallel()

	path := writeProgram(t, t.TempDir(), "mixed.vir.yaml", mixedProgram)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(nil).Run(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cache, err := NewCache(filepath.Join(dir, "cache"), 0)
	require.NoError(t, err)

	path := writeProgram(t, dir, "mixed.vir.yaml", mixedProgram)
	engine := NewEngine(nil, WithMaxLoopIterations(3), WithCache(cache))

	issues, err := engine.Run(context.Background(), path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cached, ok := cache.Get(path, engine.cacheKey(data))
	require.True(t, ok)
	assert.Equal(t, issues, cached)

	again, err := engine.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, issues, again)

	// Ignoring a procedure changes the key, so the entry is not reused.
	engine.IgnoreProcedure("wand")
	fewer, err := engine.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, fewer, len(issues)-1)
}

func TestIsProgramFile(t *testing.T) {
	t.Parallel()

	assert.True(t, IsProgramFile("a/list.vir.yaml"))
	assert.True(t, IsProgramFile("list.vir.yml"))
	assert.False(t, IsProgramFile("list.yaml"))
	assert.False(t, IsProgramFile("main.go"))
}

func TestReadSourceCode(t *testing.T) {
	t.Parallel()

	path := writeProgram(t, t.TempDir(), "a.vir.yaml", "one\ntwo\n")
	src, err := ReadSourceCode(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", ""}, src.Lines)
}
