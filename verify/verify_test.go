package verify

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gnolang/permcheck/internal/foldunfold"
	tt "github.com/gnolang/permcheck/internal/types"
)

type mockVerifyEngine struct {
	mock.Mock
}

func (m *mockVerifyEngine) Run(ctx context.Context, filePath string) ([]tt.Issue, error) {
	args := m.Called(filePath)
	return args.Get(0).([]tt.Issue), args.Error(1)
}

func (m *mockVerifyEngine) IgnoreRule(rule string) {
	m.Called(rule)
}

func (m *mockVerifyEngine) IgnoreProcedure(name string) {
	m.Called(name)
}

func testIssue(filename, msg string) tt.Issue {
	return tt.Issue{
		Rule:     tt.RuleMissingPermission,
		Filename: filename,
		Start:    token.Position{Filename: filename, Line: 1, Column: 1},
		End:      token.Position{Filename: filename, Line: 1, Column: 1},
		Message:  msg,
	}
}

func createTempFiles(t *testing.T, dir string, fileNames ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(fileNames))
	for _, fileName := range fileNames {
		filePath := filepath.Join(dir, fileName)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, nil, 0o644))
		paths = append(paths, filePath)
	}
	return paths
}

func TestProcessFile(t *testing.T) {
	t.Parallel()

	expected := []tt.Issue{testIssue("a.vir.yaml", "test issue")}
	engine := new(mockVerifyEngine)
	engine.On("Run", "a.vir.yaml").Return(expected, nil)

	issues, err := ProcessFile(context.Background(), engine, "a.vir.yaml")
	assert.NoError(t, err)
	assert.Equal(t, expected, issues)
	engine.AssertExpectations(t)
}

func TestProcessPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := createTempFiles(t, dir, "b.vir.yaml", "sub/a.vir.yml", "notes.txt", "other.yaml")

	engine := new(mockVerifyEngine)
	engine.On("Run", paths[0]).Return([]tt.Issue{testIssue(paths[0], "issue b")}, nil)
	engine.On("Run", paths[1]).Return([]tt.Issue{testIssue(paths[1], "issue a")}, nil)

	issues, err := ProcessPath(context.Background(), zap.NewNop(), engine, dir, ProcessFile)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	// files are processed in lexical order
	assert.Equal(t, "issue b", issues[0].Message)
	assert.Equal(t, "issue a", issues[1].Message)
	engine.AssertExpectations(t)
	engine.AssertNumberOfCalls(t, "Run", 2)
}

func TestProcessPathSkipsFailingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := createTempFiles(t, dir, "bad.vir.yaml", "good.vir.yaml")

	engine := new(mockVerifyEngine)
	engine.On("Run", paths[0]).Return([]tt.Issue(nil), errors.New("unsupported version"))
	engine.On("Run", paths[1]).Return([]tt.Issue{testIssue(paths[1], "good")}, nil)

	issues, err := ProcessPath(context.Background(), zap.NewNop(), engine, dir, ProcessFile)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "good", issues[0].Message)
}

func TestProcessPathAbortsOnInternalError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := createTempFiles(t, dir, "a.vir.yaml", "b.vir.yaml")

	internalErr := fmt.Errorf("procedure wrong: %w", &foldunfold.InternalError{Reason: "fold of P on a Ref(Node) place"})
	engine := new(mockVerifyEngine)
	engine.On("Run", paths[0]).Return([]tt.Issue(nil), internalErr)
	engine.On("Run", paths[1]).Return([]tt.Issue{testIssue(paths[1], "b")}, nil).Maybe()

	issues, err := ProcessPath(context.Background(), zap.NewNop(), engine, dir, ProcessFile)
	assert.Nil(t, issues)

	var internal *foldunfold.InternalError
	require.ErrorAs(t, err, &internal)
	assert.Contains(t, err.Error(), paths[0])

	_, err = ProcessFiles(context.Background(), zap.NewNop(), engine, []string{dir}, ProcessFile)
	assert.ErrorAs(t, err, &internal)
}

func TestProcessPathCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	createTempFiles(t, dir, "a.vir.yaml", "b.vir.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := new(mockVerifyEngine)
	issues, err := ProcessPath(ctx, nil, engine, dir, ProcessFile)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, issues)
	engine.AssertNotCalled(t, "Run", mock.Anything)
}

func TestProcessPathSingleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := createTempFiles(t, dir, "a.vir.yaml", "a.go")

	engine := new(mockVerifyEngine)
	engine.On("Run", paths[0]).Return([]tt.Issue{testIssue(paths[0], "x")}, nil)

	issues, err := ProcessPath(context.Background(), nil, engine, paths[0], ProcessFile)
	require.NoError(t, err)
	assert.Len(t, issues, 1)

	issues, err = ProcessPath(context.Background(), nil, engine, paths[1], ProcessFile)
	require.NoError(t, err)
	assert.Empty(t, issues)

	_, err = ProcessPath(context.Background(), nil, engine, filepath.Join(dir, "missing.vir.yaml"), ProcessFile)
	assert.ErrorContains(t, err, "error accessing")
}

func TestProcessFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := createTempFiles(t, dir, "a.vir.yaml", "b.vir.yaml")

	engine := new(mockVerifyEngine)
	engine.On("Run", paths[0]).Return([]tt.Issue{testIssue(paths[0], "a")}, nil)
	engine.On("Run", paths[1]).Return([]tt.Issue{testIssue(paths[1], "b")}, nil)

	issues, err := ProcessFiles(context.Background(), zap.NewNop(), engine, paths, ProcessFile)
	require.NoError(t, err)
	assert.Len(t, issues, 2)

	_, err = ProcessFiles(context.Background(), zap.NewNop(), engine, []string{filepath.Join(dir, "nope")}, ProcessFile)
	assert.Error(t, err)
}

func TestHasDesiredExtension(t *testing.T) {
	t.Parallel()

	assert.True(t, hasDesiredExtension("test.vir.yaml"))
	assert.True(t, hasDesiredExtension("dir/test.vir.yml"))
	assert.False(t, hasDesiredExtension("test.yaml"))
	assert.False(t, hasDesiredExtension("test"))
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	config, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)

	path := filepath.Join(dir, DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`name: custom
max-loop-iterations: 20
cache:
  enabled: true
  max-age: 90m
rules:
  loop-not-stable:
    severity: warning
  prover-failure:
    severity: OFF
`), 0o644))

	config, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", config.Name)
	assert.Equal(t, 20, config.MaxLoopIterations)
	assert.True(t, config.Cache.Enabled)
	assert.Equal(t, ".permcheck-cache", config.Cache.Dir)
	assert.Equal(t, 90*time.Minute, config.Cache.MaxAge)
	assert.Equal(t, tt.SeverityWarning, config.Rules[tt.RuleLoopNotStable].Severity)
	assert.Equal(t, tt.SeverityOff, config.Rules[tt.RuleProverFailure].Severity)
	assert.Equal(t, tt.SeverityError, config.Rules[tt.RuleMissingPermission].Severity)

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  x:\n    severity: LOUD\n"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "unknown severity")

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	config, err = LoadConfig(empty)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

const listProgram = `version: "1.0"
fields:
  val: Int
  next: Ref(Node)
predicates:
  Node:
    self: Ref(Node)
    body: (&& (acc self.val) (acc self.next) (acc (Node self.next)))
procedures:
  - name: bump
    locals:
      x: Ref(Node)
    blocks:
      - label: entry
        stmts:
          - inhale (acc (Node x))
          - x.val := 1
          - exhale (acc (Node x))
  - name: leak
    locals:
      x: Ref(Node)
    blocks:
      - label: entry
        stmts:
          - x.val := 1
`

const wrongProgram = `version: "1.0"
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

func TestNewInternalErrorInDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "list.vir.yaml"), []byte(listProgram), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.vir.yaml"), []byte(wrongProgram), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.vir.yaml"), []byte("version: \"3.0\"\n"), 0o644))

	engine, err := New(zap.NewNop(), "")
	require.NoError(t, err)

	issues, err := ProcessFiles(context.Background(), zap.NewNop(), engine, []string{dir}, ProcessFile)
	assert.Empty(t, issues)

	var internal *foldunfold.InternalError
	require.ErrorAs(t, err, &internal)
	assert.Contains(t, err.Error(), "wrong.vir.yaml")
}

func TestNewEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	program := filepath.Join(dir, "list.vir.yaml")
	require.NoError(t, os.WriteFile(program, []byte(listProgram), 0o644))

	configPath := filepath.Join(dir, DefaultConfigFile)
	require.NoError(t, os.WriteFile(configPath, []byte("cache:\n  enabled: true\n  dir: "+filepath.Join(dir, "cache")+"\n"), 0o644))

	engine, err := New(zap.NewNop(), configPath)
	require.NoError(t, err)

	issues, err := ProcessFiles(context.Background(), zap.NewNop(), engine, []string{dir}, ProcessFile)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "leak", issues[0].Procedure)
	assert.Equal(t, tt.RuleMissingPermission, issues[0].Rule)
	assert.Equal(t, 25, issues[0].Start.Line)

	_, err = os.Stat(filepath.Join(dir, "cache"))
	assert.NoError(t, err)

	engine.IgnoreProcedure("leak")
	issues, err = ProcessFiles(context.Background(), zap.NewNop(), engine, []string{program}, ProcessFile)
	require.NoError(t, err)
	assert.Empty(t, issues)
}
