package internal

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gnolang/permcheck/internal/analysis/cfg"
	"github.com/gnolang/permcheck/internal/foldunfold"
	"github.com/gnolang/permcheck/internal/loader"
	"github.com/gnolang/permcheck/internal/prover"
	tt "github.com/gnolang/permcheck/internal/types"
	"github.com/gnolang/permcheck/internal/vir"
)

// ProverFactory builds the prover for one procedure.
type ProverFactory func(preds vir.PredicateTable, logger *zap.Logger) prover.Prover

func defaultProver(preds vir.PredicateTable, logger *zap.Logger) prover.Prover {
	return prover.NewReplayer(preds, logger)
}

// Engine verifies program files.
type Engine struct {
	logger      *zap.Logger
	rules       map[string]tt.ConfigRule
	maxIter     int
	parallelism int
	newProver   ProverFactory
	cache       *Cache

	mu           sync.RWMutex
	ignoredRules map[string]bool
	ignoredProcs map[string]bool

	watchMu   sync.Mutex
	watcher   *fsnotify.Watcher
	watchDone chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules overrides rule severities. Unknown rule names are ignored.
func WithRules(rules map[string]tt.ConfigRule) Option {
	return func(e *Engine) {
		for name, rule := range rules {
			if _, ok := e.rules[name]; !ok {
				continue
			}
			e.rules[name] = rule
		}
	}
}

func WithMaxLoopIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIter = n
		}
	}
}

// WithParallelism bounds the number of procedures verified at once.
// n <= 0 means one per CPU.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

func WithProver(f ProverFactory) Option {
	return func(e *Engine) {
		if f != nil {
			e.newProver = f
		}
	}
}

// WithCache stores results per file content.
func WithCache(c *Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// NewEngine creates a verification engine. A nil logger discards output.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:       logger,
		rules:        tt.DefaultRules(),
		maxIter:      foldunfold.DefaultMaxLoopIterations,
		parallelism:  runtime.NumCPU(),
		newProver:    defaultProver,
		ignoredRules: make(map[string]bool),
		ignoredProcs: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IgnoreRule drops every issue of the given rule.
func (e *Engine) IgnoreRule(rule string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ignoredRules[rule] = true
}

// IgnoreProcedure skips verification of procedures with the given name.
func (e *Engine) IgnoreProcedure(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ignoredProcs[name] = true
}

func (e *Engine) isIgnoredProc(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ignoredProcs[name]
}

// Run verifies the program file at filename.
func (e *Engine) Run(ctx context.Context, filename string) ([]tt.Issue, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading program: %w", err)
	}

	var key string
	if e.cache != nil {
		key = e.cacheKey(data)
		if issues, ok := e.cache.Get(filename, key); ok {
			e.logger.Debug("cache hit", zap.String("file", filename))
			return issues, nil
		}
	}

	prog, err := loader.Parse(filename, data)
	if err != nil {
		return nil, err
	}
	issues, err := e.RunProgram(ctx, prog)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Set(filename, key, issues); err != nil {
			e.logger.Warn("failed to update cache", zap.String("file", filename), zap.Error(err))
		}
	}
	return issues, nil
}

// RunProgram verifies every procedure of prog. Issues come in procedure
// declaration order, then by position. An internal error in any procedure
// cancels the others and is returned.
func (e *Engine) RunProgram(ctx context.Context, prog *loader.Program) ([]tt.Issue, error) {
	perProc := make([][]tt.Issue, len(prog.Procedures))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, proc := range prog.Procedures {
		if e.isIgnoredProc(proc.Name) {
			continue
		}
		i, proc := i, proc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			issues, err := e.verifyProcedure(gctx, prog, proc)
			if err != nil {
				return fmt.Errorf("procedure %s: %w", proc.Name, err)
			}
			perProc[i] = issues
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []tt.Issue
	for _, issues := range perProc {
		all = append(all, issues...)
	}
	return all, nil
}

// Analyze runs the fold/unfold analysis of one procedure against its own
// copy of the predicate table.
func (e *Engine) Analyze(prog *loader.Program, proc *cfg.Procedure) (*foldunfold.Result, vir.PredicateTable, error) {
	preds := prog.Predicates.Clone()
	an := foldunfold.NewAnalyzer(preds,
		foldunfold.WithLogger(e.logger),
		foldunfold.WithMaxLoopIterations(e.maxIter),
	)
	res, err := an.Analyze(proc)
	return res, preds, err
}

func (e *Engine) verifyProcedure(ctx context.Context, prog *loader.Program, proc *cfg.Procedure) ([]tt.Issue, error) {
	logger := e.logger.With(zap.String("procedure", proc.Name))
	base := tt.Issue{Filename: prog.Filename, Procedure: proc.Name}

	res, preds, err := e.Analyze(prog, proc)
	if err != nil {
		var ue *foldunfold.UnsupportedError
		if !errors.As(err, &ue) {
			return nil, err
		}
		logger.Debug("unsupported construct", zap.Error(err))
		issue := base
		issue.Rule = tt.RuleUnsupportedConstruct
		issue.Category = "unsupported"
		issue.Message = ue.Error()
		issue.Start, issue.End = ue.Position, ue.Position
		return e.finish([]tt.Issue{issue}), nil
	}

	var issues []tt.Issue
	for _, f := range res.Failures {
		issues = append(issues, failureIssue(base, res, f))
	}

	if res.OK() {
		verdicts, err := e.newProver(preds, logger).Check(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("prover: %w", err)
		}
		for _, v := range prover.Rejected(verdicts) {
			issue := base
			issue.Rule = tt.RuleProverFailure
			issue.Category = "prover"
			issue.Message = v.Subject + ": " + v.Reason
			issue.Note = "in block " + v.Block
			issue.Start, issue.End = v.Position, v.Position
			issues = append(issues, issue)
		}
	}
	logger.Debug("procedure verified",
		zap.Int("passes", res.Passes),
		zap.Int("issues", len(issues)),
	)
	return e.finish(issues), nil
}

func failureIssue(base tt.Issue, res *foldunfold.Result, f foldunfold.Failure) tt.Issue {
	issue := base
	issue.Message = f.Message
	issue.Start, issue.End = f.Position, f.Position
	label := res.Procedure.Block(f.Block).Label

	switch f.Kind {
	case foldunfold.LoopNotStable:
		issue.Rule = tt.RuleLoopNotStable
		issue.Category = "loop"
		issue.Note = fmt.Sprintf("loop head %s did not stabilize after %d passes", label, res.Passes)
	default:
		issue.Rule = tt.RuleMissingPermission
		issue.Category = "permission"
		issue.Note = "in block " + label
		if f.Err != nil {
			issue.Permission = f.Err.Perm.String()
			issue.StmtKind = f.Err.Stmt.String()
		}
	}
	return issue
}

// finish applies rule severities, drops ignored and OFF rules and sorts by
// position.
func (e *Engine) finish(issues []tt.Issue) []tt.Issue {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := issues[:0]
	for _, issue := range issues {
		rule := e.rules[issue.Rule]
		if e.ignoredRules[issue.Rule] || rule.Severity == tt.SeverityOff {
			continue
		}
		issue.Severity = rule.Severity
		out = append(out, issue)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Start, out[j].Start
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return out[i].Rule < out[j].Rule
	})
	return out
}

// cacheKey digests the file content together with every setting that can
// change the issues reported for it.
func (e *Engine) cacheKey(data []byte) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h := sha256.New()
	fmt.Fprintf(h, "iter=%d\n", e.maxIter)
	for _, name := range sortedKeys(e.rules) {
		fmt.Fprintf(h, "rule %s=%s\n", name, e.rules[name].Severity)
	}
	for _, name := range sortedKeys(e.ignoredRules) {
		fmt.Fprintf(h, "ignore-rule %s\n", name)
	}
	for _, name := range sortedKeys(e.ignoredProcs) {
		fmt.Fprintf(h, "ignore-proc %s\n", name)
	}
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SourceCode stores the content of a source code file.
type SourceCode struct {
	Lines []string
}

// ReadSourceCode reads the content of a file and returns it as a `SourceCode` struct.
func ReadSourceCode(filename string) (*SourceCode, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	return &SourceCode{Lines: lines}, nil
}

var programExtensions = []string{".vir.yaml", ".vir.yml"}

// IsProgramFile reports whether path names a program file.
func IsProgramFile(path string) bool {
	for _, ext := range programExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
