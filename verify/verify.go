// Package verify is the entry point for verifying program files: it reads
// the configuration file, builds an engine and walks paths.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/gnolang/permcheck/internal"
	"github.com/gnolang/permcheck/internal/foldunfold"
	tt "github.com/gnolang/permcheck/internal/types"
)

// DefaultConfigFile is the configuration file looked up by default.
const DefaultConfigFile = ".permcheck.yaml"

type VerifyEngine interface {
	Run(ctx context.Context, filename string) ([]tt.Issue, error)
	IgnoreRule(rule string)
	IgnoreProcedure(name string)
}

// CacheConfig controls the on-disk result cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	MaxAge  time.Duration `yaml:"max-age"`
}

// Config is the content of the configuration file.
type Config struct {
	Name              string                   `yaml:"name"`
	MaxLoopIterations int                      `yaml:"max-loop-iterations"`
	Parallelism       int                      `yaml:"parallelism"`
	Cache             CacheConfig              `yaml:"cache"`
	Rules             map[string]tt.ConfigRule `yaml:"rules"`
}

func DefaultConfig() Config {
	return Config{
		Name:              "permcheck",
		MaxLoopIterations: foldunfold.DefaultMaxLoopIterations,
		Cache: CacheConfig{
			Dir:    ".permcheck-cache",
			MaxAge: 24 * time.Hour,
		},
		Rules: tt.DefaultRules(),
	}
}

// LoadConfig reads the configuration at path over the defaults. An empty
// path or a missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return config, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return config, nil
}

// New builds an engine from the configuration file at configurationPath.
func New(logger *zap.Logger, configurationPath string) (*internal.Engine, error) {
	config, err := LoadConfig(configurationPath)
	if err != nil {
		return nil, err
	}

	opts := []internal.Option{
		internal.WithRules(config.Rules),
		internal.WithMaxLoopIterations(config.MaxLoopIterations),
		internal.WithParallelism(config.Parallelism),
	}
	if config.Cache.Enabled {
		cache, err := internal.NewCache(config.Cache.Dir, config.Cache.MaxAge)
		if err != nil {
			return nil, err
		}
		opts = append(opts, internal.WithCache(cache))
	}
	return internal.NewEngine(logger, opts...), nil
}

// Processor verifies one file.
type Processor func(ctx context.Context, engine VerifyEngine, path string) ([]tt.Issue, error)

func ProcessFile(ctx context.Context, engine VerifyEngine, path string) ([]tt.Issue, error) {
	return engine.Run(ctx, path)
}

func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	engine VerifyEngine,
	paths []string,
	processor Processor,
) ([]tt.Issue, error) {
	var allIssues []tt.Issue
	for _, path := range paths {
		issues, err := ProcessPath(ctx, logger, engine, path, processor)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing path", zap.String("path", path), zap.Error(err))
			}
			return nil, err
		}
		allIssues = append(allIssues, issues...)
	}

	return allIssues, nil
}

// ProcessPath verifies path, or every program file below it when it is a
// directory. Files that fail to load are logged and skipped; an
// *foldunfold.InternalError aborts the walk and is returned. On
// cancellation the issues found so far are returned with the context error.
func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	engine VerifyEngine,
	path string,
	processor Processor,
) ([]tt.Issue, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}

	if !info.IsDir() {
		if !hasDesiredExtension(path) {
			return nil, nil
		}
		return processor(ctx, engine, path)
	}

	files, err := collectFiles(path)
	if err != nil {
		return nil, err
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(path),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))

	results := make([][]tt.Issue, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, fp := range files {
		if gctx.Err() != nil {
			break
		}
		i, fp := i, fp
		g.Go(func() error {
			defer bar.Add(1)
			fileIssues, err := processor(gctx, engine, fp)
			if err != nil {
				// A front-end defect is not a property of one file.
				var internalErr *foldunfold.InternalError
				if errors.As(err, &internalErr) {
					return fmt.Errorf("%s: %w", fp, err)
				}
				if logger != nil {
					logger.Error("Error processing file", zap.String("file", fp), zap.Error(err))
				}
				return nil
			}
			results[i] = fileIssues
			return nil
		})
	}
	waitErr := g.Wait()
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if waitErr != nil {
		return nil, waitErr
	}

	issues := []tt.Issue{}
	for _, r := range results {
		issues = append(issues, r...)
	}
	return issues, ctx.Err()
}

func collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && hasDesiredExtension(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func hasDesiredExtension(path string) bool {
	return internal.IsProgramFile(path)
}
