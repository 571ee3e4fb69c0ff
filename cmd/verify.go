package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/permcheck/formatter"
	"github.com/gnolang/permcheck/internal"
	tt "github.com/gnolang/permcheck/internal/types"
	"github.com/gnolang/permcheck/verify"
)

var (
	ignoreRules      string
	ignoreProcs      string
	verifyJSONOutput bool
	outPath          string
	watchMode        bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [paths...]",
	Short: "Verify the permission accounting of program files",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file or directory paths")
			os.Exit(1)
		}

		engine, err := verify.New(logger, cfgFile)
		if err != nil {
			logger.Fatal("Failed to initialize verification engine", zap.Error(err))
		}
		applyIgnores(engine, ignoreRules, ignoreProcs)

		if watchMode {
			if err := runWatch(engine, args); err != nil {
				logger.Fatal("Watch failed", zap.Error(err))
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		issues, err := runVerifyProcess(ctx, logger, engine, args)
		if err != nil {
			logger.Error("Error processing files", zap.Error(err))
			os.Exit(1)
		}
		printIssues(os.Stdout, logger, issues, verifyJSONOutput, outPath)
		if len(issues) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	verifyCmd.Flags().StringVar(&ignoreRules, "ignore-rules", "", "Comma-separated list of rules to ignore")
	verifyCmd.Flags().StringVar(&ignoreProcs, "ignore", "", "Comma-separated list of procedures to skip")
	verifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output issues in JSON format")
	verifyCmd.Flags().StringVarP(&outPath, "output", "o", "", "Output path (when using JSON)")
	verifyCmd.Flags().BoolVar(&watchMode, "watch", false, "Re-verify program files as they change")
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func applyIgnores(engine verify.VerifyEngine, rules, procs string) {
	for _, rule := range splitList(rules) {
		engine.IgnoreRule(rule)
	}
	for _, proc := range splitList(procs) {
		engine.IgnoreProcedure(proc)
	}
}

func runVerifyProcess(ctx context.Context, logger *zap.Logger, engine verify.VerifyEngine, paths []string) ([]tt.Issue, error) {
	return verify.ProcessFiles(ctx, logger, engine, paths, verify.ProcessFile)
}

// runWatch verifies paths once, then re-verifies changed files until
// interrupted.
func runWatch(engine *internal.Engine, paths []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	issues, err := runVerifyProcess(ctx, logger, engine, paths)
	if err != nil {
		return err
	}
	printIssues(os.Stdout, logger, issues, false, "")

	err = engine.StartWatching(ctx, watchDirs(paths), func(filename string, issues []tt.Issue, err error) {
		if err != nil {
			fmt.Fprintf(os.Stdout, "%s: %v\n", filename, err)
			return
		}
		if len(issues) == 0 {
			fmt.Fprintf(os.Stdout, "%s: ok\n", filename)
			return
		}
		printIssues(os.Stdout, logger, issues, false, "")
	})
	if err != nil {
		return err
	}
	fmt.Println("watching for changes, press Ctrl+C to stop")
	<-ctx.Done()
	return engine.StopWatching()
}

// watchDirs maps paths to the directories to watch, without duplicates.
func watchDirs(paths []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		dir := p
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			dir = filepath.Dir(p)
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func printIssues(w io.Writer, logger *zap.Logger, issues []tt.Issue, isJSON bool, jsonOutput string) {
	issuesByFile := make(map[string][]tt.Issue)
	for _, issue := range issues {
		issuesByFile[issue.Filename] = append(issuesByFile[issue.Filename], issue)
	}

	sortedFiles := make([]string, 0, len(issuesByFile))
	for filename := range issuesByFile {
		sortedFiles = append(sortedFiles, filename)
	}
	sort.Strings(sortedFiles)

	if !isJSON {
		for _, filename := range sortedFiles {
			fileIssues := issuesByFile[filename]
			sourceCode, err := internal.ReadSourceCode(filename)
			if err != nil {
				logger.Error("Error reading source file", zap.String("file", filename), zap.Error(err))
				continue
			}
			fmt.Fprintln(w, formatter.GenerateFormattedIssue(fileIssues, sourceCode))
		}
		return
	}

	d, err := json.Marshal(issuesByFile)
	if err != nil {
		logger.Error("Error marshalling issues to JSON", zap.Error(err))
		return
	}
	if jsonOutput == "" {
		fmt.Fprintln(w, string(d))
		return
	}
	if err := os.WriteFile(jsonOutput, d, 0o644); err != nil {
		logger.Error("Error writing JSON output file", zap.Error(err))
	}
}
