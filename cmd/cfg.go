package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/permcheck/internal/analysis/cfg"
	"github.com/gnolang/permcheck/internal/loader"
	"github.com/gnolang/permcheck/verify"
)

// variable for flags
var (
	procName string
	dotOut   bool
	output   string
)

var cfgCmd = &cobra.Command{
	Use:   "cfg [file]",
	Short: "Show the annotated control flow graph of a procedure",
	Long: `Runs the fold/unfold analysis on one procedure and prints the procedure with
the inserted operations, or its control flow graph in GraphViz format.
Example) permcheck cfg --proc bump --dot -o bump.svg list.vir.yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCFGAnalysis(os.Stdout, logger, args[0], procName, dotOut, output); err != nil {
			logger.Error("CFG analysis failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	cfgCmd.Flags().StringVar(&procName, "proc", "", "Procedure to analyse")
	cfgCmd.Flags().BoolVar(&dotOut, "dot", false, "Emit GraphViz instead of the annotated listing")
	cfgCmd.Flags().StringVarP(&output, "output", "o", "", "Output path for the rendered GraphViz file")
	_ = cfgCmd.MarkFlagRequired("proc")
}

func runCFGAnalysis(w io.Writer, logger *zap.Logger, path, name string, dot bool, output string) error {
	prog, err := loader.Load(path)
	if err != nil {
		return err
	}
	proc, ok := prog.Procedure(name)
	if !ok {
		return fmt.Errorf("procedure not found: %s", name)
	}

	engine, err := verify.New(logger, cfgFile)
	if err != nil {
		return err
	}
	res, _, err := engine.Analyze(prog, proc)
	if err != nil {
		return err
	}

	if !dot {
		fmt.Fprint(w, res.String())
		for _, f := range res.Failures {
			fmt.Fprintf(w, "%s: %s: %s\n", f.Position, f.Kind, f.Message)
		}
		return nil
	}

	var buf bytes.Buffer
	res.Dot(&buf)
	if output == "" {
		_, err := w.Write(buf.Bytes())
		return err
	}
	if err := cfg.RenderToGraphVizFile(buf.Bytes(), output); err != nil {
		return fmt.Errorf("failed to render CFG to GraphViz file: %w", err)
	}
	fmt.Fprintf(w, "GraphViz file created: %s\n", output)
	return nil
}
