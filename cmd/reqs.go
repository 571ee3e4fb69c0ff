package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/permcheck/internal/foldunfold"
	"github.com/gnolang/permcheck/internal/loader"
	"github.com/gnolang/permcheck/internal/vir"
)

var reqsProc string

var reqsCmd = &cobra.Command{
	Use:   "reqs [file]",
	Short: "Print the permissions each statement requires and grants",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRequirements(os.Stdout, args[0], reqsProc); err != nil {
			logger.Error("Requirement listing failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	reqsCmd.Flags().StringVar(&reqsProc, "proc", "", "Only list this procedure")
}

func runRequirements(w io.Writer, path, only string) error {
	prog, err := loader.Load(path)
	if err != nil {
		return err
	}
	preds := prog.Predicates

	found := false
	for _, proc := range prog.Procedures {
		if only != "" && proc.Name != only {
			continue
		}
		found = true
		fmt.Fprintf(w, "procedure %s\n", proc.Name)
		for _, b := range proc.Blocks {
			seq, err := foldunfold.RequiredSequence(b.Stmts, preds)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", proc.Name, b.Label, err)
			}
			fmt.Fprintf(w, "  %s: requires %s\n", b.Label, seq)
			for _, s := range b.Stmts {
				if err := writeStmtRequirements(w, s, preds); err != nil {
					return fmt.Errorf("%s: %w", s.Pos(), err)
				}
			}
		}
	}
	if only != "" && !found {
		return fmt.Errorf("procedure not found: %s", only)
	}
	return nil
}

func writeStmtRequirements(w io.Writer, s vir.Stmt, preds vir.PredicateTable) error {
	required, err := foldunfold.RequiredStmtPermissions(s, preds)
	if err != nil {
		return err
	}
	granted, err := foldunfold.GrantedStmtPermissions(s, preds)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "    %s\n", s)
	fmt.Fprintf(w, "      requires: %s\n", required)
	fmt.Fprintf(w, "      grants:   %s\n", granted)

	if e, ok := stmtExpr(s); ok {
		reads, err := foldunfold.RequiredPermissions(e, preds)
		if err != nil {
			return err
		}
		access, err := foldunfold.AccessPlaces(e, preds)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "      reads:    %s\n", reads)
		fmt.Fprintf(w, "      accesses: %s\n", access)
	}
	return nil
}

func stmtExpr(s vir.Stmt) (vir.Expr, bool) {
	switch s := s.(type) {
	case vir.Inhale:
		return s.Expr, true
	case vir.Exhale:
		return s.Expr, true
	case vir.Assert:
		return s.Expr, true
	case vir.Obtain:
		return s.Expr, true
	case vir.Assign:
		return s.Value, true
	}
	return nil, false
}
