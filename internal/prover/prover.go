// Package prover holds the backend the annotated procedures are handed to
// once the fold/unfold analysis is done.
package prover

import (
	"context"
	"fmt"
	"go/token"

	"github.com/gnolang/permcheck/internal/foldunfold"
)

// Prover checks a finalized annotated procedure in one batch.
type Prover interface {
	Check(ctx context.Context, res *foldunfold.Result) ([]Verdict, error)
}

// Verdict is the answer for one statement or edge.
type Verdict struct {
	Procedure string
	Block     string
	Subject   string
	Position  token.Position
	OK        bool
	Reason    string
}

func (v Verdict) String() string {
	status := "ok"
	if !v.OK {
		status = "rejected: " + v.Reason
	}
	return fmt.Sprintf("%s/%s: %s: %s", v.Procedure, v.Block, v.Subject, status)
}

// Rejected returns the verdicts that did not hold.
func Rejected(verdicts []Verdict) []Verdict {
	var out []Verdict
	for _, v := range verdicts {
		if !v.OK {
			out = append(out, v)
		}
	}
	return out
}
