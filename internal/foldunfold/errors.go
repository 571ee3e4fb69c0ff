package foldunfold

import (
	"fmt"
	"go/token"

	"github.com/gnolang/permcheck/internal/perm"
	"github.com/gnolang/permcheck/internal/vir"
)

// UnsupportedError reports a construct the calculus does not model.
// It aborts the verification unit it occurs in. Position is the statement
// the construct was found in, when known.
type UnsupportedError struct {
	Construct string
	Expr      string
	Position  token.Position
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("fold/unfold does not support %s (yet): %s", e.Construct, e.Expr)
}

// InternalError reports an input shape the front end must never produce.
// It aborts the whole run and is never a verification failure.
type InternalError struct {
	Reason string
	Expr   string
	Err    error
}

func (e *InternalError) Error() string {
	msg := "internal invariant violated: " + e.Reason
	if e.Expr != "" {
		msg += ": " + e.Expr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InternalError) Unwrap() error { return e.Err }

func internalf(expr vir.Expr, err error, format string, args ...any) *InternalError {
	ie := &InternalError{Reason: fmt.Sprintf(format, args...), Err: err}
	if expr != nil {
		ie.Expr = expr.String()
	}
	return ie
}

// PermissionError is an unsatisfiable requirement: no fold/unfold sequence
// derives Perm from the held permissions.
type PermissionError struct {
	Perm     perm.Permission
	Position token.Position
	Stmt     vir.StmtKind
	Reason   string
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("missing permission %s", e.Perm)
	if e.Stmt != 0 {
		msg += " for " + e.Stmt.String()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}
