package vir

import (
	"go/token"
	"strings"
)

// StmtKind names a statement kind in diagnostics.
type StmtKind int

const (
	_ StmtKind = iota
	KindComment
	KindLabel
	KindInhale
	KindExhale
	KindAssert
	KindAssign
	KindFold
	KindUnfold
	KindObtain
	KindMethodCall
	KindNew
)

func (k StmtKind) String() string {
	switch k {
	case KindComment:
		return "comment"
	case KindLabel:
		return "label"
	case KindInhale:
		return "inhale"
	case KindExhale:
		return "exhale"
	case KindAssert:
		return "assert"
	case KindAssign:
		return "assign"
	case KindFold:
		return "fold"
	case KindUnfold:
		return "unfold"
	case KindObtain:
		return "obtain"
	case KindMethodCall:
		return "call"
	case KindNew:
		return "new"
	default:
		return "unknown"
	}
}

// Stmt is a statement of a procedure body. Like Expr, the set of
// implementations is closed.
type Stmt interface {
	isStmt()
	Kind() StmtKind
	Pos() token.Position
	String() string
}

type Comment struct {
	Text     string
	Position token.Position
}

func (Comment) isStmt()               {}
func (Comment) Kind() StmtKind        { return KindComment }
func (s Comment) Pos() token.Position { return s.Position }
func (s Comment) String() string      { return "// " + s.Text }

// Label marks a program point that labelled-old expressions may refer to.
type Label struct {
	Name     string
	Position token.Position
}

func (Label) isStmt()               {}
func (Label) Kind() StmtKind        { return KindLabel }
func (s Label) Pos() token.Position { return s.Position }
func (s Label) String() string      { return "label " + s.Name }

type Inhale struct {
	Expr     Expr
	Position token.Position
}

func (Inhale) isStmt()               {}
func (Inhale) Kind() StmtKind        { return KindInhale }
func (s Inhale) Pos() token.Position { return s.Position }
func (s Inhale) String() string      { return "inhale " + s.Expr.String() }

type Exhale struct {
	Expr     Expr
	Position token.Position
}

func (Exhale) isStmt()               {}
func (Exhale) Kind() StmtKind        { return KindExhale }
func (s Exhale) Pos() token.Position { return s.Position }
func (s Exhale) String() string      { return "exhale " + s.Expr.String() }

type Assert struct {
	Expr     Expr
	Position token.Position
}

func (Assert) isStmt()               {}
func (Assert) Kind() StmtKind        { return KindAssert }
func (s Assert) Pos() token.Position { return s.Position }
func (s Assert) String() string      { return "assert " + s.Expr.String() }

// Assign writes Value into Target.
type Assign struct {
	Target   Place
	Value    Expr
	Position token.Position
}

func (Assign) isStmt()               {}
func (Assign) Kind() StmtKind        { return KindAssign }
func (s Assign) Pos() token.Position { return s.Position }
func (s Assign) String() string      { return s.Target.String() + " := " + s.Value.String() }

// Fold packs the permissions of Args[0] into a predicate instance.
type Fold struct {
	Pred     string
	Args     []Expr
	Position token.Position
}

func (Fold) isStmt()               {}
func (Fold) Kind() StmtKind        { return KindFold }
func (s Fold) Pos() token.Position { return s.Position }
func (s Fold) String() string      { return "fold " + s.Pred + "(" + joinExprs(s.Args) + ")" }

// Unfold replaces a predicate instance with its body.
type Unfold struct {
	Pred     string
	Args     []Expr
	Position token.Position
}

func (Unfold) isStmt()               {}
func (Unfold) Kind() StmtKind        { return KindUnfold }
func (s Unfold) Pos() token.Position { return s.Position }
func (s Unfold) String() string      { return "unfold " + s.Pred + "(" + joinExprs(s.Args) + ")" }

// Obtain asks for the permissions of Expr to be made available here.
type Obtain struct {
	Expr     Expr
	Position token.Position
}

func (Obtain) isStmt()               {}
func (Obtain) Kind() StmtKind        { return KindObtain }
func (s Obtain) Pos() token.Position { return s.Position }
func (s Obtain) String() string      { return "obtain " + s.Expr.String() }

// MethodCall calls a method whose contract is encoded by surrounding
// exhale/inhale statements; the targets receive the results.
type MethodCall struct {
	Method   string
	Args     []Expr
	Targets  []LocalVar
	Position token.Position
}

func (MethodCall) isStmt()               {}
func (MethodCall) Kind() StmtKind        { return KindMethodCall }
func (s MethodCall) Pos() token.Position { return s.Position }
func (s MethodCall) String() string {
	targets := make([]string, len(s.Targets))
	for i, t := range s.Targets {
		targets[i] = t.Name
	}
	out := s.Method + "(" + joinExprs(s.Args) + ")"
	if len(targets) > 0 {
		out = strings.Join(targets, ", ") + " := " + out
	}
	return out
}

// New allocates a fresh object in Target with the listed fields.
type New struct {
	Target   LocalVar
	Fields   []Projection
	Position token.Position
}

func (New) isStmt()               {}
func (New) Kind() StmtKind        { return KindNew }
func (s New) Pos() token.Position { return s.Position }
func (s New) String() string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return s.Target.Name + " := new(" + strings.Join(names, ", ") + ")"
}

// FieldPlaces returns the places of the allocated fields.
func (s New) FieldPlaces() []Place {
	root := NewPlace(s.Target)
	out := make([]Place, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = root.extend(f)
	}
	return out
}
