package vir

import (
	"fmt"
	"strings"
)

// Expr is an immutable expression tree. The set of node types is closed:
// only the types in this file implement it.
type Expr interface {
	isExpr()
	String() string
}

// ConstKind distinguishes literal constants.
type ConstKind int

const (
	_ ConstKind = iota
	ConstInt
	ConstBool
	ConstNull
)

// Const is a literal value.
type Const struct {
	Kind  ConstKind
	Value string
}

func (Const) isExpr() {}
func (e Const) String() string {
	if e.Kind == ConstNull {
		return "null"
	}
	return e.Value
}

// PlaceExpr reads the value stored at a place.
type PlaceExpr struct {
	Place Place
}

func (PlaceExpr) isExpr() {}
func (e PlaceExpr) String() string {
	return e.Place.String()
}

// PredicateAccess is a predicate instance P(args).
type PredicateAccess struct {
	Name string
	Args []Expr
}

func (PredicateAccess) isExpr() {}
func (e PredicateAccess) String() string {
	return e.Name + "(" + joinExprs(e.Args) + ")"
}

// Old evaluates its operand in the procedure's pre-state.
type Old struct {
	Expr Expr
}

func (Old) isExpr() {}
func (e Old) String() string {
	return "old(" + e.Expr.String() + ")"
}

// LabelledOld evaluates its operand at the named program point.
type LabelledOld struct {
	Expr  Expr
	Label string
}

func (LabelledOld) isExpr() {}
func (e LabelledOld) String() string {
	return "old[" + e.Label + "](" + e.Expr.String() + ")"
}

// UnaryOpKind enumerates unary operators.
type UnaryOpKind int

const (
	OpNot UnaryOpKind = iota
	OpNeg
)

func (op UnaryOpKind) String() string {
	switch op {
	case OpNot:
		return "!"
	case OpNeg:
		return "-"
	default:
		return "?"
	}
}

// UnaryOp applies a unary operator.
type UnaryOp struct {
	Op   UnaryOpKind
	Expr Expr
}

func (UnaryOp) isExpr() {}
func (e UnaryOp) String() string {
	return e.Op.String() + e.Expr.String()
}

// BinOpKind enumerates binary operators.
type BinOpKind int

const (
	_ BinOpKind = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpImplies
)

var binOpSymbols = map[BinOpKind]string{
	OpAdd:     "+",
	OpSub:     "-",
	OpMul:     "*",
	OpDiv:     "/",
	OpMod:     "%",
	OpEq:      "==",
	OpNeq:     "!=",
	OpLt:      "<",
	OpLte:     "<=",
	OpGt:      ">",
	OpGte:     ">=",
	OpAnd:     "&&",
	OpOr:      "||",
	OpImplies: "==>",
}

func (op BinOpKind) String() string {
	if s, ok := binOpSymbols[op]; ok {
		return s
	}
	return "?"
}

// BinOpFromSymbol looks up a binary operator by its textual symbol.
func BinOpFromSymbol(sym string) (BinOpKind, bool) {
	for op, s := range binOpSymbols {
		if s == sym {
			return op, true
		}
	}
	return 0, false
}

// BinOp applies a binary operator.
type BinOp struct {
	Op    BinOpKind
	Left  Expr
	Right Expr
}

func (BinOp) isExpr() {}
func (e BinOp) String() string {
	return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
}

// Unfolding temporarily unfolds a predicate instance while evaluating Body.
type Unfolding struct {
	Name string
	Args []Expr
	Body Expr
}

func (Unfolding) isExpr() {}
func (e Unfolding) String() string {
	return "unfolding " + e.Name + "(" + joinExprs(e.Args) + ") in " + e.Body.String()
}

// PermAmount is the fractional amount carried by an accessibility predicate.
type PermAmount int

const (
	PermWrite PermAmount = iota
	PermRead
)

func (p PermAmount) String() string {
	if p == PermRead {
		return "read"
	}
	return "write"
}

// FieldAccessPredicate is acc(place, amount).
type FieldAccessPredicate struct {
	Expr Expr
	Perm PermAmount
}

func (FieldAccessPredicate) isExpr() {}
func (e FieldAccessPredicate) String() string {
	return fmt.Sprintf("acc(%s, %s)", e.Expr, e.Perm)
}

// PredicateAccessPredicate is acc(P(place), amount).
type PredicateAccessPredicate struct {
	Expr Expr
	Perm PermAmount
}

func (PredicateAccessPredicate) isExpr() {}
func (e PredicateAccessPredicate) String() string {
	return fmt.Sprintf("acc(%s, %s)", e.Expr, e.Perm)
}

// MagicWand is Left --* Right.
type MagicWand struct {
	Left  Expr
	Right Expr
}

func (MagicWand) isExpr() {}
func (e MagicWand) String() string {
	return "(" + e.Left.String() + " --* " + e.Right.String() + ")"
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// AsPlace returns the place of a bare place expression.
func AsPlace(e Expr) (Place, bool) {
	if pe, ok := e.(PlaceExpr); ok {
		return pe.Place, true
	}
	return Place{}, false
}

// AsOldPlace returns the place of a place expression, possibly wrapped
// in a single old or labelled-old.
func AsOldPlace(e Expr) (Place, bool) {
	switch x := e.(type) {
	case PlaceExpr:
		return x.Place, true
	case Old:
		return AsPlace(x.Expr)
	case LabelledOld:
		return AsPlace(x.Expr)
	default:
		return Place{}, false
	}
}
