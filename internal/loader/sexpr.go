package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gnolang/permcheck/internal/vir"
)

// sexpr is an atom or a parenthesised list.
type sexpr struct {
	atom string
	list []sexpr
	// isList distinguishes "()" from the empty atom.
	isList bool
}

func (s sexpr) String() string {
	if !s.isList {
		return s.atom
	}
	parts := make([]string, len(s.list))
	for i, e := range s.list {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func tokenize(src string) []string {
	src = strings.NewReplacer("(", " ( ", ")", " ) ").Replace(src)
	return strings.Fields(src)
}

// parseSexprs reads a sequence of s-expressions.
func parseSexprs(src string) ([]sexpr, error) {
	toks := tokenize(src)
	var out []sexpr
	for len(toks) > 0 {
		e, rest, err := parseOne(toks)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		toks = rest
	}
	return out, nil
}

func parseOne(toks []string) (sexpr, []string, error) {
	if len(toks) == 0 {
		return sexpr{}, nil, fmt.Errorf("unexpected end of expression")
	}
	switch tok := toks[0]; tok {
	case ")":
		return sexpr{}, nil, fmt.Errorf("unexpected )")
	case "(":
		list := sexpr{isList: true}
		toks = toks[1:]
		for {
			if len(toks) == 0 {
				return sexpr{}, nil, fmt.Errorf("missing )")
			}
			if toks[0] == ")" {
				return list, toks[1:], nil
			}
			var (
				e   sexpr
				err error
			)
			e, toks, err = parseOne(toks)
			if err != nil {
				return sexpr{}, nil, err
			}
			list.list = append(list.list, e)
		}
	default:
		return sexpr{atom: tok}, toks[1:], nil
	}
}

// exprParser turns s-expressions into expressions over a scope.
type exprParser struct {
	scope *scope
	preds map[string]bool
}

// parseExpr parses exactly one expression.
func (p *exprParser) parseExpr(src string) (vir.Expr, error) {
	es, err := parseSexprs(src)
	if err != nil {
		return nil, err
	}
	if len(es) != 1 {
		return nil, fmt.Errorf("expected one expression, got %d in %q", len(es), src)
	}
	return p.expr(es[0])
}

func (p *exprParser) exprs(es []sexpr) ([]vir.Expr, error) {
	out := make([]vir.Expr, len(es))
	for i, e := range es {
		x, err := p.expr(e)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (p *exprParser) expr(e sexpr) (vir.Expr, error) {
	if !e.isList {
		return p.atom(e.atom)
	}
	if len(e.list) == 0 {
		return nil, fmt.Errorf("empty expression ()")
	}
	head := e.list[0]
	if head.isList {
		return nil, fmt.Errorf("operator expected in %s", e)
	}
	args := e.list[1:]

	switch op := head.atom; op {
	case "acc":
		return p.access(e, args)

	case "old":
		switch len(args) {
		case 1:
			inner, err := p.expr(args[0])
			if err != nil {
				return nil, err
			}
			return vir.Old{Expr: inner}, nil
		case 2:
			if args[0].isList {
				return nil, fmt.Errorf("label expected in %s", e)
			}
			inner, err := p.expr(args[1])
			if err != nil {
				return nil, err
			}
			return vir.LabelledOld{Label: args[0].atom, Expr: inner}, nil
		}
		return nil, fmt.Errorf("old takes an expression and an optional label: %s", e)

	case "unfolding":
		if len(args) != 2 || !args[0].isList {
			return nil, fmt.Errorf("unfolding expects (unfolding (P x) body): %s", e)
		}
		call, err := p.predicateCall(args[0])
		if err != nil {
			return nil, err
		}
		body, err := p.expr(args[1])
		if err != nil {
			return nil, err
		}
		return vir.Unfolding{Name: call.Name, Args: call.Args, Body: body}, nil

	case "wand", "--*":
		if len(args) != 2 {
			return nil, fmt.Errorf("wand expects two operands: %s", e)
		}
		ops, err := p.exprs(args)
		if err != nil {
			return nil, err
		}
		return vir.MagicWand{Left: ops[0], Right: ops[1]}, nil

	case "not", "!":
		return p.unary(vir.OpNot, e, args)

	case "neg":
		return p.unary(vir.OpNeg, e, args)
	}

	if op, ok := vir.BinOpFromSymbol(head.atom); ok {
		if head.atom == "-" && len(args) == 1 {
			return p.unary(vir.OpNeg, e, args)
		}
		return p.binary(op, e, args)
	}

	if p.preds[head.atom] {
		return p.predicateCall(e)
	}
	return nil, fmt.Errorf("unknown operator or predicate %q in %s", head.atom, e)
}

func (p *exprParser) unary(op vir.UnaryOpKind, e sexpr, args []sexpr) (vir.Expr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s expects one operand: %s", op, e)
	}
	inner, err := p.expr(args[0])
	if err != nil {
		return nil, err
	}
	return vir.UnaryOp{Op: op, Expr: inner}, nil
}

// binary folds conjunctions and disjunctions to the right and the other
// associative operators to the left.
func (p *exprParser) binary(op vir.BinOpKind, e sexpr, args []sexpr) (vir.Expr, error) {
	n := len(args)
	variadic := op == vir.OpAnd || op == vir.OpOr || op == vir.OpAdd || op == vir.OpMul
	if n < 2 || (!variadic && n != 2) {
		return nil, fmt.Errorf("%s expects two operands: %s", op, e)
	}
	ops, err := p.exprs(args)
	if err != nil {
		return nil, err
	}
	if op == vir.OpAnd || op == vir.OpOr {
		out := ops[n-1]
		for i := n - 2; i >= 0; i-- {
			out = vir.BinOp{Op: op, Left: ops[i], Right: out}
		}
		return out, nil
	}
	out := ops[0]
	for _, r := range ops[1:] {
		out = vir.BinOp{Op: op, Left: out, Right: r}
	}
	return out, nil
}

// access parses (acc place [read]) and (acc (P x) [read]).
func (p *exprParser) access(e sexpr, args []sexpr) (vir.Expr, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("acc expects a place or predicate and an optional amount: %s", e)
	}
	amount := vir.PermWrite
	if len(args) == 2 {
		switch args[1].atom {
		case "write":
		case "read":
			amount = vir.PermRead
		default:
			return nil, fmt.Errorf("unknown permission amount %s", args[1])
		}
	}

	target := args[0]
	if target.isList && len(target.list) > 0 && !target.list[0].isList && p.preds[target.list[0].atom] {
		call, err := p.predicateCall(target)
		if err != nil {
			return nil, err
		}
		return vir.PredicateAccessPredicate{Expr: call, Perm: amount}, nil
	}
	inner, err := p.expr(target)
	if err != nil {
		return nil, err
	}
	return vir.FieldAccessPredicate{Expr: inner, Perm: amount}, nil
}

func (p *exprParser) predicateCall(e sexpr) (vir.PredicateAccess, error) {
	name := e.list[0].atom
	if !p.preds[name] {
		return vir.PredicateAccess{}, fmt.Errorf("unknown predicate %q", name)
	}
	args, err := p.exprs(e.list[1:])
	if err != nil {
		return vir.PredicateAccess{}, err
	}
	return vir.PredicateAccess{Name: name, Args: args}, nil
}

func (p *exprParser) atom(tok string) (vir.Expr, error) {
	switch tok {
	case "true", "false":
		return vir.Const{Kind: vir.ConstBool, Value: tok}, nil
	case "null":
		return vir.Const{Kind: vir.ConstNull}, nil
	}
	if _, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return vir.Const{Kind: vir.ConstInt, Value: tok}, nil
	}
	place, err := p.scope.place(tok)
	if err != nil {
		return nil, err
	}
	return vir.PlaceExpr{Place: place}, nil
}
