package loader

import (
	"fmt"
	"go/token"
	"strings"

	"github.com/gnolang/permcheck/internal/vir"
)

type stmtParser struct {
	exprParser
	fields map[string]vir.Type
}

// parseStmt parses one statement:
//
//	// text
//	label NAME
//	inhale E | exhale E | assert E | obtain E
//	fold (P x) | unfold (P x)
//	PLACE := E
//	new x f1 f2 ...
//	call m E... [-> t1 t2 ...]
func (p *stmtParser) parseStmt(src string, pos token.Position) (vir.Stmt, error) {
	src = strings.TrimSpace(src)
	if text, ok := strings.CutPrefix(src, "//"); ok {
		return vir.Comment{Text: strings.TrimSpace(text), Position: pos}, nil
	}
	if lhs, rhs, ok := strings.Cut(src, ":="); ok {
		return p.assign(strings.TrimSpace(lhs), rhs, pos)
	}

	keyword, rest, _ := strings.Cut(src, " ")
	rest = strings.TrimSpace(rest)
	switch keyword {
	case "label":
		if rest == "" || strings.ContainsAny(rest, " ()") {
			return nil, fmt.Errorf("label expects a name: %q", src)
		}
		return vir.Label{Name: rest, Position: pos}, nil

	case "inhale", "exhale", "assert", "obtain":
		e, err := p.parseExpr(rest)
		if err != nil {
			return nil, err
		}
		switch keyword {
		case "inhale":
			return vir.Inhale{Expr: e, Position: pos}, nil
		case "exhale":
			return vir.Exhale{Expr: e, Position: pos}, nil
		case "assert":
			return vir.Assert{Expr: e, Position: pos}, nil
		default:
			return vir.Obtain{Expr: e, Position: pos}, nil
		}

	case "fold", "unfold":
		e, err := p.parseExpr(rest)
		if err != nil {
			return nil, err
		}
		call, ok := e.(vir.PredicateAccess)
		if !ok {
			return nil, fmt.Errorf("%s expects a predicate instance: %q", keyword, src)
		}
		if keyword == "fold" {
			return vir.Fold{Pred: call.Name, Args: call.Args, Position: pos}, nil
		}
		return vir.Unfold{Pred: call.Name, Args: call.Args, Position: pos}, nil

	case "new":
		return p.newStmt(rest, pos)

	case "call":
		return p.call(rest, pos)
	}
	return nil, fmt.Errorf("unknown statement %q", src)
}

func (p *stmtParser) assign(lhs, rhs string, pos token.Position) (vir.Stmt, error) {
	target, err := p.scope.place(lhs)
	if err != nil {
		return nil, err
	}
	value, err := p.parseExpr(rhs)
	if err != nil {
		return nil, err
	}
	return vir.Assign{Target: target, Value: value, Position: pos}, nil
}

func (p *stmtParser) newStmt(rest string, pos token.Position) (vir.Stmt, error) {
	words := strings.Fields(rest)
	if len(words) == 0 {
		return nil, fmt.Errorf("new expects a target")
	}
	target, err := p.scope.local(words[0])
	if err != nil {
		return nil, err
	}
	s := vir.New{Target: target, Position: pos}
	for _, name := range words[1:] {
		t, ok := p.fields[name]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		s.Fields = append(s.Fields, vir.Projection{Kind: vir.ProjField, Name: name, Type: t})
	}
	return s, nil
}

func (p *stmtParser) call(rest string, pos token.Position) (vir.Stmt, error) {
	args, targets, _ := strings.Cut(rest, "->")
	es, err := parseSexprs(args)
	if err != nil {
		return nil, err
	}
	if len(es) == 0 || es[0].isList {
		return nil, fmt.Errorf("call expects a method name")
	}
	s := vir.MethodCall{Method: es[0].atom, Position: pos}
	if s.Args, err = p.exprs(es[1:]); err != nil {
		return nil, err
	}
	for _, name := range strings.Fields(targets) {
		t, err := p.scope.local(name)
		if err != nil {
			return nil, err
		}
		s.Targets = append(s.Targets, t)
	}
	return s, nil
}
