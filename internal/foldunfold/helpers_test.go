package foldunfold

import (
	"go/token"

	"go.uber.org/zap"

	"github.com/gnolang/permcheck/internal/perm"
	"github.com/gnolang/permcheck/internal/vir"
)

var (
	nodeType = vir.RefType("Node")
	pType    = vir.RefType("P")

	x = vir.NewPlace(vir.LocalVar{Name: "x", Type: nodeType})
	y = vir.NewPlace(vir.LocalVar{Name: "y", Type: nodeType})
	a = vir.NewPlace(vir.LocalVar{Name: "a", Type: pType})
	b = vir.NewPlace(vir.LocalVar{Name: "b", Type: pType})

	selfNode = vir.LocalVar{Name: "self", Type: nodeType}
	selfP    = vir.LocalVar{Name: "self", Type: pType}
)

func val(p vir.Place) vir.Place  { return p.Field("val", vir.IntType()) }
func next(p vir.Place) vir.Place { return p.Field("next", nodeType) }
func fld(p vir.Place) vir.Place  { return p.Field("f", vir.IntType()) }

func place(p vir.Place) vir.Expr { return vir.PlaceExpr{Place: p} }

func acc(p vir.Place) vir.Expr {
	return vir.FieldAccessPredicate{Expr: place(p), Perm: vir.PermWrite}
}

func predAccess(name string, p vir.Place) vir.PredicateAccess {
	return vir.PredicateAccess{Name: name, Args: []vir.Expr{place(p)}}
}

func accPred(name string, p vir.Place) vir.Expr {
	return vir.PredicateAccessPredicate{Expr: predAccess(name, p), Perm: vir.PermWrite}
}

func and(exprs ...vir.Expr) vir.Expr {
	out := exprs[len(exprs)-1]
	for i := len(exprs) - 2; i >= 0; i-- {
		out = vir.BinOp{Op: vir.OpAnd, Left: exprs[i], Right: out}
	}
	return out
}

func intConst(v string) vir.Expr { return vir.Const{Kind: vir.ConstInt, Value: v} }

func at(line int) token.Position {
	return token.Position{Filename: "list.vir.yaml", Line: line, Column: 5}
}

// testPredicates declares
//
//	Node(self) = acc(self.val) && acc(self.next) && acc(Node(self.next))
//	P(self)    = acc(self.f)
//	Opaque(self), abstract
func testPredicates() vir.PredicateTable {
	selfN := vir.NewPlace(selfNode)
	return vir.PredicateTable{
		"Node": {
			Name: "Node",
			Self: selfNode,
			Body: and(acc(val(selfN)), acc(next(selfN)), accPred("Node", next(selfN))),
		},
		"P": {
			Name: "P",
			Self: selfP,
			Body: acc(fld(vir.NewPlace(selfP))),
		},
		"Opaque": {
			Name: "Opaque",
			Self: vir.LocalVar{Name: "self", Type: vir.RefType("Opaque")},
		},
	}
}

func unfoldedNode(p vir.Place) perm.Set {
	return perm.NewSet(perm.AccOf(val(p)), perm.AccOf(next(p)), perm.PredOf(next(p)))
}

func testFolder(held ...perm.Permission) *folder {
	return newFolder(newCalculus(testPredicates()), perm.NewSet(held...), zap.NewNop())
}
