package ast

import (
	"go/ast"
	"go/token"
	gotypes "go/types"
)

func isStringLiteral(expr ast.Expr) bool {
	lit, ok := expr.(*ast.BasicLit)
	return ok && lit.Kind == token.STRING
}

// isStringType reports whether t is the built-in string type, untyped string
// constants and named types whose underlying type is string included.
func isStringType(t gotypes.Type) bool {
	if t == nil {
		return false
	}
	basic, ok := t.Underlying().(*gotypes.Basic)
	return ok && basic.Info()&gotypes.IsString != 0
}

func selectorOf(call *ast.CallExpr) (*ast.SelectorExpr, bool) {
	sel, ok := ast.Unparen(call.Fun).(*ast.SelectorExpr)
	return sel, ok
}

func methodName(call *ast.CallExpr) string {
	if sel, ok := selectorOf(call); ok {
		return sel.Sel.Name
	}
	if ident, ok := ast.Unparen(call.Fun).(*ast.Ident); ok {
		return ident.Name
	}
	return ""
}

func receiverString(call *ast.CallExpr) string {
	if sel, ok := selectorOf(call); ok {
		return gotypes.ExprString(sel.X)
	}
	return ""
}
