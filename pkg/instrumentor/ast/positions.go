package ast

import (
	"go/ast"
	"go/token"
	"reflect"
)

var posType = reflect.TypeOf(token.NoPos)

// rebasePositions moves every position of fragment outside the pattern
// subtree onto the pattern's extent. Nodes visited before the pattern take
// pattern.Pos(), the rest pattern.End(). Positions parsed from template text
// belong to a foreign file; rebased, the printer keeps the target's comments
// where they were relative to the pattern.
func rebasePositions(fragment ast.Node, pattern ast.Expr) {
	pos, end := pattern.Pos(), pattern.End()
	if !pos.IsValid() {
		end = token.NoPos
	}
	ast.Inspect(fragment, func(n ast.Node) bool {
		if n == nil {
			return false
		}
		if n == ast.Node(pattern) {
			pos = end
			return false
		}
		setPositions(n, pos)
		return true
	})
}

// setPositions sets the token.Pos fields of n itself, not of its children.
func setPositions(n ast.Node, pos token.Pos) {
	v := reflect.ValueOf(n)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if field.Type() == posType && field.CanSet() {
			field.SetInt(int64(pos))
		}
	}
}
