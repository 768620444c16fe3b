package ast

import (
	"go/ast"
	"go/parser"
	"go/token"
	gotypes "go/types"
	"testing"

	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor/types"
)

// ruleTable is a first-match table equivalent to the instrumentor's
// defaults. The ast package cannot import its parent.
type ruleTable []types.RegexCallRule

func (rt ruleTable) Lookup(scope types.ScopeKind, method string, argCount int) (types.RegexCallRule, bool) {
	for _, r := range rt {
		if r.Scope == scope && r.HasMethod(method) && r.AcceptsArgCount(argCount) {
			return r, true
		}
	}
	return types.RegexCallRule{}, false
}

var testRules = ruleTable{
	{
		Scope:      types.ScopeStringTyped,
		Methods:    []string{"Matches", "Split", "ReplaceFirst", "ReplaceAll"},
		MinArgs:    1,
		MaxArgs:    types.Unbounded,
		PatternArg: 0,
		FlagsArg:   types.NoFlags,
	},
	{
		Scope:      types.ScopePatternClassStatic,
		Methods:    []string{"Compile", "MustCompile", "CompilePOSIX", "MustCompilePOSIX"},
		MinArgs:    1,
		MaxArgs:    2,
		PatternArg: 0,
		FlagsArg:   1,
	},
	{
		Scope:      types.ScopePatternClassStatic,
		Methods:    []string{"MatchString", "Match", "MatchReader"},
		MinArgs:    2,
		MaxArgs:    2,
		PatternArg: 0,
		FlagsArg:   types.NoFlags,
	},
}

// stubOracle answers by the source text of the expression.
type stubOracle map[string]gotypes.Type

func (o stubOracle) TypeOf(expr ast.Expr) (gotypes.Type, error) {
	if t, ok := o[gotypes.ExprString(expr)]; ok {
		return t, nil
	}
	return nil, types.ErrUnresolved
}

var (
	stringType = gotypes.Typ[gotypes.String]
	intType    = gotypes.Typ[gotypes.Int]
	textType   = gotypes.NewNamed(gotypes.NewTypeName(token.NoPos, nil, "Text", nil), gotypes.Typ[gotypes.String], nil)
)

func parseCall(t *testing.T, src string) *ast.CallExpr {
	t.Helper()
	expr, err := parser.ParseExpr(src)
	if err != nil {
		t.Fatalf("Failed to parse %q: %v", src, err)
	}
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		t.Fatalf("%q is not a call", src)
	}
	return call
}

func parseFile(t *testing.T, src string) (*token.FileSet, *ast.File) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "test.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	return fset, file
}
