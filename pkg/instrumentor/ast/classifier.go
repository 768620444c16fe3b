package ast

import (
	"go/ast"

	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor/types"
)

// Classifier decides whether a call defines a regex and which argument
// carries the pattern. It has no side effects; the oracle is only queried.
type Classifier struct {
	rules  types.RuleTable
	policy types.ReceiverPolicy
	oracle types.TypeOracle
	file   *ast.File
}

// NewClassifier returns a classifier for calls inside file. A nil oracle
// behaves as one that never resolves; a nil policy never matches.
func NewClassifier(rules types.RuleTable, policy types.ReceiverPolicy, oracle types.TypeOracle, file *ast.File) *Classifier {
	return &Classifier{
		rules:  rules,
		policy: policy,
		oracle: oracle,
		file:   file,
	}
}

func (c *Classifier) Classify(call *ast.CallExpr) (types.Match, bool) {
	if call == nil || c.rules == nil {
		return types.Match{}, false
	}

	sel, ok := selectorOf(call)
	if !ok {
		// Unqualified calls, dot-imported functions included, have no scope.
		return types.Match{}, false
	}

	scope := c.ScopeOf(sel.X)
	if scope == types.ScopeUnknown {
		return types.Match{}, false
	}

	rule, ok := c.rules.Lookup(scope, sel.Sel.Name, len(call.Args))
	if !ok {
		return types.Match{}, false
	}

	// f(prefix, rest...) hides the real argument count behind a slice.
	if call.Ellipsis.IsValid() && rule.PatternArg >= len(call.Args)-1 {
		return types.Match{}, false
	}

	flags := types.NoFlags
	if rule.FlagsArg != types.NoFlags && rule.FlagsArg < len(call.Args) {
		flags = rule.FlagsArg
	}

	return types.Match{
		Scope:      scope,
		PatternArg: rule.PatternArg,
		FlagsArg:   flags,
		Rule:       rule,
	}, true
}

// ScopeOf classifies a receiver expression. String-typed receivers are
// checked first; only then is the receiver policy asked whether the name
// denotes the pattern compiler package.
func (c *Classifier) ScopeOf(receiver ast.Expr) types.ScopeKind {
	if receiver == nil {
		return types.ScopeUnknown
	}
	receiver = ast.Unparen(receiver)

	switch r := receiver.(type) {
	case *ast.BasicLit:
		if isStringLiteral(r) {
			return types.ScopeStringTyped
		}
	case *ast.Ident, *ast.CallExpr:
		if c.resolvesToString(r) {
			return types.ScopeStringTyped
		}
	}

	if c.policy != nil && c.policy.IsPatternClass(receiver, c.file) {
		return types.ScopePatternClassStatic
	}
	return types.ScopeUnknown
}

// resolvesToString treats every oracle failure as "not a string".
func (c *Classifier) resolvesToString(expr ast.Expr) bool {
	if c.oracle == nil {
		return false
	}
	t, err := c.oracle.TypeOf(expr)
	if err != nil {
		return false
	}
	return isStringType(t)
}
