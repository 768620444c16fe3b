package types

import (
	"errors"
	"fmt"
	"go/ast"
	gotypes "go/types"

	"gopkg.in/yaml.v3"
)

// ScopeKind classifies the receiver of a method call.
type ScopeKind string

const (
	ScopeStringTyped        ScopeKind = "string"
	ScopePatternClassStatic ScopeKind = "pattern_class"
	ScopeUnknown            ScopeKind = "unknown"
)

func (k ScopeKind) Valid() bool {
	switch k {
	case ScopeStringTyped, ScopePatternClassStatic, ScopeUnknown:
		return true
	}
	return false
}

// Unbounded is the MaxArgs value for rules without an upper argument bound.
const Unbounded = -1

// NoFlags is the FlagsArg value for rules whose calls carry no flags argument.
const NoFlags = -1

// RegexCallRule maps a receiver kind, a method name and an argument count to
// the position of the pattern argument.
type RegexCallRule struct {
	// Scope is the receiver kind the rule applies to.
	Scope ScopeKind `yaml:"scope"`

	// Methods lists the method names covered by the rule.
	// Example: []string{"Compile", "MustCompile"}
	Methods []string `yaml:"methods"`

	// MinArgs and MaxArgs bound the argument count, inclusive.
	// MaxArgs of Unbounded means any count >= MinArgs.
	MinArgs int `yaml:"min_args"`
	MaxArgs int `yaml:"max_args"`

	// PatternArg is the index of the argument holding the pattern.
	PatternArg int `yaml:"pattern_arg"`

	// FlagsArg is the index of an optional flags argument, NoFlags if none.
	// The flags argument is never rewritten; its source text is logged.
	FlagsArg int `yaml:"flags_arg"`
}

// UnmarshalYAML defaults omitted max_args to Unbounded and omitted flags_arg
// to NoFlags.
func (r *RegexCallRule) UnmarshalYAML(value *yaml.Node) error {
	type plain RegexCallRule
	p := plain{MaxArgs: Unbounded, FlagsArg: NoFlags}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*r = RegexCallRule(p)
	return nil
}

func (r RegexCallRule) Validate() error {
	if !r.Scope.Valid() || r.Scope == ScopeUnknown {
		return fmt.Errorf("rule scope %q is not one of %q, %q", r.Scope, ScopeStringTyped, ScopePatternClassStatic)
	}
	if len(r.Methods) == 0 {
		return fmt.Errorf("rule for scope %q lists no methods", r.Scope)
	}
	if r.PatternArg < 0 {
		return fmt.Errorf("rule %v: pattern_arg must not be negative", r.Methods)
	}
	if r.MinArgs <= r.PatternArg {
		return fmt.Errorf("rule %v: min_args %d does not cover pattern_arg %d", r.Methods, r.MinArgs, r.PatternArg)
	}
	if r.MaxArgs != Unbounded && r.MaxArgs < r.MinArgs {
		return fmt.Errorf("rule %v: max_args %d is below min_args %d", r.Methods, r.MaxArgs, r.MinArgs)
	}
	if r.FlagsArg == r.PatternArg {
		return fmt.Errorf("rule %v: flags_arg and pattern_arg are both %d", r.Methods, r.FlagsArg)
	}
	return nil
}

func (r RegexCallRule) AcceptsArgCount(n int) bool {
	if n < r.MinArgs {
		return false
	}
	return r.MaxArgs == Unbounded || n <= r.MaxArgs
}

func (r RegexCallRule) HasMethod(name string) bool {
	for _, m := range r.Methods {
		if m == name {
			return true
		}
	}
	return false
}

// Match is a positive classification.
type Match struct {
	Scope      ScopeKind
	PatternArg int
	// FlagsArg is NoFlags when the rule has no flags argument or the call
	// does not supply one.
	FlagsArg int
	Rule     RegexCallRule
}

// ErrUnresolved is returned by a TypeOracle when the static type of an
// expression is not available.
var ErrUnresolved = errors.New("unresolved symbol")

// TypeOracle answers static type queries for expressions of the file being
// instrumented.
type TypeOracle interface {
	TypeOf(expr ast.Expr) (gotypes.Type, error)
}

// ReceiverPolicy decides by name whether a receiver denotes the pattern
// compiler package.
type ReceiverPolicy interface {
	Name() string
	IsPatternClass(receiver ast.Expr, file *ast.File) bool
}

// RuleTable allows AST operations to work without importing the concrete
// Registry type.
type RuleTable interface {
	Lookup(scope ScopeKind, method string, argCount int) (RegexCallRule, bool)
}
