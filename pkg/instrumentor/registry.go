package instrumentor

import (
	"fmt"

	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor/types"
)

// DefaultRules is the built-in classification policy. Order matters: the
// first rule accepting a call wins.
var DefaultRules = []types.RegexCallRule{
	{
		// Named string types exposing regex helpers, e.g. s.Matches(`a.*c`).
		Scope:      types.ScopeStringTyped,
		Methods:    []string{"Matches", "Split", "ReplaceFirst", "ReplaceAll"},
		MinArgs:    1,
		MaxArgs:    types.Unbounded,
		PatternArg: 0,
		FlagsArg:   types.NoFlags,
	},
	{
		// regexp.Compile(expr) and regexp2.Compile(expr, opts).
		Scope:      types.ScopePatternClassStatic,
		Methods:    []string{"Compile", "MustCompile", "CompilePOSIX", "MustCompilePOSIX"},
		MinArgs:    1,
		MaxArgs:    2,
		PatternArg: 0,
		FlagsArg:   1,
	},
	{
		// regexp.MatchString(pattern, s) and its []byte / RuneReader forms.
		Scope:      types.ScopePatternClassStatic,
		Methods:    []string{"MatchString", "Match", "MatchReader"},
		MinArgs:    2,
		MaxArgs:    2,
		PatternArg: 0,
		FlagsArg:   types.NoFlags,
	},
}

// DefaultRegistry is built from DefaultRules at init.
var DefaultRegistry = mustRegistry(DefaultRules)

// Registry is the immutable rule table consulted by the classifier.
type Registry struct {
	rules []types.RegexCallRule
}

func NewRegistry(rules []types.RegexCallRule) (*Registry, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("rule table is empty")
	}
	copied := make([]types.RegexCallRule, len(rules))
	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rule.Methods = append([]string(nil), rule.Methods...)
		copied[i] = rule
	}
	return &Registry{rules: copied}, nil
}

func mustRegistry(rules []types.RegexCallRule) *Registry {
	r, err := NewRegistry(rules)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Lookup(scope types.ScopeKind, method string, argCount int) (types.RegexCallRule, bool) {
	for _, rule := range r.rules {
		if rule.Scope != scope || !rule.HasMethod(method) {
			continue
		}
		if rule.AcceptsArgCount(argCount) {
			return rule, true
		}
	}
	return types.RegexCallRule{}, false
}

// Rules returns a copy of the table.
func (r *Registry) Rules() []types.RegexCallRule {
	out := make([]types.RegexCallRule, len(r.rules))
	for i, rule := range r.rules {
		rule.Methods = append([]string(nil), rule.Methods...)
		out[i] = rule
	}
	return out
}
