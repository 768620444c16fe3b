package ast

import (
	"fmt"
	"go/ast"
	gotypes "go/types"
	"path"
	"strconv"
	"strings"

	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor/types"
)

const (
	PolicyNames   = "names"
	PolicyImports = "imports"
)

var (
	DefaultPatternClassNames = []string{"regexp", "regexp2"}
	DefaultPatternClassPaths = []string{"regexp", "github.com/dlclark/regexp2"}
)

// NewReceiverPolicy builds the policy selected by kind. Empty name or path
// lists fall back to the defaults.
func NewReceiverPolicy(kind string, names []string, importPaths []string) (types.ReceiverPolicy, error) {
	switch kind {
	case "", PolicyNames:
		if len(names) == 0 {
			names = DefaultPatternClassNames
		}
		return NewNamePolicy(names...), nil
	case PolicyImports:
		if len(importPaths) == 0 {
			importPaths = DefaultPatternClassPaths
		}
		return NewImportPolicy(importPaths...), nil
	}
	return nil, fmt.Errorf("unknown receiver policy %q (want %q or %q)", kind, PolicyNames, PolicyImports)
}

// namePolicy matches the receiver's source text against a fixed set of
// names. A local variable or type sharing one of the names is a false
// positive.
type namePolicy struct {
	names map[string]bool
}

func NewNamePolicy(names ...string) *namePolicy {
	p := &namePolicy{names: make(map[string]bool, len(names))}
	for _, n := range names {
		p.names[n] = true
	}
	return p
}

func (p *namePolicy) Name() string {
	return PolicyNames
}

func (p *namePolicy) IsPatternClass(receiver ast.Expr, _ *ast.File) bool {
	if receiver == nil {
		return false
	}
	return p.names[gotypes.ExprString(ast.Unparen(receiver))]
}

// importPolicy matches a receiver identifier against the local names the
// file binds to the configured import paths, so aliased imports are
// recognized. Shadowing by a local declaration is still not detected.
type importPolicy struct {
	paths map[string]bool
}

func NewImportPolicy(importPaths ...string) *importPolicy {
	p := &importPolicy{paths: make(map[string]bool, len(importPaths))}
	for _, ip := range importPaths {
		p.paths[ip] = true
	}
	return p
}

func (p *importPolicy) Name() string {
	return PolicyImports
}

func (p *importPolicy) IsPatternClass(receiver ast.Expr, file *ast.File) bool {
	ident, ok := ast.Unparen(receiver).(*ast.Ident)
	if !ok || file == nil {
		return false
	}
	for _, imp := range file.Imports {
		if imp.Path == nil {
			continue
		}
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil || !p.paths[importPath] {
			continue
		}
		if localImportName(imp, importPath) == ident.Name {
			return true
		}
	}
	return false
}

func localImportName(imp *ast.ImportSpec, importPath string) string {
	if imp.Name != nil {
		if imp.Name.Name == "_" || imp.Name.Name == "." {
			return ""
		}
		return imp.Name.Name
	}
	return importPathBase(importPath)
}

// importPathBase guesses the package name from an import path, skipping a
// trailing major version element ("/v2") and a gopkg.in ".vN" suffix.
func importPathBase(importPath string) string {
	base := path.Base(importPath)
	if isMajorVersion(base) {
		base = path.Base(path.Dir(importPath))
	}
	if i := strings.LastIndex(base, ".v"); i > 0 && isMajorVersion(base[i+1:]) {
		base = base[:i]
	}
	return base
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
