package oracle

import (
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"io"
	"log"

	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor/types"
)

const (
	ResolverFile     = "file"
	ResolverPackages = "packages"
	ResolverNone     = "none"
)

// Unit is one parsed file with the oracle that answers for it.
type Unit struct {
	Fset   *token.FileSet
	File   *ast.File
	Oracle types.TypeOracle
	// TypeErrors are collected while checking. They never fail a load.
	TypeErrors []error
}

// Loader parses a file and prepares type information for it. An error
// means the source could not be parsed.
type Loader interface {
	Load(path string, src []byte) (*Unit, error)
}

func NewLoader(resolver string, logger *log.Logger) (Loader, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	switch resolver {
	case "", ResolverFile:
		return NewFileLoader(nil), nil
	case ResolverPackages:
		return NewPackagesLoader(NewFileLoader(nil), logger), nil
	case ResolverNone:
		return NewSyntaxLoader(), nil
	}
	return nil, fmt.Errorf("unknown resolver %q (want %q, %q or %q)", resolver, ResolverFile, ResolverPackages, ResolverNone)
}

// infoOracle answers from the results of a go/types check.
type infoOracle struct {
	info *gotypes.Info
}

func NewInfoOracle(info *gotypes.Info) types.TypeOracle {
	return &infoOracle{info: info}
}

func (o *infoOracle) TypeOf(expr ast.Expr) (gotypes.Type, error) {
	if o.info == nil || expr == nil {
		return nil, unresolved(expr)
	}
	t := o.info.TypeOf(expr)
	if t == nil {
		return nil, unresolved(expr)
	}
	if basic, ok := t.(*gotypes.Basic); ok && basic.Kind() == gotypes.Invalid {
		return nil, unresolved(expr)
	}
	return t, nil
}

type noneOracle struct{}

func (noneOracle) TypeOf(expr ast.Expr) (gotypes.Type, error) {
	return nil, unresolved(expr)
}

func unresolved(expr ast.Expr) error {
	if expr == nil {
		return types.ErrUnresolved
	}
	return fmt.Errorf("%w: %s", types.ErrUnresolved, gotypes.ExprString(expr))
}

func newInfo() *gotypes.Info {
	return &gotypes.Info{
		Types: make(map[ast.Expr]gotypes.TypeAndValue),
		Defs:  make(map[*ast.Ident]gotypes.Object),
		Uses:  make(map[*ast.Ident]gotypes.Object),
	}
}
