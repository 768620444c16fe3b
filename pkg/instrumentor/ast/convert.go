package ast

import (
	"fmt"
	"go/ast"
	"go/parser"
	gotypes "go/types"
	"strconv"
)

// conversion carries a pattern argument of a named string type, or of a
// byte slice type, through a template written for plain strings: the
// argument goes in as string(arg) and the fragment comes back as T(...).
type conversion struct {
	typ      ast.Expr
	toString bool
}

// conversionFor returns nil when the argument's type is a basic string type
// or unknown. An error means the type cannot be spelled in the file.
func (fr *fileRewriter) conversionFor(arg ast.Expr) (*conversion, error) {
	if fr.classifier == nil || fr.classifier.oracle == nil {
		return nil, nil
	}
	t, err := fr.classifier.oracle.TypeOf(arg)
	if err != nil {
		return nil, nil
	}

	switch u := gotypes.Unalias(t).(type) {
	case *gotypes.Basic:
		return nil, nil
	case *gotypes.TypeParam:
		return nil, fmt.Errorf("pattern argument has type parameter type %s", u)
	case *gotypes.Named:
		if !isStringType(u) && !isByteSlice(u.Underlying()) {
			return nil, nil
		}
	case *gotypes.Slice:
		if !isByteSlice(u) {
			return nil, nil
		}
	default:
		return nil, nil
	}

	typ, err := typeExpr(t, fr.file)
	if err != nil {
		return nil, err
	}
	return &conversion{
		typ: typ,
		// An untyped literal converts implicitly.
		toString: !isStringLiteral(ast.Unparen(arg)),
	}, nil
}

func (c *conversion) wrapArg(arg ast.Expr) ast.Expr {
	if !c.toString {
		return arg
	}
	return convertExpr(ast.NewIdent("string"), arg)
}

func (c *conversion) wrapFragment(fragment ast.Expr) ast.Expr {
	return convertExpr(c.typ, fragment)
}

func convertExpr(typ, x ast.Expr) *ast.CallExpr {
	call := &ast.CallExpr{Fun: typ, Args: []ast.Expr{x}}
	rebasePositions(call, x)
	if x.Pos().IsValid() {
		call.Rparen = x.End()
	}
	return call
}

func isByteSlice(t gotypes.Type) bool {
	slice, ok := t.(*gotypes.Slice)
	if !ok {
		return false
	}
	elem, ok := slice.Elem().Underlying().(*gotypes.Basic)
	return ok && elem.Kind() == gotypes.Byte
}

// typeExpr spells t as an expression valid inside file, using the file's
// own names for imported packages.
func typeExpr(t gotypes.Type, file *ast.File) (ast.Expr, error) {
	var missing string
	text := gotypes.TypeString(t, func(pkg *gotypes.Package) string {
		name, ok := packageQualifier(file, pkg)
		if !ok && missing == "" {
			missing = pkg.Path()
		}
		return name
	})
	if missing != "" {
		return nil, fmt.Errorf("type %s belongs to %q, which the file does not import", text, missing)
	}
	expr, err := parser.ParseExpr(text)
	if err != nil {
		return nil, fmt.Errorf("cannot spell type %s: %w", text, err)
	}
	return expr, nil
}

func packageQualifier(file *ast.File, pkg *gotypes.Package) (string, bool) {
	for _, imp := range file.Imports {
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil || importPath != pkg.Path() {
			continue
		}
		if imp.Name == nil {
			return pkg.Name(), true
		}
		switch imp.Name.Name {
		case "_":
			continue
		case ".":
			return "", true
		}
		return imp.Name.Name, true
	}
	if pkg.Name() == file.Name.Name {
		return "", true
	}
	return "", false
}
