package ast

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strconv"

	"golang.org/x/tools/go/ast/astutil"
)

const (
	PlaceholderRegexp = "REGEXP"
	PlaceholderSource = "SOURCEF"
	PlaceholderOutput = "OUTPUT_FILE"
	PlaceholderFlags  = "FLAGS"

	// UnknownFlags is logged for calls without a flags argument.
	UnknownFlags = "UNKNOWN"
)

// TemplateImport is an import the fragment depends on. Name is empty for
// unaliased imports.
type TemplateImport struct {
	Name string
	Path string
}

// Template is an immutable instrumentation fragment. The text is parsed
// again for every instantiation so each call site owns its fragment.
type Template struct {
	name    string
	text    string
	isFile  bool
	imports []TemplateImport
}

// LoadTemplate validates text and returns the template. Text is either a Go
// file holding imports and exactly one "var _ = <expr>" declaration, or a
// bare Go expression.
func LoadTemplate(name, text string) (*Template, error) {
	t := &Template{
		name:   name,
		text:   text,
		isFile: startsWithPackageClause(text),
	}

	fragment, imports, err := t.parse()
	if err != nil {
		return nil, err
	}

	if n := countPlaceholder(fragment, PlaceholderRegexp); n > 1 {
		return nil, fmt.Errorf("template %s: placeholder %q appears %d times, the pattern expression would be evaluated more than once", name, PlaceholderRegexp, n)
	}

	t.imports = imports
	return t, nil
}

func (t *Template) Name() string {
	return t.name
}

func (t *Template) Imports() []TemplateImport {
	return append([]TemplateImport(nil), t.imports...)
}

// Instantiate builds a fresh fragment around pattern. The REGEXP literal is
// replaced by pattern itself, so the fragment evaluates it exactly once.
func (t *Template) Instantiate(pattern ast.Expr, sourcePath, outputPath, flags string) (ast.Expr, error) {
	fragment, _, err := t.parse()
	if err != nil {
		return nil, err
	}
	// Post-order only: a replaced node is never searched again, so a user
	// pattern that happens to spell a placeholder survives.
	result := astutil.Apply(fragment, nil, func(c *astutil.Cursor) bool {
		lit, ok := c.Node().(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			return true
		}
		value, err := strconv.Unquote(lit.Value)
		if err != nil {
			return true
		}
		switch value {
		case PlaceholderRegexp:
			c.Replace(pattern)
		case PlaceholderSource:
			c.Replace(newStringLit(sourcePath))
		case PlaceholderOutput:
			c.Replace(newStringLit(outputPath))
		case PlaceholderFlags:
			c.Replace(newStringLit(flags))
		}
		return true
	})

	expr, ok := result.(ast.Expr)
	if !ok {
		return nil, fmt.Errorf("template %s: instantiation produced %T, not an expression", t.name, result)
	}
	rebasePositions(expr, pattern)
	return expr, nil
}

func (t *Template) parse() (ast.Expr, []TemplateImport, error) {
	if !t.isFile {
		expr, err := parser.ParseExpr(t.text)
		if err != nil {
			return nil, nil, fmt.Errorf("template %s: %w", t.name, err)
		}
		return expr, nil, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, t.name, t.text, parser.SkipObjectResolution)
	if err != nil {
		return nil, nil, fmt.Errorf("template %s: %w", t.name, err)
	}

	var fragment ast.Expr
	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok {
			return nil, nil, fmt.Errorf("template %s: unexpected %T, only imports and one var _ = <expr> are allowed", t.name, decl)
		}
		if genDecl.Tok == token.IMPORT {
			continue
		}
		if genDecl.Tok != token.VAR {
			return nil, nil, fmt.Errorf("template %s: unexpected %s declaration", t.name, genDecl.Tok)
		}
		for _, spec := range genDecl.Specs {
			valueSpec := spec.(*ast.ValueSpec)
			if len(valueSpec.Names) != 1 || valueSpec.Names[0].Name != "_" || len(valueSpec.Values) != 1 {
				return nil, nil, fmt.Errorf("template %s: fragment must be declared as var _ = <expr>", t.name)
			}
			if fragment != nil {
				return nil, nil, fmt.Errorf("template %s: more than one fragment declared", t.name)
			}
			fragment = valueSpec.Values[0]
		}
	}
	if fragment == nil {
		return nil, nil, fmt.Errorf("template %s: no var _ = <expr> fragment found", t.name)
	}

	var imports []TemplateImport
	for _, imp := range file.Imports {
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("template %s: bad import path %s: %w", t.name, imp.Path.Value, err)
		}
		ti := TemplateImport{Path: importPath}
		if imp.Name != nil {
			ti.Name = imp.Name.Name
		}
		imports = append(imports, ti)
	}

	return fragment, imports, nil
}

// startsWithPackageClause reports whether the first token of text, comments
// skipped, is the package keyword.
func startsWithPackageClause(text string) bool {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(text))
	var s scanner.Scanner
	s.Init(file, []byte(text), nil, 0)
	_, tok, _ := s.Scan()
	return tok == token.PACKAGE
}

func countPlaceholder(node ast.Node, placeholder string) int {
	count := 0
	ast.Inspect(node, func(n ast.Node) bool {
		lit, ok := n.(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			return true
		}
		if value, err := strconv.Unquote(lit.Value); err == nil && value == placeholder {
			count++
		}
		return true
	})
	return count
}

func newStringLit(value string) *ast.BasicLit {
	return &ast.BasicLit{
		Kind:  token.STRING,
		Value: strconv.Quote(value),
	}
}
