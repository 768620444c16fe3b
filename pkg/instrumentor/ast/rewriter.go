package ast

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	gotypes "go/types"
	"io"
	"log"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor/types"
)

const instrumentationMarker = "// INSTRUMENTED BY GO-REGEX-OBSERVER"

// Site records one rewritten call.
type Site struct {
	Line     int
	Column   int
	Receiver string
	Method   string
	Scope    types.ScopeKind
	// Pattern is the source text of the original pattern argument.
	Pattern string
	Flags   string
}

type fileRewriter struct {
	file       *ast.File
	fset       *token.FileSet
	classifier *Classifier
	template   *Template
	sourcePath string
	logPath    string
	logger     *log.Logger
	sites      []Site
	modified   bool
}

func NewFileRewriter(file *ast.File, fset *token.FileSet, classifier *Classifier, template *Template, sourcePath, logPath string) *fileRewriter {
	return &fileRewriter{
		file:       file,
		fset:       fset,
		classifier: classifier,
		template:   template,
		sourcePath: sourcePath,
		logPath:    logPath,
		logger:     log.New(io.Discard, "", 0),
		modified:   false,
	}
}

func (fr *fileRewriter) WithLogger(logger *log.Logger) *fileRewriter {
	if logger != nil {
		fr.logger = logger
	}
	return fr
}

// Rewrite walks every call post-order, so inner calls are classified and
// rewritten before their enclosing call. Fragments are not walked again.
func (fr *fileRewriter) Rewrite() (int, error) {
	var instrumentErr error

	astutil.Apply(fr.file, nil, func(c *astutil.Cursor) bool {
		call, ok := c.Node().(*ast.CallExpr)
		if !ok {
			return true
		}
		match, ok := fr.classifier.Classify(call)
		if !ok {
			return true
		}
		if err := fr.instrumentCall(call, match); err != nil {
			instrumentErr = err
			return false
		}
		return true
	})

	return len(fr.sites), instrumentErr
}

func (fr *fileRewriter) instrumentCall(call *ast.CallExpr, match types.Match) error {
	original := call.Args[match.PatternArg]

	flags := UnknownFlags
	if match.FlagsArg != types.NoFlags {
		flags = gotypes.ExprString(call.Args[match.FlagsArg])
	}

	pos := fr.fset.Position(call.Pos())
	site := Site{
		Line:     pos.Line,
		Column:   pos.Column,
		Receiver: receiverString(call),
		Method:   methodName(call),
		Scope:    match.Scope,
		Pattern:  gotypes.ExprString(original),
		Flags:    flags,
	}

	conv, err := fr.conversionFor(original)
	if err != nil {
		fr.logger.Printf("  -> Skipping %s.%s at %s: %v", site.Receiver, site.Method, pos, err)
		return nil
	}

	pattern := original
	if conv != nil {
		pattern = conv.wrapArg(original)
	}
	fragment, err := fr.template.Instantiate(pattern, fr.sourcePath, fr.logPath, flags)
	if err != nil {
		return fmt.Errorf("failed to instrument %s.%s at %s: %w", site.Receiver, site.Method, pos, err)
	}
	if conv != nil {
		fragment = conv.wrapFragment(fragment)
	}

	call.Args[match.PatternArg] = fragment
	fr.sites = append(fr.sites, site)
	fr.modified = true

	fr.logger.Printf("  -> Instrumenting %s.%s at %s (%s scope)", site.Receiver, site.Method, pos, site.Scope)
	return nil
}

// AddImports adds the template's imports. It does nothing when no call was
// rewritten, since the imports would be unused.
func (fr *fileRewriter) AddImports() bool {
	if !fr.modified {
		return false
	}
	added := false
	for _, imp := range fr.template.Imports() {
		if imp.Name == "" {
			added = astutil.AddImport(fr.fset, fr.file, imp.Path) || added
		} else {
			added = astutil.AddNamedImport(fr.fset, fr.file, imp.Name, imp.Path) || added
		}
	}
	return added
}

func (fr *fileRewriter) Render() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(instrumentationMarker + "\n")
	if err := format.Node(&buf, fr.fset, fr.file); err != nil {
		return nil, fmt.Errorf("failed to format code: %w", err)
	}
	return buf.Bytes(), nil
}

func (fr *fileRewriter) Sites() []Site {
	return append([]Site(nil), fr.sites...)
}

func (fr *fileRewriter) IsModified() bool {
	return fr.modified
}

// HasMarker reports whether src was already produced by this rewriter.
func HasMarker(src []byte) bool {
	return bytes.HasPrefix(src, []byte(instrumentationMarker))
}
