package instrumentor

import (
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	gotypes "go/types"
	"io"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/tools/go/packages"

	iast "github.com/smith-xyz/go-regex-observer/pkg/instrumentor/ast"
	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor/oracle"
	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor/types"
)

// Instrumentor rewrites regex pattern arguments in Go source files. The
// template and rule table are loaded once and shared by every file.
type Instrumentor struct {
	config   Config
	registry *Registry
	policy   types.ReceiverPolicy
	template *iast.Template
	loader   oracle.Loader
	logger   *log.Logger
}

// Result describes one processed file.
type Result struct {
	Path     string
	Content  []byte
	Modified bool
	Sites    []iast.Site
	// TypeErrors are the checker's complaints. They do not fail the file.
	TypeErrors []error
	// RewriteTypeErrors are type errors of the output that the input did
	// not have. Only collected when a resolver is configured.
	RewriteTypeErrors []error
}

// New validates cfg and loads its template. Every failure is a
// ConfigurationError and happens before any source is read.
func New(cfg Config) (*Instrumentor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Resource: "config", Err: err}
	}

	tmpl, err := LoadTemplate(cfg.Template)
	if err != nil {
		return nil, err
	}

	registry := DefaultRegistry
	if len(cfg.Rules) > 0 {
		registry, err = NewRegistry(cfg.Rules)
		if err != nil {
			return nil, &ConfigurationError{Resource: "rules", Err: err}
		}
	}

	policy, err := iast.NewReceiverPolicy(cfg.ReceiverPolicy.Kind, cfg.ReceiverPolicy.Names, cfg.ReceiverPolicy.ImportPaths)
	if err != nil {
		return nil, &ConfigurationError{Resource: "receiver_policy", Err: err}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	loader, err := oracle.NewLoader(cfg.Resolver, logger)
	if err != nil {
		return nil, &ConfigurationError{Resource: "resolver", Err: err}
	}

	return &Instrumentor{
		config:   cfg,
		registry: registry,
		policy:   policy,
		template: tmpl,
		loader:   loader,
		logger:   logger,
	}, nil
}

func (in *Instrumentor) Template() *iast.Template {
	return in.template
}

func (in *Instrumentor) Registry() *Registry {
	return in.registry
}

func (in *Instrumentor) ProcessFile(filePath, logPath string) ([]byte, bool, error) {
	res, err := in.ProcessFileResult(filePath, logPath)
	if err != nil {
		return nil, false, err
	}
	return res.Content, res.Modified, nil
}

func (in *Instrumentor) ProcessFileResult(filePath, logPath string) (*Result, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return in.ProcessSource(filePath, src, logPath)
}

// ProcessSource instruments src as if read from filePath. Files that already
// carry the instrumentation marker, or contain no regex call, come back
// byte for byte.
func (in *Instrumentor) ProcessSource(filePath string, src []byte, logPath string) (*Result, error) {
	res := &Result{Path: filePath, Content: src}
	if iast.HasMarker(src) {
		in.logger.Printf("Skipping %s: already instrumented", filePath)
		return res, nil
	}

	unit, err := in.loader.Load(sourcePath(filePath), src)
	if err != nil {
		return nil, &ParseError{Path: filePath, Err: err}
	}
	res.TypeErrors = unit.TypeErrors
	for _, typeErr := range unit.TypeErrors {
		in.logger.Printf("  type check: %v", typeErr)
	}

	classifier := iast.NewClassifier(in.registry, in.policy, unit.Oracle, unit.File)
	rewriter := iast.NewFileRewriter(unit.File, unit.Fset, classifier, in.template, filePath, logPath).
		WithLogger(in.logger)

	if _, err := rewriter.Rewrite(); err != nil {
		return nil, err
	}
	if !rewriter.IsModified() {
		return res, nil
	}
	rewriter.AddImports()

	content, err := rewriter.Render()
	if err != nil {
		return nil, err
	}
	if _, err := parser.ParseFile(token.NewFileSet(), filePath, content, parser.ParseComments); err != nil {
		return nil, fmt.Errorf("transformed code is invalid Go: %w", err)
	}
	if in.config.Resolver != oracle.ResolverNone {
		res.RewriteTypeErrors = in.checkOutput(filePath, content, unit.TypeErrors)
	}

	res.Content = content
	res.Modified = true
	res.Sites = rewriter.Sites()
	return res, nil
}

// checkOutput type-checks the rendered file and returns the errors the
// input did not already have, matched by message.
func (in *Instrumentor) checkOutput(filePath string, content []byte, before []error) []error {
	unit, err := in.loader.Load(sourcePath(filePath), content)
	if err != nil {
		in.logger.Printf("  type check after rewrite: %v", err)
		return []error{err}
	}

	known := make(map[string]int, len(before))
	for _, typeErr := range before {
		known[typeErrorMessage(typeErr)]++
	}
	var added []error
	for _, typeErr := range unit.TypeErrors {
		msg := typeErrorMessage(typeErr)
		if known[msg] > 0 {
			known[msg]--
			continue
		}
		in.logger.Printf("  type check after rewrite: %v", typeErr)
		added = append(added, typeErr)
	}
	return added
}

// typeErrorMessage drops the position, which the rewrite shifts.
func typeErrorMessage(err error) string {
	var typeErr gotypes.Error
	if errors.As(err, &typeErr) {
		return typeErr.Msg
	}
	var pkgErr packages.Error
	if errors.As(err, &pkgErr) {
		return pkgErr.Msg
	}
	return err.Error()
}

func (in *Instrumentor) ProcessFileInPlace(filePath, logPath string) (bool, error) {
	content, modified, err := in.ProcessFile(filePath, logPath)
	if err != nil {
		return false, fmt.Errorf("instrumentation failed for %s: %w", filePath, err)
	}
	if !modified {
		return false, nil
	}
	if err := writeFileSynced(filePath, content); err != nil {
		return false, err
	}
	return true, nil
}

// ProcessFileTo writes the instrumented (or unchanged) file to outPath.
func (in *Instrumentor) ProcessFileTo(filePath, outPath, logPath string) (bool, error) {
	content, modified, err := in.ProcessFile(filePath, logPath)
	if err != nil {
		return false, fmt.Errorf("instrumentation failed for %s: %w", filePath, err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return false, fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := writeFileSynced(outPath, content); err != nil {
		return false, err
	}
	return modified, nil
}

// sourcePath makes the loader see absolute names, which the packages
// backend needs to match its results.
func sourcePath(filePath string) string {
	if abs, err := filepath.Abs(filePath); err == nil {
		return abs
	}
	return filePath
}

func writeFileSynced(path string, content []byte) error {
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if f, err := os.Open(path); err == nil {
		_ = f.Sync()
		f.Close()
	}
	return nil
}
