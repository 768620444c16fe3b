package oracle

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	gotypes "go/types"
)

type fileLoader struct {
	importer gotypes.Importer
}

// NewFileLoader checks each file on its own. Imports that cannot be
// resolved only leave the expressions depending on them untyped.
func NewFileLoader(imp gotypes.Importer) Loader {
	return &fileLoader{importer: imp}
}

func (l *fileLoader) Load(path string, src []byte) (*Unit, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	imp := l.importer
	if imp == nil {
		imp = importer.Default()
	}

	unit := &Unit{Fset: fset, File: file}
	info := newInfo()
	conf := gotypes.Config{
		Importer:    imp,
		FakeImportC: true,
		Error: func(err error) {
			unit.TypeErrors = append(unit.TypeErrors, err)
		},
	}
	// Check errors are already collected through conf.Error.
	_, _ = conf.Check(file.Name.Name, fset, []*ast.File{file}, info)

	unit.Oracle = NewInfoOracle(info)
	return unit, nil
}

type syntaxLoader struct{}

// NewSyntaxLoader parses without type checking; every type query fails.
func NewSyntaxLoader() Loader {
	return syntaxLoader{}
}

func (syntaxLoader) Load(path string, src []byte) (*Unit, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	return &Unit{Fset: fset, File: file, Oracle: noneOracle{}}, nil
}
