package oracle

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/packages"
)

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedSyntax |
	packages.NeedTypes |
	packages.NeedTypesInfo

type packagesLoader struct {
	fallback Loader
	logger   *log.Logger
}

// NewPackagesLoader type-checks the file within its package and module.
// When the package cannot be loaded, fallback handles the file instead.
func NewPackagesLoader(fallback Loader, logger *log.Logger) Loader {
	return &packagesLoader{fallback: fallback, logger: logger}
}

func (l *packagesLoader) Load(path string, src []byte) (*Unit, error) {
	unit, err := l.load(path, src)
	if err != nil {
		l.logger.Printf("packages: %v, checking %s on its own", err, path)
		return l.fallback.Load(path, src)
	}
	return unit, nil
}

func (l *packagesLoader) load(path string, src []byte) (*Unit, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	unit := &Unit{}
	cfg := &packages.Config{
		Mode:    loadMode,
		Dir:     filepath.Dir(abs),
		Tests:   strings.HasSuffix(abs, "_test.go"),
		Overlay: map[string][]byte{abs: src},
	}
	pkgs, err := packages.Load(cfg, "file="+abs)
	if err != nil {
		return nil, fmt.Errorf("failed to load package: %w", err)
	}

	for _, pkg := range pkgs {
		if pkg.Fset == nil || pkg.TypesInfo == nil {
			continue
		}
		for _, file := range pkg.Syntax {
			if filepath.Clean(pkg.Fset.Position(file.Package).Filename) != abs {
				continue
			}
			for _, pkgErr := range pkg.Errors {
				if pkgErr.Kind == packages.ParseError && strings.HasPrefix(pkgErr.Pos, abs) {
					return nil, fmt.Errorf("parse error reported by packages: %s", pkgErr.Msg)
				}
				unit.TypeErrors = append(unit.TypeErrors, pkgErr)
			}
			unit.Fset = pkg.Fset
			unit.File = file
			unit.Oracle = NewInfoOracle(pkg.TypesInfo)
			return unit, nil
		}
	}
	return nil, fmt.Errorf("no package contains %s", abs)
}
