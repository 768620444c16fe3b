package instrumentor

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	iast "github.com/smith-xyz/go-regex-observer/pkg/instrumentor/ast"
)

func TestBuiltinTemplates(t *testing.T) {
	names := BuiltinTemplates()
	for _, want := range []string{"default", "regexlog"} {
		if !slices.Contains(names, want) {
			t.Errorf("expected builtin %s in %v", want, names)
		}
	}

	for _, name := range names {
		tmpl, err := LoadTemplate(BuiltinTemplatePrefix + name)
		if err != nil {
			t.Errorf("builtin %s does not load: %v", name, err)
			continue
		}
		if len(tmpl.Imports()) == 0 {
			t.Errorf("builtin %s should declare imports", name)
		}
	}
}

func TestLoadTemplateDefault(t *testing.T) {
	tmpl, err := LoadTemplate("")
	if err != nil {
		t.Fatalf("LoadTemplate failed: %v", err)
	}
	if tmpl.Name() != DefaultTemplate {
		t.Errorf("expected %s, got %s", DefaultTemplate, tmpl.Name())
	}
	want := []iast.TemplateImport{
		{Name: "rxlogjson", Path: "encoding/json"},
		{Name: "rxlogos", Path: "os"},
	}
	if !slices.Equal(tmpl.Imports(), want) {
		t.Errorf("unexpected imports %+v", tmpl.Imports())
	}
}

func TestLoadTemplateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.tmpl")
	if err := os.WriteFile(path, []byte(`trace("REGEXP", "SOURCEF")`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTemplate(path); err != nil {
		t.Errorf("LoadTemplate(%s) failed: %v", path, err)
	}
}

func TestLoadTemplateErrors(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "twice.tmpl")
	if err := os.WriteFile(invalid, []byte(`f("REGEXP", "REGEXP")`), 0644); err != nil {
		t.Fatal(err)
	}

	for _, resource := range []string{
		filepath.Join(dir, "missing.tmpl"),
		BuiltinTemplatePrefix + "nope",
		invalid,
	} {
		_, err := LoadTemplate(resource)
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("LoadTemplate(%s): expected ConfigurationError, got %v", resource, err)
			continue
		}
		if cfgErr.Resource != resource {
			t.Errorf("expected resource %s, got %s", resource, cfgErr.Resource)
		}
	}
}
