package instrumentor

import (
	"embed"
	"fmt"
	"os"
	"strings"

	iast "github.com/smith-xyz/go-regex-observer/pkg/instrumentor/ast"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

// LoadTemplateText resolves a template resource. "builtin:<name>" reads the
// embedded templates/<name>.tmpl; anything else is a file path.
func LoadTemplateText(resource string) (string, error) {
	if name, ok := strings.CutPrefix(resource, BuiltinTemplatePrefix); ok {
		data, err := builtinTemplates.ReadFile("templates/" + name + ".tmpl")
		if err != nil {
			return "", fmt.Errorf("no builtin template %q: %w", name, err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(resource)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return string(data), nil
}

func LoadTemplate(resource string) (*iast.Template, error) {
	if resource == "" {
		resource = DefaultTemplate
	}
	text, err := LoadTemplateText(resource)
	if err != nil {
		return nil, &ConfigurationError{Resource: resource, Err: err}
	}
	tmpl, err := iast.LoadTemplate(resource, text)
	if err != nil {
		return nil, &ConfigurationError{Resource: resource, Err: err}
	}
	return tmpl, nil
}

// BuiltinTemplates lists the names accepted after the builtin: prefix.
func BuiltinTemplates() []string {
	entries, err := builtinTemplates.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".tmpl"))
	}
	return names
}
