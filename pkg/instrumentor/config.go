package instrumentor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	iast "github.com/smith-xyz/go-regex-observer/pkg/instrumentor/ast"
	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor/oracle"
	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor/types"
)

type Config struct {
	// Template is a builtin:<name> resource or a path to a template file.
	Template string `yaml:"template"`

	// Resolver selects the type oracle backend: file, packages or none.
	Resolver string `yaml:"resolver"`

	ReceiverPolicy PolicyConfig `yaml:"receiver_policy"`

	// Rules replaces DefaultRules when non-empty.
	Rules []types.RegexCallRule `yaml:"rules,omitempty"`

	Tree TreeConfig `yaml:"tree"`

	// Logger receives per-site trace output. Nil discards it.
	Logger *log.Logger `yaml:"-"`
}

type PolicyConfig struct {
	// Kind is names or imports.
	Kind        string   `yaml:"kind"`
	Names       []string `yaml:"names,omitempty"`
	ImportPaths []string `yaml:"import_paths,omitempty"`
}

type TreeConfig struct {
	SkipDirs     []string `yaml:"skip_dirs,omitempty"`
	IncludeTests bool     `yaml:"include_tests"`
}

func DefaultConfig() Config {
	return Config{
		Template: DefaultTemplate,
		Resolver: oracle.ResolverFile,
		ReceiverPolicy: PolicyConfig{
			Kind:        iast.PolicyNames,
			Names:       append([]string(nil), iast.DefaultPatternClassNames...),
			ImportPaths: append([]string(nil), iast.DefaultPatternClassPaths...),
		},
		Tree: TreeConfig{
			SkipDirs: append([]string(nil), DefaultSkipDirs...),
		},
	}
}

// LoadConfig reads a YAML file over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, &ConfigurationError{Resource: path, Err: err}
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, &ConfigurationError{Resource: path, Err: fmt.Errorf("invalid YAML: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, &ConfigurationError{Resource: path, Err: err}
	}
	return cfg, nil
}

// LoadConfigFromEnv loads path and applies the REGEX_INSTRUMENTOR_*
// environment overrides.
func LoadConfigFromEnv(path string) (Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv(EnvTemplate); v != "" {
		cfg.Template = v
	}
	if v := os.Getenv(EnvResolver); v != "" {
		cfg.Resolver = v
	}
	if v := os.Getenv(EnvPolicy); v != "" {
		cfg.ReceiverPolicy.Kind = v
	}
	if err := cfg.Validate(); err != nil {
		return cfg, &ConfigurationError{Resource: "environment", Err: err}
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Resolver {
	case "", oracle.ResolverFile, oracle.ResolverPackages, oracle.ResolverNone:
	default:
		return fmt.Errorf("unknown resolver %q", c.Resolver)
	}
	switch c.ReceiverPolicy.Kind {
	case "", iast.PolicyNames, iast.PolicyImports:
	default:
		return fmt.Errorf("unknown receiver policy %q", c.ReceiverPolicy.Kind)
	}
	for i, rule := range c.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// WriteConfig writes cfg as YAML. An empty rule table is written out as
// DefaultRules so the output is a complete starting point.
func WriteConfig(w io.Writer, cfg Config) error {
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRegistry.Rules()
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return encoder.Close()
}
