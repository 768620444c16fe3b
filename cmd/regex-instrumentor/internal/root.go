package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	template   string
	resolver   string
	policy     string
	verbose    bool
}

func Execute(args []string, stdout, stderr io.Writer) int {
	return ExecuteContext(context.Background(), args, stdout, stderr)
}

// ExecuteContext runs the command line and returns the process exit code.
// Nothing is written to stdout unless the command succeeds.
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	cmd, err := root.ExecuteContextC(ctx)
	return exitCode(cmd, err, stderr)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "regex-instrumentor [flags] <source-file> <regex-log-file>",
		Short: "Instrument regex call sites in Go source so patterns are logged at runtime",
		Long: `regex-instrumentor rewrites the pattern argument of every regex-defining
call (regexp.Compile, regexp.MustCompile, regexp.MatchString, regexp2.Compile,
...) so that the pattern is recorded to a log file when the program runs.

Examples:
  regex-instrumentor main.go /tmp/regex.log > main.instrumented.go
  regex-instrumentor --template builtin:regexlog main.go /tmp/regex.log
  regex-instrumentor tree --out /tmp/instrumented ./src /tmp/regex.log
  regex-instrumentor collect /tmp/regex.log`,
		Args:          exactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(cmd, opts, args[0], args[1])
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file")
	flags.StringVarP(&opts.template, "template", "t", "", fmt.Sprintf("Template resource: a file path or builtin:<name> (%s)", strings.Join(instrumentor.BuiltinTemplates(), ", ")))
	flags.StringVar(&opts.resolver, "resolver", "", "Type resolver backend (file, packages, none)")
	flags.StringVar(&opts.policy, "policy", "", "Receiver policy for pattern classes (names, imports)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log every instrumented call site to stderr")

	root.AddCommand(newTreeCmd(opts), newCollectCmd(), newConfigCmd(opts))
	return root
}

// loadConfig layers defaults, the config file, the environment and then
// explicitly set flags.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (instrumentor.Config, error) {
	cfg, err := instrumentor.LoadConfigFromEnv(opts.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("template") {
		cfg.Template = opts.template
	}
	if flags.Changed("resolver") {
		cfg.Resolver = opts.resolver
	}
	if flags.Changed("policy") {
		cfg.ReceiverPolicy.Kind = opts.policy
	}
	if opts.verbose {
		cfg.Logger = log.New(cmd.ErrOrStderr(), "", 0)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, usagef("%v", err)
	}
	return cfg, nil
}

func newInstrumentor(cmd *cobra.Command, opts *globalOptions) (*instrumentor.Instrumentor, instrumentor.Config, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, cfg, err
	}
	in, err := instrumentor.New(cfg)
	if err != nil {
		return nil, cfg, err
	}
	return in, cfg, nil
}

func runFile(cmd *cobra.Command, opts *globalOptions, sourceFile, logFile string) error {
	in, _, err := newInstrumentor(cmd, opts)
	if err != nil {
		return err
	}

	content, _, err := in.ProcessFile(sourceFile, logFile)
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(content)
	return err
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration, rule table included, as YAML",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := instrumentor.WriteConfig(&buf, cfg); err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(buf.Bytes())
			return err
		},
	}
}
