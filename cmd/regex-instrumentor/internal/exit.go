package internal

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor"
)

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// usageError marks a bad command line: wrong argument count or flags.
type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// exactArgs is cobra.ExactArgs reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func minimumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// exitCode reports err on stderr and maps it to a process exit code.
func exitCode(cmd *cobra.Command, err error, stderr io.Writer) int {
	if err == nil {
		return ExitOK
	}

	red := color.New(color.FgRed)
	var usage *usageError
	if errors.As(err, &usage) {
		red.Fprintf(stderr, "Error: %v\n", usage.err)
		if cmd != nil {
			fmt.Fprint(stderr, cmd.UsageString())
		}
		return ExitUsage
	}

	var cfgErr *instrumentor.ConfigurationError
	var parseErr *instrumentor.ParseError
	switch {
	case errors.As(err, &cfgErr):
		red.Fprintf(stderr, "Configuration error: %v\n", cfgErr.Err)
		fmt.Fprintf(stderr, "  resource: %s\n", cfgErr.Resource)
	case errors.As(err, &parseErr):
		red.Fprintf(stderr, "Parse error: %v\n", parseErr.Err)
	default:
		red.Fprintf(stderr, "Error: %v\n", err)
	}
	return ExitFailure
}
