package internal

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smith-xyz/go-regex-observer/cmd/regex-instrumentor/internal/watcher"
	"github.com/smith-xyz/go-regex-observer/pkg/instrumentor"
)

type treeOptions struct {
	outDir       string
	includeTests bool
	watch        bool
}

func newTreeCmd(global *globalOptions) *cobra.Command {
	opts := &treeOptions{}
	cmd := &cobra.Command{
		Use:   "tree [flags] <source-dir> <regex-log-file>",
		Short: "Instrument every Go file under a directory",
		Long: `tree instruments every Go file under source-dir, either in place or into a
mirrored --out directory. A file that cannot be instrumented keeps its
original content and is reported; the rest of the tree is still processed.`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.watch && opts.outDir == "" {
				return usagef("--watch requires --out")
			}
			return runTree(cmd, global, opts, args[0], args[1])
		},
	}
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Write instrumented files to this directory instead of in place")
	cmd.Flags().BoolVar(&opts.includeTests, "include-tests", false, "Also instrument _test.go files")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Re-instrument files as they change (requires --out)")
	return cmd
}

func runTree(cmd *cobra.Command, global *globalOptions, opts *treeOptions, sourceDir, logFile string) error {
	in, cfg, err := newInstrumentor(cmd, global)
	if err != nil {
		return err
	}

	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", sourceDir)
	}

	treeOpts := instrumentor.TreeOptions{
		OutDir:       opts.outDir,
		IncludeTests: opts.includeTests,
	}
	stderr := cmd.ErrOrStderr()

	report, err := in.ProcessTree(sourceDir, logFile, treeOpts)
	if err != nil {
		return err
	}
	printReport(stderr, report)

	if !opts.watch {
		return nil
	}
	return watchTree(cmd.Context(), in, cfg, sourceDir, logFile, treeOpts, stderr)
}

func printReport(w io.Writer, report *instrumentor.TreeReport) {
	yellow := color.New(color.FgYellow)
	for _, failure := range report.Failed {
		yellow.Fprintf(w, "Kept original %s: %v\n", failure.Path, failure.Err)
	}
	if len(report.Failed) > 0 {
		yellow.Fprintf(w, "%s\n", report.Summary())
		return
	}
	color.New(color.FgGreen).Fprintf(w, "%s\n", report.Summary())
}

func watchTree(ctx context.Context, in *instrumentor.Instrumentor, cfg instrumentor.Config, sourceDir, logFile string, opts instrumentor.TreeOptions, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fw, err := watcher.NewFileWatcher(watcher.Options{
		IncludeTests: opts.IncludeTests || cfg.Tree.IncludeTests,
		SkipDirs:     cfg.Tree.SkipDirs,
		SkipPaths:    []string{opts.OutDir},
		Logger:       log.New(stderr, "", 0),
	})
	if err != nil {
		return err
	}
	defer fw.Close()

	handler := func(files []string) error {
		for _, file := range files {
			printReport(stderr, in.ProcessTreeFile(sourceDir, file, logFile, opts))
		}
		return nil
	}
	if err := fw.Watch([]string{sourceDir}, handler); err != nil {
		return err
	}

	color.New(color.FgCyan).Fprintf(stderr, "Watching %s (%d directories), press Ctrl+C to stop\n", sourceDir, len(fw.WatchedPaths()))
	<-ctx.Done()
	return nil
}
