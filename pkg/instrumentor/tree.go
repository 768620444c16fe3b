package instrumentor

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

type TreeOptions struct {
	// OutDir mirrors root into a separate directory. Empty rewrites in place.
	OutDir       string
	IncludeTests bool
}

type FileFailure struct {
	Path string
	Err  error
}

type TreeReport struct {
	Instrumented []string
	Unchanged    []string
	Failed       []FileFailure
	// Copied counts non-Go files mirrored into OutDir.
	Copied int
}

func (r *TreeReport) Summary() string {
	return fmt.Sprintf("%d instrumented, %d unchanged, %d failed", len(r.Instrumented), len(r.Unchanged), len(r.Failed))
}

// ProcessTree instruments every Go file under root. A file that fails keeps
// its original content, in place or in OutDir, and is listed in the report;
// the walk continues. Only errors walking the tree itself are returned.
func (in *Instrumentor) ProcessTree(root, logPath string, opts TreeOptions) (*TreeReport, error) {
	root = filepath.Clean(root)
	report := &TreeReport{}

	var outAbs string
	if opts.OutDir != "" {
		out, err := EnsureOutputDir(opts.OutDir)
		if err != nil {
			return nil, err
		}
		outAbs, _ = filepath.Abs(out)
		opts.OutDir = out
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && in.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			if outAbs != "" {
				if abs, absErr := filepath.Abs(path); absErr == nil && isSameOrWithin(abs, outAbs) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if !in.wantsFile(path, opts) {
			if opts.OutDir != "" {
				dst, err := OutputPath(root, opts.OutDir, path)
				if err != nil {
					return err
				}
				if err := copyFile(path, dst); err != nil {
					return err
				}
				report.Copied++
			}
			return nil
		}

		in.processTreeFile(root, path, logPath, opts, report)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return report, nil
}

// ProcessTreeFile handles a single file of a tree, as ProcessTree would.
func (in *Instrumentor) ProcessTreeFile(root, path, logPath string, opts TreeOptions) *TreeReport {
	report := &TreeReport{}
	if in.wantsFile(path, opts) {
		in.processTreeFile(filepath.Clean(root), path, logPath, opts, report)
	}
	return report
}

func (in *Instrumentor) processTreeFile(root, path, logPath string, opts TreeOptions, report *TreeReport) {
	dst, err := OutputPath(root, opts.OutDir, path)
	if err != nil {
		report.Failed = append(report.Failed, FileFailure{Path: path, Err: err})
		return
	}

	var modified bool
	if opts.OutDir == "" {
		modified, err = in.ProcessFileInPlace(path, logPath)
	} else {
		modified, err = in.ProcessFileTo(path, dst, logPath)
	}

	if err != nil {
		in.logger.Printf("Keeping original %s: %v", path, err)
		if opts.OutDir != "" {
			if copyErr := copyFile(path, dst); copyErr != nil {
				err = fmt.Errorf("%w (copy of original also failed: %v)", err, copyErr)
			}
		}
		report.Failed = append(report.Failed, FileFailure{Path: path, Err: err})
		return
	}
	if modified {
		report.Instrumented = append(report.Instrumented, path)
	} else {
		report.Unchanged = append(report.Unchanged, path)
	}
}

func (in *Instrumentor) wantsFile(path string, opts TreeOptions) bool {
	if !strings.HasSuffix(path, GoFileSuffix) {
		return false
	}
	if strings.HasSuffix(path, TestFileSuffix) {
		return opts.IncludeTests || in.config.Tree.IncludeTests
	}
	return true
}

func (in *Instrumentor) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	skip := in.config.Tree.SkipDirs
	if len(skip) == 0 {
		skip = DefaultSkipDirs
	}
	return slices.Contains(skip, name)
}
