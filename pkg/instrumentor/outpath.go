package instrumentor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutputPath maps a file under root to its mirror under outDir. An empty
// outDir means in place.
func OutputPath(root, outDir, filePath string) (string, error) {
	if outDir == "" {
		return filePath, nil
	}
	rel, err := filepath.Rel(root, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", filePath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", filePath, root)
	}
	return filepath.Join(outDir, rel), nil
}

// EnsureOutputDir creates outDir, or a fresh temp dir when outDir is empty.
func EnsureOutputDir(outDir string) (string, error) {
	if outDir == "" {
		dir, err := os.MkdirTemp("", "go-regex-observer-")
		if err != nil {
			return "", fmt.Errorf("failed to create temp directory: %w", err)
		}
		return dir, nil
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return outDir, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	if err := os.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

func isSameOrWithin(dir, parent string) bool {
	rel, err := filepath.Rel(parent, dir)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
