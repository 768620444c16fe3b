package watcher

import (
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDelay = 500 * time.Millisecond

type Options struct {
	IncludeTests bool
	// SkipDirs are directory base names never watched.
	SkipDirs []string
	// SkipPaths are directories never watched, typically the output tree.
	SkipPaths []string
	Delay     time.Duration
	Logger    *log.Logger
}

type FileWatcher struct {
	watcher     *fsnotify.Watcher
	opts        Options
	watchedDirs map[string]bool
	debouncer   *debouncer
	logger      *log.Logger
	running     bool
	done        chan struct{}
}

type FileChangeEvent struct {
	Path      string
	Operation string
	Timestamp time.Time
}

type FileChangeHandler func([]string) error

func NewFileWatcher(opts Options) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	skipPaths := make([]string, len(opts.SkipPaths))
	for i, p := range opts.SkipPaths {
		skipPaths[i] = p
		if abs, err := filepath.Abs(p); err == nil {
			skipPaths[i] = abs
		}
	}
	opts.SkipPaths = skipPaths
	opts.SkipDirs = slices.Clone(opts.SkipDirs)
	return &FileWatcher{
		watcher:     watcher,
		opts:        opts,
		watchedDirs: make(map[string]bool),
		debouncer:   newDebouncer(opts.Delay, logger),
		logger:      logger,
		done:        make(chan struct{}),
	}, nil
}

func (fw *FileWatcher) Watch(paths []string, handler FileChangeHandler) error {
	for _, path := range paths {
		if err := fw.addPath(path); err != nil {
			return fmt.Errorf("failed to watch path %s: %w", path, err)
		}
	}
	fw.running = true
	go fw.eventLoop(handler)
	return nil
}

func (fw *FileWatcher) addPath(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if walkPath != path && fw.shouldSkipDir(walkPath) {
			return filepath.SkipDir
		}
		if !fw.watchedDirs[walkPath] {
			if err := fw.watcher.Add(walkPath); err != nil {
				return fmt.Errorf("failed to add directory %s to watcher: %w", walkPath, err)
			}
			fw.watchedDirs[walkPath] = true
		}
		return nil
	})
}

func (fw *FileWatcher) eventLoop(handler FileChangeHandler) {
	defer close(fw.done)
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event, handler)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Printf("File watcher error: %v", err)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event, handler FileChangeHandler) {
	if event.Op&fsnotify.Create == fsnotify.Create && fw.isNewDir(event.Name) {
		if !fw.shouldSkipDir(event.Name) {
			if err := fw.addPath(event.Name); err != nil {
				fw.logger.Printf("File watcher error: %v", err)
			}
		}
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !fw.isGoFile(event.Name) || fw.shouldSkipFile(event.Name) {
		return
	}
	changeEvent := FileChangeEvent{
		Path:      event.Name,
		Operation: eventOpToString(event.Op),
		Timestamp: time.Now(),
	}
	fw.debouncer.add(changeEvent, handler)
}

func (fw *FileWatcher) isNewDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (fw *FileWatcher) isGoFile(path string) bool {
	if !strings.HasSuffix(path, ".go") {
		return false
	}
	if strings.HasSuffix(path, "_test.go") {
		return fw.opts.IncludeTests
	}
	return true
}

func (fw *FileWatcher) shouldSkipDir(path string) bool {
	dirName := filepath.Base(path)
	if strings.HasPrefix(dirName, ".") || strings.HasPrefix(dirName, "_") {
		return true
	}
	if slices.Contains(fw.opts.SkipDirs, dirName) {
		return true
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, skip := range fw.opts.SkipPaths {
		if abs == skip || strings.HasPrefix(abs, skip+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (fw *FileWatcher) shouldSkipFile(path string) bool {
	filename := filepath.Base(path)
	if strings.HasPrefix(filename, ".") {
		return true
	}
	if strings.HasSuffix(filename, ".tmp") || strings.HasSuffix(filename, "~") {
		return true
	}
	if strings.HasSuffix(filename, ".swp") || strings.HasSuffix(filename, ".swo") {
		return true
	}
	return false
}

func eventOpToString(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return "CREATE"
	case op&fsnotify.Write == fsnotify.Write:
		return "WRITE"
	case op&fsnotify.Remove == fsnotify.Remove:
		return "REMOVE"
	case op&fsnotify.Rename == fsnotify.Rename:
		return "RENAME"
	case op&fsnotify.Chmod == fsnotify.Chmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Close stops the event loop and discards pending changes.
func (fw *FileWatcher) Close() error {
	fw.debouncer.stop()
	err := fw.watcher.Close()
	if fw.running {
		<-fw.done
	}
	return err
}

func (fw *FileWatcher) WatchedPaths() []string {
	paths := make([]string, 0, len(fw.watchedDirs))
	for path := range fw.watchedDirs {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}
