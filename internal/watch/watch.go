// Package watch re-indexes Go files as they change on disk.
package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"
)

// Reindexer refreshes the index entry of one file.
type Reindexer interface {
	Reindex(ctx context.Context, path string) error
}

// Watcher debounces file system events under a root and hands the changed
// Go files to a Reindexer in sorted batches.
type Watcher struct {
	root     string
	target   Reindexer
	debounce time.Duration
	patterns []string
	ignore   *ignore.GitIgnore
	logger   *log.Logger
	onBatch  func(changed []string)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

// WithIgnore skips paths matched by gitignore-style patterns, on top of the
// root's .gitignore.
func WithIgnore(patterns ...string) Option {
	return func(w *Watcher) { w.patterns = append(w.patterns, patterns...) }
}

// WithLogger reports re-index failures to l.
func WithLogger(l *log.Logger) Option { return func(w *Watcher) { w.logger = l } }

// OnBatch is called after every re-indexed batch.
func OnBatch(fn func(changed []string)) Option { return func(w *Watcher) { w.onBatch = fn } }

// New creates a Watcher for root.
func New(root string, target Reindexer, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	w := &Watcher{
		root:     filepath.Clean(abs),
		target:   target,
		debounce: 250 * time.Millisecond,
		logger:   log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.debounce <= 0 {
		w.debounce = 250 * time.Millisecond
	}
	w.ignore = w.compileIgnore()
	return w, nil
}

// compileIgnore combines the root's .gitignore with the configured patterns.
func (w *Watcher) compileIgnore() *ignore.GitIgnore {
	gitignore := filepath.Join(w.root, ".gitignore")
	if _, err := os.Stat(gitignore); err == nil {
		gi, err := ignore.CompileIgnoreFileAndLines(gitignore, w.patterns...)
		if err == nil {
			return gi
		}
		w.logger.Printf("ignoring unreadable %s: %v", gitignore, err)
	}
	if len(w.patterns) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(w.patterns...)
}

// Run watches until ctx is done or the watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.root); err != nil {
		return fmt.Errorf("watching %s: %w", w.root, err)
	}

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)
			if w.skipPath(path) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					_ = w.addRecursive(fw, path)
					continue
				}
			}
			if !strings.HasSuffix(path, ".go") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending[path] = true
			timer.Reset(w.debounce)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			sort.Strings(changed)
			pending = map[string]bool{}
			w.flush(ctx, changed)
		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", w.root, watchErr)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, changed []string) {
	for _, path := range changed {
		if err := w.target.Reindex(ctx, path); err != nil {
			w.logger.Printf("re-indexing %s: %v", path, err)
		}
	}
	if w.onBatch != nil {
		w.onBatch(changed)
	}
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !entry.IsDir() {
			return nil
		}
		if path != w.root && w.skipDir(path, entry.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) skipDir(path, name string) bool {
	switch {
	case name == "vendor", name == "node_modules", name == "testdata":
		return true
	case strings.HasPrefix(name, "."), strings.HasPrefix(name, "_"):
		return true
	}
	return w.matches(path + "/")
}

func (w *Watcher) skipPath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".#") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, "~") {
		return true
	}
	if rel, err := filepath.Rel(w.root, path); err == nil {
		dirs := strings.Split(filepath.ToSlash(rel), "/")
		for i, name := range dirs[:len(dirs)-1] {
			if w.skipDir(filepath.Join(w.root, filepath.FromSlash(strings.Join(dirs[:i+1], "/"))), name) {
				return true
			}
		}
	}
	return w.matches(path)
}

func (w *Watcher) matches(path string) bool {
	if w.ignore == nil {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return w.ignore.MatchesPath(filepath.ToSlash(rel))
}
