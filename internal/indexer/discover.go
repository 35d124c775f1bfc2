package indexer

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/packages"
)

type fileEntry struct {
	path    string
	pkgPath string
}

var skipDirs = map[string]struct{}{
	"vendor":       {},
	"testdata":     {},
	"node_modules": {},
}

// discover lists the Go files under the root together with their import
// paths. It asks go/packages first and falls back to walking the tree and
// deriving import paths from go.mod when the go command is unavailable.
func (idx *Indexer) discover(ctx context.Context) ([]fileEntry, error) {
	gi := idx.ignoreMatcher()
	entries, err := idx.loadPackages(ctx)
	if err != nil || len(entries) == 0 {
		if err != nil {
			idx.logger.Printf("go/packages failed, walking %s instead: %v", idx.root, err)
		}
		entries, err = idx.walk(ctx)
		if err != nil {
			return nil, err
		}
	}

	out := entries[:0]
	for _, e := range entries {
		if !idx.includeTests && strings.HasSuffix(e.path, "_test.go") {
			continue
		}
		if rel, err := filepath.Rel(idx.root, e.path); err == nil && gi != nil && gi.MatchesPath(filepath.ToSlash(rel)) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (idx *Indexer) loadPackages(ctx context.Context) ([]fileEntry, error) {
	cfg := &packages.Config{
		Mode:    packages.NeedName | packages.NeedFiles,
		Context: ctx,
		Dir:     idx.root,
		Tests:   idx.includeTests,
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var entries []fileEntry
	for _, pkg := range pkgs {
		for _, f := range pkg.GoFiles {
			if seen[f] || !isUnderRoot(f, idx.root) {
				continue
			}
			seen[f] = true
			entries = append(entries, fileEntry{path: f, pkgPath: pkg.PkgPath})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	return entries, nil
}

func (idx *Indexer) walk(ctx context.Context) ([]fileEntry, error) {
	var entries []fileEntry
	err := filepath.WalkDir(idx.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if p == idx.root {
				return nil
			}
			if skippedDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") {
			return nil
		}
		entries = append(entries, fileEntry{path: p, pkgPath: idx.fallbackPkgPath(filepath.Dir(p))})
		return nil
	})
	return entries, err
}

// fallbackPkgPath derives an import path from the nearest go.mod above dir.
func (idx *Indexer) fallbackPkgPath(dir string) string {
	for cur := dir; ; cur = filepath.Dir(cur) {
		data, err := os.ReadFile(filepath.Join(cur, "go.mod"))
		if err == nil {
			mod := modfile.ModulePath(data)
			rel, relErr := filepath.Rel(cur, dir)
			if mod == "" || relErr != nil {
				break
			}
			if rel == "." {
				return mod
			}
			return path.Join(mod, filepath.ToSlash(rel))
		}
		if parent := filepath.Dir(cur); parent == cur {
			break
		}
	}
	rel, err := filepath.Rel(idx.root, dir)
	if err != nil || rel == "." {
		return filepath.Base(dir)
	}
	return filepath.ToSlash(rel)
}

func skippedDir(name string) bool {
	_, skip := skipDirs[name]
	return skip || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// Excludes reports whether discovery leaves path out of the index: it is
// outside the root, below a skipped directory, a test file while tests are
// excluded, or matched by the ignore rules.
func (idx *Indexer) Excludes(path string) bool {
	rel, err := filepath.Rel(idx.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return true
	}
	rel = filepath.ToSlash(rel)
	dirs := strings.Split(rel, "/")
	for _, name := range dirs[:len(dirs)-1] {
		if skippedDir(name) {
			return true
		}
	}
	if !idx.includeTests && strings.HasSuffix(rel, "_test.go") {
		return true
	}
	gi := idx.ignoreMatcher()
	return gi != nil && gi.MatchesPath(rel)
}

// ignoreMatcher combines the root's .gitignore with configured patterns.
func (idx *Indexer) ignoreMatcher() *ignore.GitIgnore {
	gitignore := filepath.Join(idx.root, ".gitignore")
	if _, err := os.Stat(gitignore); err == nil {
		gi, err := ignore.CompileIgnoreFileAndLines(gitignore, idx.ignore...)
		if err == nil {
			return gi
		}
		idx.logger.Printf("ignoring unreadable %s: %v", gitignore, err)
	}
	if len(idx.ignore) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(idx.ignore...)
}

// isUnderRoot reports whether path is within root (both should be absolute).
func isUnderRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}
