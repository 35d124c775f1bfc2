package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/lock"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/store"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/stub"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/syntax"
)

// Source provides file contents, standing in for the host's virtual file system.
type Source interface {
	ReadFile(path string) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(path string) ([]byte, error)

// ReadFile calls f.
func (f SourceFunc) ReadFile(path string) ([]byte, error) { return f(path) }

// OSSource reads files from disk.
var OSSource Source = SourceFunc(os.ReadFile)

type fileState struct {
	pkgPath string
	version uint64
	hash    string
	stubs   []symtab.Stub
	// overlay holds editor-supplied content that is not on disk.
	overlay []byte
}

// Indexer keeps the stub index of a Go codebase up to date file by file and
// hydrates syntax trees on demand.
type Indexer struct {
	root         string
	st           store.Store
	src          Source
	logger       *log.Logger
	workers      int
	includeTests bool
	ignore       []string

	mu    sync.RWMutex
	files map[string]*fileState
	stamp atomic.Uint64

	trees  *treeCache
	parses atomic.Int64
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithStore replaces the default in-memory store.
func WithStore(st store.Store) Option { return func(idx *Indexer) { idx.st = st } }

// WithSource replaces the file system the indexer reads from.
func WithSource(src Source) Option { return func(idx *Indexer) { idx.src = src } }

// WithLogger reports skipped files and discovery fallbacks to l.
func WithLogger(l *log.Logger) Option { return func(idx *Indexer) { idx.logger = l } }

// WithWorkers bounds the number of files parsed concurrently by Index.
func WithWorkers(n int) Option { return func(idx *Indexer) { idx.workers = max(n, 1) } }

// WithTreeCache sets how many parsed trees are kept in memory.
func WithTreeCache(n int) Option { return func(idx *Indexer) { idx.trees = newTreeCache(n) } }

// WithTests controls whether _test.go files are indexed.
func WithTests(include bool) Option { return func(idx *Indexer) { idx.includeTests = include } }

// WithIgnore adds gitignore-style patterns on top of the root's .gitignore.
func WithIgnore(patterns ...string) Option {
	return func(idx *Indexer) { idx.ignore = append(idx.ignore, patterns...) }
}

// New creates an Indexer rooted at rootPath. Call Index to scan the packages below it.
func New(rootPath string, opts ...Option) (*Indexer, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	idx := &Indexer{
		root:         absRoot,
		st:           store.NewMem(),
		src:          OSSource,
		logger:       log.New(io.Discard, "", 0),
		workers:      4,
		includeTests: true,
		files:        make(map[string]*fileState),
		trees:        newTreeCache(64),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Root returns the absolute root directory.
func (idx *Indexer) Root() string { return idx.root }

// Store returns the index store queries run against.
func (idx *Indexer) Store() store.Store { return idx.st }

// Parses reports how many times a file was parsed, for diagnostics.
func (idx *Indexer) Parses() int64 { return idx.parses.Load() }

type storeSink struct{ st store.Store }

func (s storeSink) Occurrence(key stub.IndexKey, name string, loc symtab.Location) {
	s.st.Put(key, name, loc)
}

func hashOf(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

func (idx *Indexer) parse(path, pkgPath string, version uint64, src []byte) (*syntax.Tree, error) {
	idx.parses.Add(1)
	return syntax.Parse(path, pkgPath, version, src)
}

// IndexFile indexes editor-supplied content for path, replacing everything
// previously indexed for it. The content is kept so trees can be hydrated
// without reading the file system.
func (idx *Indexer) IndexFile(ctx context.Context, path, pkgPath string, src []byte) error {
	_, err := idx.indexContent(ctx, path, pkgPath, src, true)
	return err
}

func (idx *Indexer) indexContent(ctx context.Context, path, pkgPath string, src []byte, overlay bool) (*syntax.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, symtab.Canceled(err)
	}
	version := idx.stamp.Add(1)
	tree, err := idx.parse(path, pkgPath, version, src)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", path, err)
	}
	stubs := stub.Collect(tree)

	state := &fileState{pkgPath: pkgPath, version: version, hash: hashOf(src), stubs: stubs}
	if overlay {
		state.overlay = tree.Source()
	}

	idx.mu.Lock()
	idx.st.Invalidate(path)
	sink := storeSink{idx.st}
	for _, s := range stubs {
		stub.Index(s, sink)
	}
	idx.files[path] = state
	idx.mu.Unlock()

	idx.trees.put(path, tree)
	return tree, nil
}

// Commit re-indexes a tree that was edited in place, such as after a rename.
// All handles derived from earlier versions of the file become stale.
func (idx *Indexer) Commit(ctx context.Context, wt lock.WriteToken, tree *syntax.Tree) (*syntax.Tree, error) {
	if err := lock.CheckWrite(wt); err != nil {
		return nil, err
	}
	if !idx.IsLive(tree) {
		return nil, fmt.Errorf("committing %s: tree is stale: %w", tree.Path(), symtab.ErrInvalidOperation)
	}
	return idx.indexContent(ctx, tree.Path(), tree.PkgPath(), tree.Source(), true)
}

// RemoveFile drops a file from the index.
func (idx *Indexer) RemoveFile(path string) {
	idx.mu.Lock()
	idx.st.Invalidate(path)
	delete(idx.files, path)
	idx.mu.Unlock()
	idx.trees.drop(path)
}

// Reindex re-reads path from the source and indexes it again, or removes it
// when it no longer exists. Files Index would not pick up are left out.
func (idx *Indexer) Reindex(ctx context.Context, path string) error {
	idx.mu.RLock()
	_, tracked := idx.files[path]
	idx.mu.RUnlock()
	if !tracked && idx.Excludes(path) {
		return nil
	}
	src, err := idx.src.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		idx.RemoveFile(path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	idx.mu.RLock()
	state, ok := idx.files[path]
	idx.mu.RUnlock()
	pkgPath := ""
	if ok {
		pkgPath = state.pkgPath
		if state.overlay == nil && state.hash == hashOf(src) {
			return nil
		}
	} else {
		pkgPath = idx.fallbackPkgPath(filepath.Dir(path))
	}
	_, err = idx.indexContent(ctx, path, pkgPath, src, false)
	return err
}

// Index discovers all packages under the root and indexes files that are new
// or changed since they were last indexed. Files that disappeared are removed.
// Parsing runs concurrently, bounded by the worker count.
func (idx *Indexer) Index(ctx context.Context) error {
	entries, err := idx.discover(ctx)
	if err != nil {
		return fmt.Errorf("discovering packages: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[e.path] = true
	}
	for _, path := range idx.Files() {
		if !seen[path] && isUnderRoot(path, idx.root) {
			idx.RemoveFile(path)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for _, e := range entries {
		g.Go(func() error {
			src, err := idx.src.ReadFile(e.path)
			if err != nil {
				idx.logger.Printf("skipping %s: %v", e.path, err)
				return nil
			}
			idx.mu.RLock()
			state, ok := idx.files[e.path]
			idx.mu.RUnlock()
			if ok && state.hash == hashOf(src) && state.pkgPath == e.pkgPath {
				return nil
			}
			if _, err := idx.indexContent(gctx, e.path, e.pkgPath, src, false); err != nil {
				if errors.Is(err, symtab.ErrCanceled) {
					return err
				}
				idx.logger.Printf("skipping %s: %v", e.path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Tree returns the syntax tree of the indexed version of path, parsing it
// again when it is not cached. It fails with symtab.ErrInvalidElement when
// the file is unknown or its content no longer matches the index.
func (idx *Indexer) Tree(ctx context.Context, path string) (*syntax.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, symtab.Canceled(err)
	}
	idx.mu.RLock()
	state, ok := idx.files[path]
	idx.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s is not indexed: %w", path, symtab.ErrInvalidElement)
	}
	if tree := idx.trees.get(path, state.version); tree != nil {
		return tree, nil
	}
	return idx.trees.load(path, state.version, func() (*syntax.Tree, error) {
		src := state.overlay
		if src == nil {
			var err error
			if src, err = idx.src.ReadFile(path); err != nil {
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
			if hashOf(src) != state.hash {
				return nil, fmt.Errorf("%s changed since it was indexed: %w", path, symtab.ErrInvalidElement)
			}
		}
		return idx.parse(path, state.pkgPath, state.version, src)
	})
}

// Materialize turns an index location into a live declaration handle.
func (idx *Indexer) Materialize(ctx context.Context, loc symtab.Location) (symtab.Handle, error) {
	tree, err := idx.Tree(ctx, loc.File)
	if err != nil {
		return symtab.Handle{}, err
	}
	id := tree.DeclAtOffset(loc.Offset)
	if id == syntax.NoDecl {
		return symtab.Handle{}, fmt.Errorf("no declaration at %s: %w", loc, symtab.ErrInvalidElement)
	}
	return tree.Handle(id), nil
}

// Validate fails with symtab.ErrInvalidElement when h was derived from a
// version of its file that is no longer the indexed one.
func (idx *Indexer) Validate(h symtab.Handle) error {
	idx.mu.RLock()
	state, ok := idx.files[h.Location.File]
	idx.mu.RUnlock()
	if !ok || state.version != h.Version {
		return fmt.Errorf("handle %s@%d is stale: %w", h.Name, h.Version, symtab.ErrInvalidElement)
	}
	return nil
}

// Declaration returns the tree and declaration a handle points to.
func (idx *Indexer) Declaration(ctx context.Context, h symtab.Handle) (*syntax.Tree, syntax.DeclID, error) {
	if err := idx.Validate(h); err != nil {
		return nil, syntax.NoDecl, err
	}
	tree, err := idx.Tree(ctx, h.Location.File)
	if err != nil {
		return nil, syntax.NoDecl, err
	}
	id := tree.DeclAtOffset(h.Location.Offset)
	if id == syntax.NoDecl || tree.DeclName(id) != h.Name {
		return nil, syntax.NoDecl, fmt.Errorf("handle %s no longer matches %s: %w", h.Name, h.Location, symtab.ErrInvalidElement)
	}
	return tree, id, nil
}

// IsLive reports whether tree is the current version of its file. Trees of
// files the indexer does not know are live until detached.
func (idx *Indexer) IsLive(tree *syntax.Tree) bool {
	if tree == nil || tree.Detached() {
		return false
	}
	idx.mu.RLock()
	state, ok := idx.files[tree.Path()]
	idx.mu.RUnlock()
	return !ok || state.version == tree.Version()
}

// FileVersion returns the modification stamp of an indexed file.
func (idx *Indexer) FileVersion(path string) (uint64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	state, ok := idx.files[path]
	if !ok {
		return 0, false
	}
	return state.version, true
}

// PackageOf returns the import path an indexed file belongs to.
func (idx *Indexer) PackageOf(path string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	state, ok := idx.files[path]
	if !ok {
		return "", false
	}
	return state.pkgPath, true
}

// Files returns all indexed file paths, sorted.
func (idx *Indexer) Files() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.files))
	for path := range idx.files {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Stubs returns the stub records of one indexed file.
func (idx *Indexer) Stubs(path string) []symtab.Stub {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if state, ok := idx.files[path]; ok {
		return state.stubs
	}
	return nil
}

// StubAt returns the stub recorded at loc, if any.
func (idx *Indexer) StubAt(loc symtab.Location) (symtab.Stub, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	state, ok := idx.files[loc.File]
	if !ok {
		return symtab.Stub{}, false
	}
	for _, s := range state.stubs {
		if s.Location.Offset == loc.Offset {
			return s, true
		}
	}
	return symtab.Stub{}, false
}

// PackageStubs returns the stubs of every file in a package, ordered by location.
func (idx *Indexer) PackageStubs(pkgPath string) []symtab.Stub {
	idx.mu.RLock()
	var out []symtab.Stub
	for _, state := range idx.files {
		if state.pkgPath == pkgPath {
			out = append(out, state.stubs...)
		}
	}
	idx.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Location.Less(out[j].Location) })
	return out
}

// Packages groups indexed files by package, sorted by import path.
func (idx *Indexer) Packages() []symtab.PackageInfo {
	idx.mu.RLock()
	byPath := make(map[string]*symtab.PackageInfo)
	for path, state := range idx.files {
		info, ok := byPath[state.pkgPath]
		if !ok {
			info = &symtab.PackageInfo{ImportPath: state.pkgPath}
			byPath[state.pkgPath] = info
		}
		info.Files = append(info.Files, path)
		for _, s := range state.stubs {
			switch s.Kind {
			case symtab.KindPackage:
				info.Name = s.Name
			case symtab.KindFunction:
				info.FuncCount++
			case symtab.KindType:
				info.TypeCount++
			}
		}
	}
	idx.mu.RUnlock()

	out := make([]symtab.PackageInfo, 0, len(byPath))
	for _, info := range byPath {
		sort.Strings(info.Files)
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImportPath < out[j].ImportPath })
	return out
}

// Purge drops every cached tree. Trees are parsed again on demand.
func (idx *Indexer) Purge() {
	idx.trees.clear()
}

// Save persists the stub records of every indexed file.
func (idx *Indexer) Save(path string) error {
	idx.mu.RLock()
	snap := &store.Snapshot{Files: make([]store.FileRecord, 0, len(idx.files))}
	for p, state := range idx.files {
		if state.overlay != nil {
			// unsaved editor content cannot be verified on reload
			continue
		}
		snap.Files = append(snap.Files, store.FileRecord{Path: p, Package: state.pkgPath, Hash: state.hash, Stubs: state.stubs})
	}
	idx.mu.RUnlock()
	sort.Slice(snap.Files, func(i, j int) bool { return snap.Files[i].Path < snap.Files[j].Path })
	return store.Save(path, snap)
}

// Load restores stub records saved by Save. Trees are not restored; they are
// parsed lazily and verified against the recorded content hash.
func (idx *Indexer) Load(path string) error {
	snap, err := store.Load(path)
	if err != nil {
		return err
	}
	sink := storeSink{idx.st}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, rec := range snap.Files {
		idx.st.Invalidate(rec.Path)
		for _, s := range rec.Stubs {
			stub.Index(s, sink)
		}
		idx.files[rec.Path] = &fileState{
			pkgPath: rec.Package,
			version: idx.stamp.Add(1),
			hash:    rec.Hash,
			stubs:   rec.Stubs,
		}
		idx.trees.drop(rec.Path)
	}
	return nil
}
