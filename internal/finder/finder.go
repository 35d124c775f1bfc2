// Package finder answers "which declarations named X are visible from Y"
// from the stub indices, hydrating syntax trees only for files with hits.
package finder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/indexer"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/stub"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
)

// MatchMode controls how symbol names are compared in FindSymbol.
type MatchMode string

const (
	MatchExact    MatchMode = "exact"
	MatchPrefix   MatchMode = "prefix"
	MatchContains MatchMode = "contains"
)

func matchesQuery(symbolName, query string, mode MatchMode) bool {
	switch mode {
	case MatchPrefix:
		return strings.HasPrefix(symbolName, query)
	case MatchContains:
		return strings.Contains(symbolName, query)
	default:
		return symbolName == query
	}
}

// VisibleFrom is the place a lookup is made from. Unexported declarations
// are only visible from their own package.
type VisibleFrom struct {
	Package string
	File    string
}

// Finder queries the stub indices of an Indexer.
type Finder struct {
	idx *indexer.Indexer
}

// New creates a Finder backed by the given Indexer.
func New(idx *indexer.Indexer) *Finder {
	return &Finder{idx: idx}
}

// Indexer returns the indexer the finder reads from.
func (f *Finder) Indexer() *indexer.Indexer { return f.idx }

func visible(name string, kind symtab.Kind, pkg string, from VisibleFrom) bool {
	if pkg == from.Package {
		return true
	}
	return kind != symtab.KindPackage && symtab.Handle{Name: name}.Exported()
}

// FindDeclarations returns the declarations named name of any of the given
// kinds that are visible from from, ordered by location. An empty result is
// not an error.
func (f *Finder) FindDeclarations(ctx context.Context, name string, kinds symtab.Kinds, from VisibleFrom) ([]symtab.Handle, error) {
	return f.find(ctx, name, kinds, func(kind symtab.Kind, pkg string) bool {
		return visible(name, kind, pkg, from)
	})
}

// FindInPackage is FindDeclarations restricted to one package, as used for
// qualified names like pkg.Name.
func (f *Finder) FindInPackage(ctx context.Context, pkgPath, name string, kinds symtab.Kinds, from VisibleFrom) ([]symtab.Handle, error) {
	return f.find(ctx, name, kinds, func(kind symtab.Kind, pkg string) bool {
		return pkg == pkgPath && visible(name, kind, pkg, from)
	})
}

func (f *Finder) find(ctx context.Context, name string, kinds symtab.Kinds, keep func(symtab.Kind, string) bool) ([]symtab.Handle, error) {
	handles := []symtab.Handle{}
	seen := make(map[symtab.Location]bool)
	for _, kind := range kinds.List() {
		key, ok := stub.KeyFor(kind)
		if !ok {
			continue
		}
		for _, loc := range f.idx.Store().Get(key, name) {
			if err := ctx.Err(); err != nil {
				return nil, symtab.Canceled(err)
			}
			if seen[loc] {
				continue
			}
			pkg, ok := f.idx.PackageOf(loc.File)
			if !ok || !keep(kind, pkg) {
				continue
			}
			h, err := f.idx.Materialize(ctx, loc)
			switch {
			case errors.Is(err, symtab.ErrCanceled):
				return nil, err
			case errors.Is(err, symtab.ErrInvalidElement):
				// the file changed on disk and has not been re-indexed yet
				continue
			case err != nil:
				return nil, fmt.Errorf("materializing %s: %w", loc, err)
			}
			if h.Kind != kind || h.Name != name {
				continue
			}
			seen[loc] = true
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Location.Less(handles[j].Location) })
	return handles, nil
}

// PackageNames returns the sorted distinct names of the declarations of a
// package that match kinds and are visible from from. It reads stub records
// only and never parses.
func (f *Finder) PackageNames(ctx context.Context, pkgPath string, kinds symtab.Kinds, from VisibleFrom) ([]string, error) {
	seen := make(map[string]bool)
	names := []string{}
	for _, s := range f.idx.PackageStubs(pkgPath) {
		if err := ctx.Err(); err != nil {
			return nil, symtab.Canceled(err)
		}
		if !kinds.Has(s.Kind) || seen[s.Name] || !visible(s.Name, s.Kind, s.Package, from) {
			continue
		}
		seen[s.Name] = true
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names, nil
}

// FindSymbol searches for symbols matching name across all indexed packages.
// mode controls how name is compared: exact (default), prefix, or contains.
// Package clauses are not reported.
func (f *Finder) FindSymbol(name string, mode MatchMode) []symtab.SymbolRef {
	st := f.idx.Store()
	var names []string
	if mode == MatchPrefix || mode == MatchContains {
		for _, n := range st.Names(stub.AllNames) {
			if matchesQuery(n, name, mode) {
				names = append(names, n)
			}
		}
	} else {
		names = []string{name}
	}

	var refs []symtab.SymbolRef
	for _, n := range names {
		for _, loc := range st.Get(stub.AllNames, n) {
			s, ok := f.idx.StubAt(loc)
			if !ok || s.Kind == symtab.KindPackage {
				continue
			}
			refs = append(refs, symtab.SymbolRef{
				Name:      s.Name,
				Package:   s.Package,
				Kind:      s.Kind,
				Container: s.Container,
				Location:  s.Location,
			})
		}
	}
	return refs
}

// FileSymbols returns the indexed declarations of one file in document order.
func (f *Finder) FileSymbols(path string) []symtab.SymbolRef {
	stubs := f.idx.Stubs(path)
	refs := make([]symtab.SymbolRef, 0, len(stubs))
	for _, s := range stubs {
		refs = append(refs, symtab.SymbolRef{
			Name:      s.Name,
			Package:   s.Package,
			Kind:      s.Kind,
			Container: s.Container,
			Location:  s.Location,
		})
	}
	return refs
}

// GetPackages returns all indexed packages.
func (f *Finder) GetPackages() []symtab.PackageInfo {
	return f.idx.Packages()
}

// GetPackage returns a package by import path.
func (f *Finder) GetPackage(importPath string) (symtab.PackageInfo, bool) {
	for _, p := range f.idx.Packages() {
		if p.ImportPath == importPath {
			return p, true
		}
	}
	return symtab.PackageInfo{}, false
}
