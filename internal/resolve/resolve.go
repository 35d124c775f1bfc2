// Package resolve maps reference sites of a syntax tree to the declarations
// they denote. Lexical names and labels are resolved by walking the tree;
// package-level names of other files and imported packages go through an
// Index.
package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/finder"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/lock"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/syntax"
)

// Index is the cross-file lookup the resolver falls back to.
type Index interface {
	FindInPackage(ctx context.Context, pkgPath, name string, kinds symtab.Kinds, from finder.VisibleFrom) ([]symtab.Handle, error)
	PackageNames(ctx context.Context, pkgPath string, kinds symtab.Kinds, from finder.VisibleFrom) ([]string, error)
}

// Validator reports whether handles and trees still belong to the indexed
// version of their file.
type Validator interface {
	Validate(h symtab.Handle) error
	IsLive(tree *syntax.Tree) bool
}

// Resolver resolves reference sites. It holds no per-query state and is
// safe for concurrent use.
type Resolver struct {
	index     Index
	validator Validator
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithValidator makes Validate consult v.
func WithValidator(v Validator) Option { return func(r *Resolver) { r.validator = v } }

// New returns a Resolver. A nil index limits resolution to the tree itself.
func New(index Index, opts ...Option) *Resolver {
	r := &Resolver{index: index}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate fails with symtab.ErrInvalidElement when h is stale.
func (r *Resolver) Validate(h symtab.Handle) error {
	if r.validator == nil {
		return nil
	}
	return r.validator.Validate(h)
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return symtab.Canceled(err)
	}
	return nil
}

// live fails with symtab.ErrInvalidElement when tree was superseded.
func (r *Resolver) live(tree *syntax.Tree) error {
	if tree.Detached() || (r.validator != nil && !r.validator.IsLive(tree)) {
		return fmt.Errorf("%s@%d is stale: %w", tree.Path(), tree.Version(), symtab.ErrInvalidElement)
	}
	return nil
}

func from(tree *syntax.Tree) finder.VisibleFrom {
	return finder.VisibleFrom{Package: tree.PkgPath(), File: tree.Path()}
}

// Resolve returns the declaration ref denotes, or nil when it cannot be
// resolved. Cancellation, a missing read token and a superseded tree are
// errors.
func (r *Resolver) Resolve(ctx context.Context, rt lock.ReadToken, tree *syntax.Tree, ref syntax.RefID) (*symtab.Handle, error) {
	if err := lock.CheckRead(rt); err != nil {
		return nil, err
	}
	if err := r.live(tree); err != nil {
		return nil, err
	}
	return r.resolve(ctx, tree, ref)
}

func (r *Resolver) resolve(ctx context.Context, tree *syntax.Tree, ref syntax.RefID) (*symtab.Handle, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	site := tree.Ref(ref)
	if site == nil {
		return nil, nil
	}
	switch {
	case site.Expect == symtab.ExpectLabel:
		return r.label(ctx, tree, ref)
	case site.Qualifier != syntax.NoRef:
		return r.qualified(ctx, tree, ref)
	default:
		return r.lexical(ctx, tree, ref)
	}
}

// label scans every label of the topmost block enclosing the reference,
// regardless of whether it is declared before or after the reference.
func (r *Resolver) label(ctx context.Context, tree *syntax.Tree, ref syntax.RefID) (*symtab.Handle, error) {
	site := tree.Ref(ref)
	name := tree.RefName(ref)
	refSpan := tree.Ident(site.Ident).Span
	for _, id := range tree.LabelsIn(tree.TopmostBlock(site.Scope)) {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		if tree.DeclName(id) != name || tree.Ident(tree.Decl(id).Ident).Span == refSpan {
			continue
		}
		h := tree.Handle(id)
		return &h, nil
	}
	return nil, nil
}

// qualified resolves pkg.Name through the imported package's exported names.
func (r *Resolver) qualified(ctx context.Context, tree *syntax.Tree, ref syntax.RefID) (*symtab.Handle, error) {
	site := tree.Ref(ref)
	imp, err := r.importOf(ctx, tree, site.Qualifier)
	if err != nil || imp == "" || r.index == nil {
		return nil, err
	}
	handles, err := r.index.FindInPackage(ctx, imp, tree.RefName(ref), site.Expect, from(tree))
	if err != nil || len(handles) == 0 {
		return nil, err
	}
	return &handles[0], nil
}

// importOf returns the import path a qualifier resolves to, or "" when it is
// not a package name. A qualifier that is itself qualified, like p in s.p.Foo,
// is a field or method and never a package.
func (r *Resolver) importOf(ctx context.Context, tree *syntax.Tree, qualifier syntax.RefID) (string, error) {
	site := tree.Ref(qualifier)
	if site == nil || site.Qualifier != syntax.NoRef {
		return "", nil
	}
	id, err := r.lexicalDecl(ctx, tree, qualifier)
	if err != nil || id == syntax.NoDecl {
		return "", err
	}
	d := tree.Decl(id)
	if d.Kind != symtab.KindPackage {
		return "", nil
	}
	return d.ImportPath, nil
}

// lexical walks from the reference's scope outwards; the nearest scope with
// a match wins. Package-level names of other files of the same package are
// looked up through the index once the walk reaches the package scope. The
// package clause is not a name in scope.
func (r *Resolver) lexical(ctx context.Context, tree *syntax.Tree, ref syntax.RefID) (*symtab.Handle, error) {
	id, err := r.lexicalDecl(ctx, tree, ref)
	if err != nil {
		return nil, err
	}
	if id != syntax.NoDecl {
		h := tree.Handle(id)
		return &h, nil
	}
	if r.index == nil {
		return nil, nil
	}
	site := tree.Ref(ref)
	handles, err := r.index.FindInPackage(ctx, tree.PkgPath(), tree.RefName(ref), site.Expect.Without(symtab.KindPackage), from(tree))
	if err != nil {
		return nil, err
	}
	for i := range handles {
		// declarations of this file were already searched in the tree, whose
		// text may be ahead of the index
		if handles[i].Location.File != tree.Path() {
			return &handles[i], nil
		}
	}
	return nil, nil
}

func (r *Resolver) lexicalDecl(ctx context.Context, tree *syntax.Tree, ref syntax.RefID) (syntax.DeclID, error) {
	site := tree.Ref(ref)
	name := tree.RefName(ref)
	pos := tree.Ident(site.Ident).Span.Start
	for _, sid := range tree.Ancestors(site.Scope) {
		if err := checkCtx(ctx); err != nil {
			return syntax.NoDecl, err
		}
		scope := tree.Scope(sid)
		for _, id := range scope.Decls {
			d := tree.Decl(id)
			if !lexicallyVisible(d, site.Expect) || tree.DeclName(id) != name {
				continue
			}
			if sid == site.Scope && positional(scope.Kind) && d.VisibleFrom > pos {
				continue
			}
			return id, nil
		}
	}
	return syntax.NoDecl, nil
}

func lexicallyVisible(d *syntax.Decl, expect symtab.Kinds) bool {
	return !d.Member && d.Kind != symtab.KindLabel && expect.Has(d.Kind)
}

// positional reports whether declarations of a scope kind only come into
// view at their declaration point.
func positional(k syntax.ScopeKind) bool {
	return k == syntax.ScopeFunction || k == syntax.ScopeBlock
}

// Variants returns the sorted names visible from ref that match its expected
// kinds, as completion candidates.
func (r *Resolver) Variants(ctx context.Context, rt lock.ReadToken, tree *syntax.Tree, ref syntax.RefID) ([]string, error) {
	if err := lock.CheckRead(rt); err != nil {
		return nil, err
	}
	if err := r.live(tree); err != nil {
		return nil, err
	}
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	site := tree.Ref(ref)
	if site == nil {
		return []string{}, nil
	}

	names := newNameSet()
	switch {
	case site.Expect == symtab.ExpectLabel:
		for _, id := range tree.LabelsIn(tree.TopmostBlock(site.Scope)) {
			names.add(tree.DeclName(id))
		}
	case site.Qualifier != syntax.NoRef:
		imp, err := r.importOf(ctx, tree, site.Qualifier)
		if err != nil {
			return nil, err
		}
		if imp != "" && r.index != nil {
			pkgNames, err := r.index.PackageNames(ctx, imp, site.Expect, from(tree))
			if err != nil {
				return nil, err
			}
			names.add(pkgNames...)
		}
	default:
		pos := tree.Ident(site.Ident).Span.Start
		for _, sid := range tree.Ancestors(site.Scope) {
			if err := checkCtx(ctx); err != nil {
				return nil, err
			}
			scope := tree.Scope(sid)
			for _, id := range scope.Decls {
				d := tree.Decl(id)
				if !lexicallyVisible(d, site.Expect) {
					continue
				}
				if sid == site.Scope && positional(scope.Kind) && d.VisibleFrom > pos {
					continue
				}
				names.add(tree.DeclName(id))
			}
		}
		if r.index != nil {
			pkgNames, err := r.index.PackageNames(ctx, tree.PkgPath(), site.Expect.Without(symtab.KindPackage), from(tree))
			if err != nil {
				return nil, err
			}
			names.add(pkgNames...)
		}
	}
	return names.sorted(), nil
}

type nameSet map[string]struct{}

func newNameSet() nameSet { return make(nameSet) }

func (s nameSet) add(names ...string) {
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
}

func (s nameSet) sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
