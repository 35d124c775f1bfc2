// Package reference binds reference sites of a syntax tree to a resolver and
// implements the editor operations on them: resolution, completion,
// identity checks and rename.
package reference

import (
	"context"
	"fmt"
	"go/token"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/lock"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/resolve"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/syntax"
)

// Reference is one reference site. It stores no binding; every call
// resolves again against the current tree.
type Reference struct {
	tree *syntax.Tree
	id   syntax.RefID
	res  *resolve.Resolver
}

// New binds the reference site id of tree to res.
func New(tree *syntax.Tree, id syntax.RefID, res *resolve.Resolver) *Reference {
	return &Reference{tree: tree, id: id, res: res}
}

// At returns the reference under the cursor at offset, or nil.
func At(tree *syntax.Tree, offset int, res *resolve.Resolver) *Reference {
	id := tree.RefAt(offset)
	if id == syntax.NoRef {
		return nil
	}
	return New(tree, id, res)
}

// All returns every reference site of tree in document order.
func All(tree *syntax.Tree, res *resolve.Resolver) []*Reference {
	ids := tree.Refs()
	out := make([]*Reference, 0, len(ids))
	for _, id := range ids {
		out = append(out, New(tree, id, res))
	}
	return out
}

// Tree returns the tree the reference lives in.
func (r *Reference) Tree() *syntax.Tree { return r.tree }

// ID returns the reference site id.
func (r *Reference) ID() syntax.RefID { return r.id }

// Name returns the current text of the reference.
func (r *Reference) Name() string { return r.tree.RefName(r.id) }

// Expect returns the kinds the reference may resolve to.
func (r *Reference) Expect() symtab.Kinds {
	if site := r.tree.Ref(r.id); site != nil {
		return site.Expect
	}
	return 0
}

// Location returns the position of the reference.
func (r *Reference) Location() symtab.Location {
	site := r.tree.Ref(r.id)
	if site == nil {
		return symtab.Location{}
	}
	return r.tree.Location(r.tree.Ident(site.Ident).Span.Start)
}

// Resolve returns the declaration the reference denotes, or nil.
func (r *Reference) Resolve(ctx context.Context, rt lock.ReadToken) (*symtab.Handle, error) {
	return r.res.Resolve(ctx, rt, r.tree, r.id)
}

// Variants returns completion candidates for the reference.
func (r *Reference) Variants(ctx context.Context, rt lock.ReadToken) ([]string, error) {
	return r.res.Variants(ctx, rt, r.tree, r.id)
}

// IsReferenceTo reports whether the reference denotes candidate. The cheap
// test (name, kind and freshness) must pass before the reference is resolved
// and the identities compared.
func (r *Reference) IsReferenceTo(ctx context.Context, rt lock.ReadToken, candidate symtab.Handle) (bool, error) {
	if err := lock.CheckRead(rt); err != nil {
		return false, err
	}
	if candidate.Name != r.Name() || !r.Expect().Has(candidate.Kind) {
		return false, nil
	}
	if err := r.res.Validate(candidate); err != nil {
		return false, nil
	}
	resolved, err := r.Resolve(ctx, rt)
	if err != nil || resolved == nil {
		return false, err
	}
	return resolved.Same(candidate), nil
}

// Rename replaces the identifier of the reference with a new node named
// newName. It fails with symtab.ErrInvalidOperation when the tree was
// superseded or newName is not an identifier; the tree is then unchanged.
func (r *Reference) Rename(wt lock.WriteToken, newName string) (*Reference, error) {
	if err := lock.CheckWrite(wt); err != nil {
		return nil, err
	}
	site := r.tree.Ref(r.id)
	if site == nil {
		return nil, fmt.Errorf("renaming reference %d: %w", r.id, symtab.ErrInvalidOperation)
	}
	if err := r.tree.Rename(site.Ident, newName); err != nil {
		return nil, err
	}
	return r, nil
}

// RenameDeclaration renames the declaration id of tree and every reference
// site in tree that resolves to it. It returns the number of renamed
// references. Nothing is changed when an error is returned.
func RenameDeclaration(ctx context.Context, wt lock.WriteToken, res *resolve.Resolver, tree *syntax.Tree, id syntax.DeclID, newName string) (int, error) {
	if err := lock.CheckWrite(wt); err != nil {
		return 0, err
	}
	d := tree.Decl(id)
	switch {
	case d == nil:
		return 0, fmt.Errorf("renaming declaration %d: %w", id, symtab.ErrInvalidOperation)
	case d.Implicit:
		return 0, fmt.Errorf("renaming implicit %s: %w", tree.DeclName(id), symtab.ErrInvalidOperation)
	case tree.Detached():
		return 0, fmt.Errorf("renaming in %s: tree is detached: %w", tree.Path(), symtab.ErrInvalidOperation)
	case !token.IsIdentifier(newName) || newName == "_":
		return 0, fmt.Errorf("renaming to %q: not a valid identifier: %w", newName, symtab.ErrInvalidOperation)
	}

	target := tree.Handle(id)
	var sites []syntax.IdentID
	for _, ref := range All(tree, res) {
		if ref.Name() != target.Name {
			continue
		}
		h, err := ref.Resolve(ctx, wt)
		if err != nil {
			return 0, err
		}
		if h != nil && h.Same(target) {
			sites = append(sites, tree.Ref(ref.ID()).Ident)
		}
	}

	if err := tree.Rename(d.Ident, newName); err != nil {
		return 0, err
	}
	for _, ident := range sites {
		if err := tree.Rename(ident, newName); err != nil {
			// unreachable after the checks above
			return 0, err
		}
	}
	return len(sites), nil
}

// Declarations maps a handle back to its tree and declaration.
type Declarations interface {
	Declaration(ctx context.Context, h symtab.Handle) (*syntax.Tree, syntax.DeclID, error)
}

// DeclarationAt returns the declaration under the cursor at offset: either
// the declaration whose name covers it, or the one the reference there
// resolves to. The returned tree may belong to another file.
func DeclarationAt(ctx context.Context, rt lock.ReadToken, decls Declarations, res *resolve.Resolver, tree *syntax.Tree, offset int) (*syntax.Tree, syntax.DeclID, error) {
	if err := lock.CheckRead(rt); err != nil {
		return nil, syntax.NoDecl, err
	}
	if id := tree.DeclAt(offset); id != syntax.NoDecl {
		return tree, id, nil
	}
	ref := At(tree, offset, res)
	if ref == nil {
		return nil, syntax.NoDecl, fmt.Errorf("no declaration or reference at %s", tree.Location(offset))
	}
	h, err := ref.Resolve(ctx, rt)
	if err != nil {
		return nil, syntax.NoDecl, err
	}
	if h == nil {
		return nil, syntax.NoDecl, fmt.Errorf("%s at %s does not resolve", ref.Name(), ref.Location())
	}
	return decls.Declaration(ctx, *h)
}
