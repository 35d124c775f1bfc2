package reference

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/finder"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/indexer"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/lock"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/resolve"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/syntax"
)

const src = `package demo

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func twice(n int) int {
	total := n * 2
	return total
}
`

type fixture struct {
	guard lock.Guard
	idx   *indexer.Indexer
	res   *resolve.Resolver
	tree  *syntax.Tree
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idx, err := indexer.New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, idx.IndexFile(ctx, "/demo/demo.go", "demo", []byte(src)))
	tree, err := idx.Tree(ctx, "/demo/demo.go")
	require.NoError(t, err)
	return &fixture{
		idx:  idx,
		res:  resolve.New(finder.New(idx), resolve.WithValidator(idx)),
		tree: tree,
	}
}

// at returns the reference at the n-th occurrence (0-based) of anchor.
func (f *fixture) at(t *testing.T, anchor string, n int) *Reference {
	t.Helper()
	text := string(f.tree.Source())
	off := -1
	for i := 0; i <= n; i++ {
		next := strings.Index(text[off+1:], anchor)
		require.GreaterOrEqual(t, next, 0, "occurrence %d of %q", i, anchor)
		off += next + 1
	}
	ref := At(f.tree, off, f.res)
	require.NotNil(t, ref, "no reference at occurrence %d of %q", n, anchor)
	return ref
}

func (f *fixture) read(t *testing.T, fn func(rt lock.ReadToken)) {
	t.Helper()
	require.NoError(t, f.guard.Read(func(rt lock.ReadToken) error {
		fn(rt)
		return nil
	}))
}

func (f *fixture) write(t *testing.T, fn func(wt lock.WriteToken)) {
	t.Helper()
	require.NoError(t, f.guard.Write(func(wt lock.WriteToken) error {
		fn(wt)
		return nil
	}))
}

func TestAt(t *testing.T) {
	f := newFixture(t)

	ref := f.at(t, "total += v", 0)
	assert.Equal(t, "total", ref.Name())
	assert.Equal(t, 6, ref.Location().Line)
	assert.Equal(t, 3, ref.Location().Column)
	assert.True(t, ref.Expect().Has(symtab.KindVar))

	assert.Nil(t, At(f.tree, 0, f.res), "package clause is not a reference")
	assert.Len(t, All(f.tree, f.res), 10)
}

func TestResolveAndIsReferenceTo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inSum := f.at(t, "total += v", 0)
	inTwice := f.at(t, "return total", 1)

	f.read(t, func(rt lock.ReadToken) {
		h, err := inSum.Resolve(ctx, rt)
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.Equal(t, 4, h.Location.Line)

		other, err := inTwice.Resolve(ctx, rt)
		require.NoError(t, err)
		require.NotNil(t, other)
		assert.Equal(t, 12, other.Location.Line)

		tests := []struct {
			name      string
			ref       *Reference
			candidate symtab.Handle
			want      bool
		}{
			{"own declaration", inSum, *h, true},
			{"same name other scope", inSum, *other, false},
			{"other reference", inTwice, *other, true},
			{"wrong kind", inSum, func() symtab.Handle { c := *h; c.Kind = symtab.KindType; return c }(), false},
			{"wrong name", inSum, func() symtab.Handle { c := *h; c.Name = "sum"; return c }(), false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := tt.ref.IsReferenceTo(ctx, rt, tt.candidate)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	})
}

func TestIsReferenceToStaleHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.at(t, "total += v", 0)

	var h *symtab.Handle
	f.read(t, func(rt lock.ReadToken) {
		var err error
		h, err = ref.Resolve(ctx, rt)
		require.NoError(t, err)
		require.NotNil(t, h)
	})

	require.NoError(t, f.idx.IndexFile(ctx, "/demo/demo.go", "demo", []byte(src)))

	f.read(t, func(rt lock.ReadToken) {
		got, err := ref.IsReferenceTo(ctx, rt, *h)
		require.NoError(t, err)
		assert.False(t, got)
	})
}

func TestSupersededReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.at(t, "total += v", 0)

	require.NoError(t, f.idx.IndexFile(ctx, "/demo/demo.go", "demo", []byte(src)))

	f.read(t, func(rt lock.ReadToken) {
		h, err := ref.Resolve(ctx, rt)
		assert.Nil(t, h)
		assert.ErrorIs(t, err, symtab.ErrInvalidElement)

		_, err = ref.Variants(ctx, rt)
		assert.ErrorIs(t, err, symtab.ErrInvalidElement)

		_, _, err = DeclarationAt(ctx, rt, f.idx, f.res, f.tree, strings.Index(src, "return total")+len("return "))
		assert.ErrorIs(t, err, symtab.ErrInvalidElement)

		tree, err := f.idx.Tree(ctx, "/demo/demo.go")
		require.NoError(t, err)
		h, err = At(tree, ref.Location().Offset, f.res).Resolve(ctx, rt)
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.Equal(t, 4, h.Location.Line)
	})
}

func TestVariants(t *testing.T) {
	f := newFixture(t)
	ref := f.at(t, "return total", 0)

	f.read(t, func(rt lock.ReadToken) {
		got, err := ref.Variants(context.Background(), rt)
		require.NoError(t, err)
		assert.Equal(t, []string{"sum", "total", "twice", "values"}, got)
	})
}

func TestRenameReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.at(t, "total += v", 0)
	other := f.at(t, "return total", 0)

	f.write(t, func(wt lock.WriteToken) {
		renamed, err := ref.Rename(wt, "acc")
		require.NoError(t, err)
		assert.Equal(t, "acc", renamed.Name())
		assert.Contains(t, string(f.tree.Source()), "\t\tacc += v\n")

		// the declaration still carries the old name
		h, err := renamed.Resolve(ctx, wt)
		require.NoError(t, err)
		assert.Nil(t, h)
		h, err = other.Resolve(ctx, wt)
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.Equal(t, "total", h.Name)
	})
}

func TestRenameConsistency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	declOff := strings.Index(string(f.tree.Source()), "total := 0")
	decl := f.tree.DeclAt(declOff)
	require.NotEqual(t, syntax.NoDecl, decl)
	before := f.tree.Handle(decl)

	f.write(t, func(wt lock.WriteToken) {
		n, err := RenameDeclaration(ctx, wt, f.res, f.tree, decl, "acc")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	text := string(f.tree.Source())
	assert.Contains(t, text, "acc := 0")
	assert.Contains(t, text, "acc += v")
	assert.Contains(t, text, "return acc\n}\n\nfunc twice")
	assert.Contains(t, text, "total := n * 2\n\treturn total\n")

	f.read(t, func(rt lock.ReadToken) {
		for _, ref := range All(f.tree, f.res) {
			h, err := ref.Resolve(ctx, rt)
			require.NoError(t, err)
			if ref.Name() == "acc" {
				require.NotNil(t, h)
				assert.Equal(t, "acc", h.Name)
				assert.Equal(t, before.Location.Offset, h.Location.Offset)
			}
			if h != nil && h.Name == "total" {
				assert.Equal(t, 12, h.Location.Line, "only twice keeps a total")
			}
		}
	})
}

func TestRenameCommitInvalidatesHandles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.at(t, "total += v", 0)

	var h *symtab.Handle
	f.write(t, func(wt lock.WriteToken) {
		var err error
		h, err = ref.Resolve(ctx, wt)
		require.NoError(t, err)
		require.NotNil(t, h)
		decl := f.tree.DeclAt(h.Location.Offset)
		_, err = RenameDeclaration(ctx, wt, f.res, f.tree, decl, "acc")
		require.NoError(t, err)
		_, err = f.idx.Commit(ctx, wt, f.tree)
		require.NoError(t, err)
	})

	assert.ErrorIs(t, f.res.Validate(*h), symtab.ErrInvalidElement)
	assert.True(t, f.tree.Detached())

	f.write(t, func(wt lock.WriteToken) {
		_, err := ref.Rename(wt, "again")
		assert.ErrorIs(t, err, symtab.ErrInvalidOperation)
	})
}

func TestRenameFailuresLeaveTreeUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := f.at(t, "total += v", 0)
	decl := f.tree.DeclAt(strings.Index(string(f.tree.Source()), "total := 0"))
	original := string(f.tree.Source())

	tests := []struct {
		name    string
		newName string
	}{
		{"empty", ""},
		{"keyword", "func"},
		{"blank", "_"},
		{"not an identifier", "a-b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.write(t, func(wt lock.WriteToken) {
				_, err := ref.Rename(wt, tt.newName)
				assert.ErrorIs(t, err, symtab.ErrInvalidOperation)
				_, err = RenameDeclaration(ctx, wt, f.res, f.tree, decl, tt.newName)
				assert.ErrorIs(t, err, symtab.ErrInvalidOperation)
			})
			assert.Equal(t, original, string(f.tree.Source()))
		})
	}

	t.Run("missing write token", func(t *testing.T) {
		_, err := ref.Rename(nil, "acc")
		assert.ErrorIs(t, err, lock.ErrNoWriteAccess)
		_, err = RenameDeclaration(ctx, nil, f.res, f.tree, decl, "acc")
		assert.ErrorIs(t, err, lock.ErrNoWriteAccess)
		assert.Equal(t, original, string(f.tree.Source()))
	})
}

func TestDeclarationAt(t *testing.T) {
	f := newFixture(t)
	text := string(f.tree.Source())
	declOff := strings.Index(text, "total := 0")
	refOff := strings.Index(text, "return total") + len("return ")
	want := f.tree.Handle(f.tree.DeclAt(declOff))

	f.read(t, func(rt lock.ReadToken) {
		for _, off := range []int{declOff, refOff} {
			tree, id, err := DeclarationAt(context.Background(), rt, f.idx, f.res, f.tree, off)
			require.NoError(t, err)
			assert.True(t, tree.Handle(id).Same(want))
		}

		_, _, err := DeclarationAt(context.Background(), rt, f.idx, f.res, f.tree, strings.Index(text, "[]int")+2)
		assert.ErrorContains(t, err, "does not resolve")

		_, _, err = DeclarationAt(context.Background(), rt, f.idx, f.res, f.tree, strings.Index(text, "\n\nfunc twice")+1)
		assert.ErrorContains(t, err, "no declaration or reference")
	})

	_, _, err := DeclarationAt(context.Background(), nil, f.idx, f.res, f.tree, declOff)
	assert.ErrorIs(t, err, lock.ErrNoReadAccess)
}
