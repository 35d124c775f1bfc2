package finder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/indexer"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
)

const (
	fixturePkg = "example.com/testdata/greeter"
	salutePkg  = "example.com/testdata/salute"
)

func newFixtureFinder(t *testing.T) *Finder {
	t.Helper()
	idx, err := indexer.New("../../tests/testdata")
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background()))
	return New(idx)
}

func TestFindSymbol(t *testing.T) {
	finder := newFixtureFinder(t)

	tests := []struct {
		symbol   string
		mode     MatchMode
		wantLen  int
		wantKind symtab.Kind // zero: mixed or no results
	}{
		{symbol: "New", wantLen: 1, wantKind: symtab.KindFunction},
		{symbol: "English", wantLen: 1, wantKind: symtab.KindType},
		{symbol: "DefaultPrefix", wantLen: 1, wantKind: symtab.KindConst},
		{symbol: "MaxLength", wantLen: 1, wantKind: symtab.KindVar},
		{symbol: "Prefix", wantLen: 1, wantKind: symtab.KindField},
		{symbol: "Greet", wantLen: 3, wantKind: symtab.KindMethod},
		{symbol: "Greet", mode: MatchPrefix, wantLen: 5},
		{symbol: "Length", mode: MatchContains, wantLen: 1, wantKind: symtab.KindVar},
		{symbol: "greeter"},
		{symbol: "ThisSymbolDefinitelyDoesNotExist"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol+"/"+string(tt.mode), func(t *testing.T) {
			refs := finder.FindSymbol(tt.symbol, tt.mode)
			if tt.wantLen == 0 {
				assert.Empty(t, refs)
				return
			}
			require.Len(t, refs, tt.wantLen)
			for _, r := range refs {
				assert.Equal(t, fixturePkg, r.Package)
				if tt.wantKind != 0 {
					assert.Equal(t, tt.wantKind, r.Kind)
				}
			}
		})
	}
}

func TestFindSymbolMethodContainers(t *testing.T) {
	finder := newFixtureFinder(t)

	var containers []string
	for _, r := range finder.FindSymbol("Greet", MatchExact) {
		containers = append(containers, r.Container)
	}
	assert.ElementsMatch(t, []string{"Greeter", "English", "Formal"}, containers)
}

func TestFindDeclarations(t *testing.T) {
	finder := newFixtureFinder(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		symbol   string
		kinds    symtab.Kinds
		from     VisibleFrom
		wantLen  int
		wantKind symtab.Kind
	}{
		{"exported from other package", "New", symtab.ExpectCall, VisibleFrom{Package: salutePkg}, 1, symtab.KindFunction},
		{"unexported from other package", "shout", symtab.ExpectCall, VisibleFrom{Package: salutePkg}, 0, 0},
		{"unexported from same package", "shout", symtab.ExpectCall, VisibleFrom{Package: fixturePkg}, 1, symtab.KindFunction},
		{"methods", "Greet", symtab.KindsOf(symtab.KindMethod), VisibleFrom{Package: salutePkg}, 3, symtab.KindMethod},
		{"kind filtered out", "New", symtab.ExpectType, VisibleFrom{Package: fixturePkg}, 0, 0},
		{"labels are never indexed", "Done", symtab.ExpectLabel, VisibleFrom{Package: fixturePkg}, 0, 0},
		{"package clause is package-private", "greeter", symtab.KindsOf(symtab.KindPackage), VisibleFrom{Package: salutePkg}, 0, 0},
		{"no such name", "Nope", symtab.ExpectValue, VisibleFrom{Package: fixturePkg}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handles, err := finder.FindDeclarations(ctx, tt.symbol, tt.kinds, tt.from)
			require.NoError(t, err)
			require.NotNil(t, handles)
			require.Len(t, handles, tt.wantLen)
			for _, h := range handles {
				assert.Equal(t, tt.symbol, h.Name)
				assert.Equal(t, tt.wantKind, h.Kind)
				assert.Equal(t, fixturePkg, h.Package)
				assert.NoError(t, finder.Indexer().Validate(h))
			}
		})
	}
}

func TestFindInPackage(t *testing.T) {
	finder := newFixtureFinder(t)
	ctx := context.Background()
	from := VisibleFrom{Package: salutePkg}

	handles, err := finder.FindInPackage(ctx, fixturePkg, "DefaultPrefix", symtab.ExpectValue, from)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, symtab.KindConst, handles[0].Kind)
	assert.Equal(t, "greeter.go", filepath.Base(handles[0].Location.File))

	handles, err = finder.FindInPackage(ctx, salutePkg, "DefaultPrefix", symtab.ExpectValue, from)
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestPackageNames(t *testing.T) {
	finder := newFixtureFinder(t)
	ctx := context.Background()

	tests := []struct {
		name string
		from VisibleFrom
		want []string
	}{
		{"other package sees exported", VisibleFrom{Package: salutePkg}, []string{"DefaultPrefix", "GreetAll", "MaxLength", "New"}},
		{"same package sees all", VisibleFrom{Package: fixturePkg}, []string{"DefaultPrefix", "GreetAll", "MaxLength", "New", "shout"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names, err := finder.PackageNames(ctx, fixturePkg, symtab.ExpectValue, tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestFindDeclarationsCrossFileParsesOnlyHits(t *testing.T) {
	idx, err := indexer.New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	files := map[string]string{
		"/p/a.go": "package p\n\nfunc Foo() {}\n",
		"/p/b.go": "package p\n\nfunc bar() { Foo() }\n",
		"/p/c.go": "package p\n\nvar unrelated = 1\n",
		"/p/d.go": "package p\n\ntype Other struct{}\n",
	}
	for path, src := range files {
		require.NoError(t, idx.IndexFile(ctx, path, "p", []byte(src)))
	}
	idx.Purge()
	before := idx.Parses()

	handles, err := New(idx).FindDeclarations(ctx, "Foo", symtab.KindsOf(symtab.KindFunction), VisibleFrom{Package: "p", File: "/p/b.go"})
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "/p/a.go", handles[0].Location.File)
	assert.Equal(t, 3, handles[0].Location.Line)
	assert.Equal(t, int64(1), idx.Parses()-before)
}

func TestFindDeclarationsCanceled(t *testing.T) {
	finder := newFixtureFinder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := finder.FindDeclarations(ctx, "New", symtab.ExpectCall, VisibleFrom{Package: fixturePkg})
	assert.ErrorIs(t, err, symtab.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = finder.PackageNames(ctx, fixturePkg, symtab.ExpectValue, VisibleFrom{Package: fixturePkg})
	assert.ErrorIs(t, err, symtab.ErrCanceled)
}

func TestGetPackages(t *testing.T) {
	finder := newFixtureFinder(t)

	pkgs := finder.GetPackages()
	require.Len(t, pkgs, 2)
	assert.Equal(t, fixturePkg, pkgs[0].ImportPath)
	assert.Equal(t, "greeter", pkgs[0].Name)
	assert.Len(t, pkgs[0].Files, 2)
	assert.Equal(t, 3, pkgs[0].FuncCount)
	assert.Equal(t, 3, pkgs[0].TypeCount)
	assert.Equal(t, salutePkg, pkgs[1].ImportPath)

	p, ok := finder.GetPackage(salutePkg)
	require.True(t, ok)
	assert.Equal(t, "salute", p.Name)
	_, ok = finder.GetPackage("no/such/package")
	assert.False(t, ok)
}

func TestFileSymbols(t *testing.T) {
	finder := newFixtureFinder(t)
	pkg, ok := finder.GetPackage(salutePkg)
	require.True(t, ok)
	require.Len(t, pkg.Files, 1)

	refs := finder.FileSymbols(pkg.Files[0])
	require.Len(t, refs, 2)
	assert.Equal(t, "salute", refs[0].Name)
	assert.Equal(t, symtab.KindPackage, refs[0].Kind)
	assert.Equal(t, "Morning", refs[1].Name)
	assert.Equal(t, symtab.KindFunction, refs[1].Kind)
}
