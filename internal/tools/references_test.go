package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
)

func TestResolveReferenceHandler(t *testing.T) {
	fx := newFixture(t)
	handler := resolveReferenceHandler(fx.finder, fx.res, fx.guard)

	tests := []struct {
		name     string
		file     string
		line     int
		column   int
		wantName string
		wantDecl *symtab.Handle
	}{
		{
			name: "qualified call into another package", file: "salute/salute.go", line: 8, column: 16,
			wantName: "New",
			wantDecl: &symtab.Handle{Name: "New", Kind: symtab.KindFunction, Package: fixturePkg},
		},
		{
			name: "package-level name from a sibling file", file: "greeter/batch.go", line: 6, column: 12,
			wantName: "MaxLength",
			wantDecl: &symtab.Handle{Name: "MaxLength", Kind: symtab.KindVar, Package: fixturePkg},
		},
		{
			name: "label declared after the jump", file: "greeter/batch.go", line: 9, column: 10,
			wantName: "Done",
			wantDecl: &symtab.Handle{Name: "Done", Kind: symtab.KindLabel, Package: fixturePkg},
		},
		{
			name: "selector on a variable does not resolve", file: "salute/salute.go", line: 9, column: 11,
			wantName: "Greet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out resolution
			call(t, handler, map[string]any{"file": tt.file, "line": tt.line, "column": tt.column}, &out)

			assert.Equal(t, tt.wantName, out.Name)
			if tt.wantDecl == nil {
				assert.Nil(t, out.Declaration)
				return
			}
			require.NotNil(t, out.Declaration)
			assert.Equal(t, tt.wantDecl.Name, out.Declaration.Name)
			assert.Equal(t, tt.wantDecl.Kind, out.Declaration.Kind)
			assert.Equal(t, tt.wantDecl.Package, out.Declaration.Package)
		})
	}

	t.Run("no identifier under the cursor", func(t *testing.T) {
		_, err := handler(t.Context(), requestOf(map[string]any{"file": "salute/salute.go", "line": 3, "column": 1}))
		assert.ErrorContains(t, err, "no reference")
	})

	t.Run("position outside the file", func(t *testing.T) {
		_, err := handler(t.Context(), requestOf(map[string]any{"file": "salute/salute.go", "line": 500, "column": 1}))
		assert.ErrorContains(t, err, "outside the file")
	})

	t.Run("file not indexed", func(t *testing.T) {
		_, err := handler(t.Context(), requestOf(map[string]any{"file": "nope.go", "line": 1, "column": 1}))
		assert.ErrorIs(t, err, symtab.ErrInvalidElement)
	})

	t.Run("missing line", func(t *testing.T) {
		_, err := handler(t.Context(), requestOf(map[string]any{"file": "salute/salute.go", "column": 1}))
		assert.Error(t, err)
	})
}

func TestCompleteHandler(t *testing.T) {
	fx := newFixture(t)
	handler := completeHandler(fx.finder, fx.res, fx.guard)

	t.Run("members of an imported package", func(t *testing.T) {
		var names []string
		call(t, handler, map[string]any{"file": "salute/salute.go", "line": 8, "column": 16}, &names)
		assert.Contains(t, names, "New")
		assert.Contains(t, names, "GreetAll")
		assert.NotContains(t, names, "shout")
		assert.IsIncreasing(t, names)
	})

	t.Run("labels of the function", func(t *testing.T) {
		var names []string
		call(t, handler, map[string]any{"file": "greeter/batch.go", "line": 9, "column": 10}, &names)
		assert.Equal(t, []string{"Done"}, names)
	})
}

func TestRenameHandler(t *testing.T) {
	fx := newFixture(t)
	handler := renameHandler(fx.finder, fx.res, fx.guard)
	batch := filepath.Join(fx.finder.Indexer().Root(), "greeter", "batch.go")

	var out renameResult
	call(t, handler, map[string]any{"file": "greeter/batch.go", "line": 6, "column": 2, "new_name": "budget"}, &out)

	assert.Equal(t, 2, out.References)
	assert.Equal(t, "budget", out.Declaration.Name)
	assert.Equal(t, symtab.KindVar, out.Declaration.Kind)
	require.NoError(t, fx.finder.Indexer().Validate(out.Declaration))

	tree, err := fx.finder.Indexer().Tree(context.Background(), batch)
	require.NoError(t, err)
	src := string(tree.Source())
	assert.Contains(t, src, "budget := MaxLength")
	assert.Contains(t, src, "if len(name) > budget {")
	assert.Contains(t, src, "limit := budget - len(name)")
	assert.Contains(t, src, "min(limit, len(name))")

	t.Run("through a reference", func(t *testing.T) {
		var out renameResult
		call(t, handler, map[string]any{"file": "greeter/batch.go", "line": 12, "column": 46, "new_name": "rest"}, &out)
		assert.Equal(t, "rest", out.Declaration.Name)
		assert.Equal(t, 1, out.References)
	})

	t.Run("invalid identifier", func(t *testing.T) {
		_, err := handler(t.Context(), requestOf(map[string]any{"file": "greeter/batch.go", "line": 6, "column": 2, "new_name": "1x"}))
		assert.ErrorIs(t, err, symtab.ErrInvalidOperation)
	})
}

func TestQueriesWhileRenaming(t *testing.T) {
	fx := newFixture(t)
	ctx := t.Context()
	rename := renameHandler(fx.finder, fx.res, fx.guard)
	find := withReadLock(fx.guard, findDeclarationsHandler(fx.finder))
	files := withReadLock(fx.guard, fileDeclarationsHandler(fx.finder))
	const rounds = 20

	var g errgroup.Group
	g.Go(func() error {
		for i := range rounds {
			args := map[string]any{"file": "greeter/batch.go", "line": 6, "column": 2, "new_name": fmt.Sprintf("limit%d", i)}
			if _, err := rename(ctx, requestOf(args)); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for range rounds {
			if _, err := find(ctx, requestOf(map[string]any{"name": "GreetAll"})); err != nil {
				return err
			}
			if _, err := files(ctx, requestOf(map[string]any{"file": "greeter/batch.go"})); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	tree, err := fx.finder.Indexer().Tree(ctx, filepath.Join(fx.finder.Indexer().Root(), "greeter", "batch.go"))
	require.NoError(t, err)
	assert.Contains(t, string(tree.Source()), fmt.Sprintf("limit%d := MaxLength", rounds-1))
}
