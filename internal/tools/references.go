package tools

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/finder"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/lock"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/reference"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/resolve"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/syntax"
)

// position is a cursor in an indexed file, taken from the file, line and
// column arguments of a request.
type position struct {
	file   string
	line   int
	column int
}

func (p position) String() string { return fmt.Sprintf("%s:%d:%d", p.file, p.line, p.column) }

func positionOf(f *finder.Finder, req mcp.CallToolRequest) (position, error) {
	file, err := req.RequireString("file")
	if err != nil {
		return position{}, err
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return position{}, err
	}
	column, err := req.RequireInt("column")
	if err != nil {
		return position{}, err
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(f.Indexer().Root(), file)
	}
	return position{file: filepath.Clean(file), line: line, column: column}, nil
}

// locate returns the tree and byte offset a position points at.
func locate(ctx context.Context, f *finder.Finder, pos position) (*syntax.Tree, int, error) {
	tree, err := f.Indexer().Tree(ctx, pos.file)
	if err != nil {
		return nil, 0, err
	}
	off, ok := tree.Offset(pos.line, pos.column)
	if !ok {
		return nil, 0, fmt.Errorf("position %s is outside the file", pos)
	}
	return tree, off, nil
}

func referenceAt(ctx context.Context, f *finder.Finder, res *resolve.Resolver, pos position) (*reference.Reference, error) {
	tree, off, err := locate(ctx, f, pos)
	if err != nil {
		return nil, err
	}
	ref := reference.At(tree, off, res)
	if ref == nil {
		return nil, fmt.Errorf("no reference at %s", pos)
	}
	return ref, nil
}

type resolution struct {
	Name        string          `json:"name"`
	Location    symtab.Location `json:"location"`
	Expect      string          `json:"expect"`
	Declaration *symtab.Handle  `json:"declaration"`
}

// resolveReferenceHandler returns a handler for the resolve_reference tool.
// It reports the declaration the identifier under the cursor denotes; the
// declaration is null when the reference does not resolve.
func resolveReferenceHandler(f *finder.Finder, res *resolve.Resolver, guard *lock.Guard) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pos, err := positionOf(f, req)
		if err != nil {
			return nil, err
		}

		var out resolution
		err = guard.Read(func(rt lock.ReadToken) error {
			ref, err := referenceAt(ctx, f, res, pos)
			if err != nil {
				return err
			}
			h, err := ref.Resolve(ctx, rt)
			if err != nil {
				return err
			}
			out = resolution{Name: ref.Name(), Location: ref.Location(), Expect: ref.Expect().String(), Declaration: h}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return jsonResult(out)
	}
}

// completeHandler returns a handler for the complete tool.
// It lists the names the reference under the cursor could be replaced with.
func completeHandler(f *finder.Finder, res *resolve.Resolver, guard *lock.Guard) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pos, err := positionOf(f, req)
		if err != nil {
			return nil, err
		}

		var names []string
		err = guard.Read(func(rt lock.ReadToken) error {
			ref, err := referenceAt(ctx, f, res, pos)
			if err != nil {
				return err
			}
			names, err = ref.Variants(ctx, rt)
			return err
		})
		if err != nil {
			return nil, err
		}
		return jsonResult(names)
	}
}

type renameResult struct {
	Declaration symtab.Handle `json:"declaration"`
	References  int           `json:"references"`
}

// renameHandler returns a handler for the rename_declaration tool.
// The cursor may sit on the declaration or on any reference to it. Only the
// declaring file is rewritten, and only in the index; the file on disk is
// left alone.
func renameHandler(f *finder.Finder, res *resolve.Resolver, guard *lock.Guard) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pos, err := positionOf(f, req)
		if err != nil {
			return nil, err
		}
		newName, err := req.RequireString("new_name")
		if err != nil {
			return nil, err
		}

		idx := f.Indexer()
		var out renameResult
		err = guard.Write(func(wt lock.WriteToken) error {
			tree, off, err := locate(ctx, f, pos)
			if err != nil {
				return err
			}
			tree, id, err := reference.DeclarationAt(ctx, wt, idx, res, tree, off)
			if err != nil {
				return err
			}

			n, err := reference.RenameDeclaration(ctx, wt, res, tree, id, newName)
			if err != nil {
				return err
			}
			start := tree.Ident(tree.Decl(id).Ident).Span.Start
			committed, err := idx.Commit(ctx, wt, tree)
			if err != nil {
				return err
			}
			out = renameResult{Declaration: committed.Handle(committed.DeclAtOffset(start)), References: n}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return jsonResult(out)
	}
}
