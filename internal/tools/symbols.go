package tools

import (
	"context"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/finder"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
)

// findSymbolHandler returns a handler for the find_symbol tool.
// It searches for a symbol name across all indexed packages,
// with an optional kind filter (func, method, type, var, const, field).
func findSymbolHandler(f *finder.Finder) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return nil, err
		}
		kinds, err := parseKinds(req.GetString("kind", ""))
		if err != nil {
			return nil, err
		}
		match := finder.MatchMode(req.GetString("match", string(finder.MatchExact)))

		return jsonResult(filterRefs(f.FindSymbol(name, match), kinds, true))
	}
}

// findDeclarationsHandler returns a handler for the find_declarations tool.
// Unexported declarations are only returned when "from" names their package.
func findDeclarationsHandler(f *finder.Finder) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return nil, err
		}
		kinds, err := parseKinds(req.GetString("kind", ""))
		if err != nil {
			return nil, err
		}
		from := finder.VisibleFrom{Package: req.GetString("from", "")}

		var handles []symtab.Handle
		if pkg := req.GetString("package", ""); pkg != "" {
			handles, err = f.FindInPackage(ctx, pkg, name, kinds, from)
		} else {
			handles, err = f.FindDeclarations(ctx, name, kinds, from)
		}
		if err != nil {
			return nil, err
		}
		return jsonResult(handles)
	}
}

// fileDeclarationsHandler returns a handler for the file_declarations tool.
func fileDeclarationsHandler(f *finder.Finder) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		file, err := req.RequireString("file")
		if err != nil {
			return nil, err
		}
		if !filepath.IsAbs(file) {
			file = filepath.Join(f.Indexer().Root(), file)
		}
		return jsonResult(f.FileSymbols(file))
	}
}
