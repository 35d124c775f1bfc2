package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/finder"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
)

type pkgSummary struct {
	ImportPath string   `json:"import_path"`
	Name       string   `json:"name"`
	Files      []string `json:"files"`
	FuncCount  int      `json:"func_count"`
	TypeCount  int      `json:"type_count"`
}

// listPackagesHandler returns a handler for the list_packages tool.
// Packages are filtered by import-path prefix; file paths are reported
// relative to the indexed root.
func listPackagesHandler(f *finder.Finder) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prefix := req.GetString("filter", "")
		root := f.Indexer().Root()

		summaries := []pkgSummary{}
		for _, info := range f.GetPackages() {
			if !strings.HasPrefix(info.ImportPath, prefix) {
				continue
			}
			files := make([]string, 0, len(info.Files))
			for _, file := range info.Files {
				if rel, err := filepath.Rel(root, file); err == nil {
					file = filepath.ToSlash(rel)
				}
				files = append(files, file)
			}
			summaries = append(summaries, pkgSummary{
				ImportPath: info.ImportPath,
				Name:       info.Name,
				Files:      files,
				FuncCount:  info.FuncCount,
				TypeCount:  info.TypeCount,
			})
		}
		return jsonResult(summaries)
	}
}

// packageSymbolKinds are the kinds get_package_symbols reports.
var packageSymbolKinds = symtab.KindsOf(symtab.KindFunction, symtab.KindMethod, symtab.KindType,
	symtab.KindField, symtab.KindVar, symtab.KindConst)

// getPackageSymbolsHandler returns a handler for the get_package_symbols tool.
// Declarations are grouped by kind and listed in file order within a group.
func getPackageSymbolsHandler(f *finder.Finder) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pkgPath, err := req.RequireString("package")
		if err != nil {
			return nil, err
		}
		pkg, ok := f.GetPackage(pkgPath)
		if !ok {
			return nil, fmt.Errorf("package %q not found", pkgPath)
		}

		var refs []symtab.SymbolRef
		for _, file := range pkg.Files {
			refs = append(refs, f.FileSymbols(file)...)
		}
		grouped := map[string][]symtab.SymbolRef{}
		for _, r := range filterRefs(refs, packageSymbolKinds, req.GetBool("include_unexported", false)) {
			grouped[r.Kind.String()] = append(grouped[r.Kind.String()], r)
		}
		return jsonResult(grouped)
	}
}
