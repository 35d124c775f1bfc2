package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/finder"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/lock"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/resolve"
)

// Register wires all name-resolution MCP tools to s.
// Index queries go through f under the read side of guard; cursor-based
// tools resolve with res while holding the matching side of guard.
func Register(s *server.MCPServer, f *finder.Finder, res *resolve.Resolver, guard *lock.Guard) {
	s.AddTool(mcp.NewTool("list_packages",
		mcp.WithDescription("Lists all indexed packages with summary statistics."),
		mcp.WithString("filter", mcp.Description("Optional prefix filter on import path")),
	), withLengthCheck(withReadLock(guard, listPackagesHandler(f))))

	s.AddTool(mcp.NewTool("get_package_symbols",
		mcp.WithDescription("Returns the declarations of a package in file order."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package import path")),
		mcp.WithBoolean("include_unexported", mcp.Description("Include unexported symbols (default: false)")),
	), withLengthCheck(withReadLock(guard, getPackageSymbolsHandler(f))))

	s.AddTool(mcp.NewTool("find_symbol",
		mcp.WithDescription("Searches for a symbol by name across the entire indexed codebase."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Symbol name")),
		mcp.WithString("kind", mcp.Description("Comma-separated kinds: func, method, type, var, const, field (empty = all)")),
		mcp.WithString("match", mcp.Description(`Match mode: "exact" (default), "prefix", or "contains"`)),
	), withLengthCheck(withReadLock(guard, findSymbolHandler(f))))

	s.AddTool(mcp.NewTool("find_declarations",
		mcp.WithDescription("Finds the declarations named exactly name that are visible from a package."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Declaration name")),
		mcp.WithString("kind", mcp.Description("Comma-separated kinds (empty = all)")),
		mcp.WithString("package", mcp.Description("Restrict the search to this package import path")),
		mcp.WithString("from", mcp.Description("Import path of the package the lookup is made from")),
	), withLengthCheck(withReadLock(guard, findDeclarationsHandler(f))))

	s.AddTool(mcp.NewTool("file_declarations",
		mcp.WithDescription("Lists the indexed declarations of one file in document order."),
		mcp.WithString("file", mcp.Required(), mcp.Description("File path, absolute or relative to the indexed root")),
	), withLengthCheck(withReadLock(guard, fileDeclarationsHandler(f))))

	s.AddTool(mcp.NewTool("resolve_reference",
		mcp.WithDescription("Resolves the identifier at a position to the declaration it denotes."),
		mcp.WithString("file", mcp.Required(), mcp.Description("File path, absolute or relative to the indexed root")),
		mcp.WithNumber("line", mcp.Required(), mcp.Min(1), mcp.Description("1-based line")),
		mcp.WithNumber("column", mcp.Required(), mcp.Min(1), mcp.Description("1-based column, in bytes")),
	), withLengthCheck(resolveReferenceHandler(f, res, guard)))

	s.AddTool(mcp.NewTool("complete",
		mcp.WithDescription("Lists the names that could replace the identifier at a position."),
		mcp.WithString("file", mcp.Required(), mcp.Description("File path, absolute or relative to the indexed root")),
		mcp.WithNumber("line", mcp.Required(), mcp.Min(1), mcp.Description("1-based line")),
		mcp.WithNumber("column", mcp.Required(), mcp.Min(1), mcp.Description("1-based column, in bytes")),
	), withLengthCheck(completeHandler(f, res, guard)))

	s.AddTool(mcp.NewTool("rename_declaration",
		mcp.WithDescription("Renames a declaration and its references in the declaring file, in the index only."),
		mcp.WithString("file", mcp.Required(), mcp.Description("File path, absolute or relative to the indexed root")),
		mcp.WithNumber("line", mcp.Required(), mcp.Min(1), mcp.Description("1-based line")),
		mcp.WithNumber("column", mcp.Required(), mcp.Min(1), mcp.Description("1-based column, in bytes")),
		mcp.WithString("new_name", mcp.Required(), mcp.Description("New identifier")),
	), withLengthCheck(renameHandler(f, res, guard)))
}
