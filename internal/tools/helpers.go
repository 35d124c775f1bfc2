package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/lock"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
)

// maxInputLen bounds every string argument a tool accepts.
const maxInputLen = 4096

// withLengthCheck rejects requests with an oversized string argument before
// they reach h.
func withLengthCheck(h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		for key, v := range req.GetArguments() {
			if s, ok := v.(string); ok && len(s) > maxInputLen {
				return nil, fmt.Errorf("argument %q exceeds maximum length of %d bytes", key, maxInputLen)
			}
		}
		return h(ctx, req)
	}
}

// withReadLock runs h under the read side of guard. Index queries hydrate
// the same cached trees rename_declaration edits in place.
func withReadLock(guard *lock.Guard, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var res *mcp.CallToolResult
		err := guard.Read(func(lock.ReadToken) error {
			var err error
			res, err = h(ctx, req)
			return err
		})
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

// jsonResult serialises v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

// parseKinds turns a comma-separated kind list ("func,type") into a set.
// An empty list means every kind.
func parseKinds(s string) (symtab.Kinds, error) {
	if strings.TrimSpace(s) == "" {
		return symtab.KindsOf(symtab.AllKinds...), nil
	}
	var kinds symtab.Kinds
	for _, part := range strings.Split(s, ",") {
		k, ok := symtab.ParseKind(strings.TrimSpace(part))
		if !ok {
			return 0, fmt.Errorf("unknown kind %q", part)
		}
		kinds |= symtab.KindsOf(k)
	}
	return kinds, nil
}

// filterRefs keeps the symbols whose kind is in kinds, optionally dropping
// unexported ones.
func filterRefs(refs []symtab.SymbolRef, kinds symtab.Kinds, includeUnexported bool) []symtab.SymbolRef {
	result := make([]symtab.SymbolRef, 0, len(refs))
	for _, r := range refs {
		if !kinds.Has(r.Kind) {
			continue
		}
		if !includeUnexported && !(symtab.Handle{Name: r.Name}).Exported() {
			continue
		}
		result = append(result, r)
	}
	return result
}
