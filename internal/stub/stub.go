// Package stub projects declarations of a syntax tree into stub records and
// posts their names into the named indices.
package stub

import (
	"go/token"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/syntax"
)

// IndexKey names one index over stub records.
type IndexKey string

const (
	AllNames  IndexKey = "go.all.names"
	Exported  IndexKey = "go.exported"
	Functions IndexKey = "go.functions"
	Types     IndexKey = "go.types"
	Methods   IndexKey = "go.methods"
	Vars      IndexKey = "go.vars"
	Consts    IndexKey = "go.consts"
	Fields    IndexKey = "go.fields"
	Packages  IndexKey = "go.packages"
)

// Sink receives index occurrences.
type Sink interface {
	Occurrence(key IndexKey, name string, loc symtab.Location)
}

type rule struct {
	shouldIndex bool
	extraKeys   []IndexKey
}

// rules is the per-kind dispatch table for indexing.
var rules = map[symtab.Kind]rule{
	symtab.KindFunction: {shouldIndex: true, extraKeys: []IndexKey{Functions}},
	symtab.KindType:     {shouldIndex: true, extraKeys: []IndexKey{Types}},
	symtab.KindMethod:   {shouldIndex: true, extraKeys: []IndexKey{Methods}},
	symtab.KindVar:      {shouldIndex: true, extraKeys: []IndexKey{Vars}},
	symtab.KindConst:    {shouldIndex: true, extraKeys: []IndexKey{Consts}},
	symtab.KindField:    {shouldIndex: true, extraKeys: []IndexKey{Fields}},
	symtab.KindPackage:  {shouldIndex: true, extraKeys: []IndexKey{Packages}},
	symtab.KindLabel:    {shouldIndex: false},
}

// KeyFor returns the kind-specific index holding declarations of kind k.
func KeyFor(k symtab.Kind) (IndexKey, bool) {
	r, ok := rules[k]
	if !ok || !r.shouldIndex || len(r.extraKeys) == 0 {
		return "", false
	}
	return r.extraKeys[0], true
}

// Build returns the stub for a declaration, or false when the declaration
// must not be stubbed: blank or empty names, labels, imports and anything
// local to a function body.
func Build(tree *syntax.Tree, id syntax.DeclID) (symtab.Stub, bool) {
	d := tree.Decl(id)
	if d == nil {
		return symtab.Stub{}, false
	}
	name := tree.DeclName(id)
	if name == "" || name == "_" {
		return symtab.Stub{}, false
	}
	if r, ok := rules[d.Kind]; !ok || !r.shouldIndex {
		return symtab.Stub{}, false
	}
	if d.Kind == symtab.KindPackage {
		// only the package clause, imports are file-local
		if d.Scope != tree.Root() {
			return symtab.Stub{}, false
		}
	} else if !tree.IsPackageLevel(id) {
		return symtab.Stub{}, false
	}
	ident := tree.Ident(d.Ident)
	return symtab.Stub{
		Name:      name,
		Kind:      d.Kind,
		Package:   tree.PkgPath(),
		Container: d.Container,
		Exported:  d.Kind != symtab.KindPackage && token.IsExported(name),
		Location:  tree.Location(ident.Span.Start),
	}, true
}

// Collect returns every stub of a tree in document order.
func Collect(tree *syntax.Tree) []symtab.Stub {
	var stubs []symtab.Stub
	for _, id := range tree.Decls() {
		if s, ok := Build(tree, id); ok {
			stubs = append(stubs, s)
		}
	}
	return stubs
}

// Index posts the occurrences of one stub: the all-names index, the
// kind-specific extras and, for exported declarations, the exported index.
// It depends on the stub's own fields only.
func Index(s symtab.Stub, sink Sink) {
	r, ok := rules[s.Kind]
	if !ok || !r.shouldIndex || s.Name == "" {
		return
	}
	sink.Occurrence(AllNames, s.Name, s.Location)
	for _, key := range r.extraKeys {
		sink.Occurrence(key, s.Name, s.Location)
	}
	if s.Exported {
		sink.Occurrence(Exported, s.Name, s.Location)
	}
}
