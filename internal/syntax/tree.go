// Package syntax builds an arena-backed scope tree over go/ast: lexical scopes,
// named declarations and reference sites, addressed by small integer ids.
// Identifier nodes are immutable; renaming replaces a node in its arena slot.
package syntax

import (
	"fmt"
	"go/token"
	"slices"
	"sort"
	"sync/atomic"

	"fortio.org/safecast"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
)

type (
	IdentID uint32
	ScopeID uint32
	DeclID  uint32
	RefID   uint32
)

// Zero ids are reserved as "none".
const (
	NoIdent IdentID = 0
	NoScope ScopeID = 0
	NoDecl  DeclID  = 0
	NoRef   RefID   = 0
)

// ScopeKind enumerates the lexical regions tracked by the tree.
type ScopeKind uint8

const (
	ScopeInvalid ScopeKind = iota
	ScopePackage
	ScopeFile
	ScopeFunction
	ScopeBlock
)

func (k ScopeKind) String() string {
	switch k {
	case ScopePackage:
		return "package"
	case ScopeFile:
		return "file"
	case ScopeFunction:
		return "function"
	case ScopeBlock:
		return "block"
	default:
		return "invalid"
	}
}

// Span is a half-open byte range [Start, End).
type Span struct {
	Start int
	End   int
}

// Contains reports whether off lies inside the span. The end is inclusive so a
// cursor placed right after an identifier still hits it.
func (s Span) Contains(off int) bool {
	return off >= s.Start && off <= s.End
}

// Ident is an identifier node.
type Ident struct {
	Name string
	Span Span
}

// Scope is a lexical region owning declarations.
type Scope struct {
	Kind     ScopeKind
	Parent   ScopeID
	Span     Span
	Decls    []DeclID
	Children []ScopeID
}

// Decl is a named declaration.
type Decl struct {
	Kind  symtab.Kind
	Ident IdentID
	Scope ScopeID
	// VisibleFrom is the offset where the declaration comes into scope.
	VisibleFrom int
	// Container names the receiver or enclosing type of methods and fields.
	Container  string
	ImportPath string
	// Member declarations (methods, fields, the package clause) are not
	// reachable by lexical lookup.
	Member bool
	// Implicit declarations have no identifier of their own in the source,
	// like the package name of an unaliased import.
	Implicit bool
}

// Ref is a reference site: an identifier used where it must be resolved.
type Ref struct {
	Ident  IdentID
	Expect symtab.Kinds
	Scope  ScopeID
	// Qualifier is the reference to the left of a selector, as in pkg.Name.
	Qualifier RefID
}

// Tree is the parsed, scope-annotated form of one Go file.
type Tree struct {
	path     string
	pkgPath  string
	pkgName  string
	version  uint64
	src      []byte
	lines    []int
	errs     int
	detached atomic.Bool

	idents []Ident
	scopes []Scope
	decls  []Decl
	refs   []Ref
}

func newTree(path, pkgPath string, version uint64, src []byte) *Tree {
	t := &Tree{
		path:    path,
		pkgPath: pkgPath,
		version: version,
		src:     slices.Clone(src),
		// index 0 of every arena is the sentinel
		idents: make([]Ident, 1, 64),
		scopes: make([]Scope, 1, 16),
		decls:  make([]Decl, 1, 32),
		refs:   make([]Ref, 1, 64),
	}
	t.lines = lineStarts(t.src)
	return t
}

func nextID(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(fmt.Errorf("syntax arena overflow: %w", err))
	}
	return v
}

func (t *Tree) addIdent(id Ident) IdentID {
	i := IdentID(nextID(len(t.idents)))
	t.idents = append(t.idents, id)
	return i
}

func (t *Tree) addScope(s Scope) ScopeID {
	i := ScopeID(nextID(len(t.scopes)))
	t.scopes = append(t.scopes, s)
	if s.Parent != NoScope {
		p := &t.scopes[s.Parent]
		p.Children = append(p.Children, i)
	}
	return i
}

func (t *Tree) addDecl(d Decl) DeclID {
	i := DeclID(nextID(len(t.decls)))
	t.decls = append(t.decls, d)
	s := &t.scopes[d.Scope]
	s.Decls = append(s.Decls, i)
	return i
}

func (t *Tree) addRef(r Ref) RefID {
	i := RefID(nextID(len(t.refs)))
	t.refs = append(t.refs, r)
	return i
}

// Path returns the file path the tree was parsed from.
func (t *Tree) Path() string { return t.path }

// PkgPath returns the import path of the file's package.
func (t *Tree) PkgPath() string { return t.pkgPath }

// PkgName returns the name in the file's package clause.
func (t *Tree) PkgName() string { return t.pkgName }

// Version returns the modification stamp the tree was built for.
func (t *Tree) Version() uint64 { return t.version }

// Source returns the current text of the tree, including applied renames.
func (t *Tree) Source() []byte { return t.src }

// ParseErrors reports how many syntax errors the parser recovered from.
func (t *Tree) ParseErrors() int { return t.errs }

// Detach marks the tree as superseded by a newer parse.
func (t *Tree) Detach() { t.detached.Store(true) }

// Detached reports whether the tree was superseded.
func (t *Tree) Detached() bool { return t.detached.Load() }

// Root returns the package scope the tree is rooted at.
func (t *Tree) Root() ScopeID { return 1 }

// Scope returns the scope with the given id, or nil.
func (t *Tree) Scope(id ScopeID) *Scope {
	if id == NoScope || int(id) >= len(t.scopes) {
		return nil
	}
	return &t.scopes[id]
}

// Decl returns the declaration with the given id, or nil.
func (t *Tree) Decl(id DeclID) *Decl {
	if id == NoDecl || int(id) >= len(t.decls) {
		return nil
	}
	return &t.decls[id]
}

// Ref returns the reference site with the given id, or nil.
func (t *Tree) Ref(id RefID) *Ref {
	if id == NoRef || int(id) >= len(t.refs) {
		return nil
	}
	return &t.refs[id]
}

// Ident returns the identifier node with the given id.
func (t *Tree) Ident(id IdentID) Ident {
	if id == NoIdent || int(id) >= len(t.idents) {
		return Ident{}
	}
	return t.idents[id]
}

// DeclName returns the name of a declaration.
func (t *Tree) DeclName(id DeclID) string {
	d := t.Decl(id)
	if d == nil {
		return ""
	}
	return t.idents[d.Ident].Name
}

// RefName returns the identifier text at a reference site.
func (t *Tree) RefName(id RefID) string {
	r := t.Ref(id)
	if r == nil {
		return ""
	}
	return t.idents[r.Ident].Name
}

// Decls returns all declaration ids in document order.
func (t *Tree) Decls() []DeclID {
	out := make([]DeclID, 0, len(t.decls)-1)
	for i := 1; i < len(t.decls); i++ {
		out = append(out, DeclID(i))
	}
	sort.SliceStable(out, func(a, b int) bool {
		return t.idents[t.decls[out[a]].Ident].Span.Start < t.idents[t.decls[out[b]].Ident].Span.Start
	})
	return out
}

// Refs returns all reference ids in document order.
func (t *Tree) Refs() []RefID {
	out := make([]RefID, 0, len(t.refs)-1)
	for i := 1; i < len(t.refs); i++ {
		out = append(out, RefID(i))
	}
	return out
}

// RefAt returns the reference site whose identifier covers off.
func (t *Tree) RefAt(off int) RefID {
	for i := 1; i < len(t.refs); i++ {
		if t.idents[t.refs[i].Ident].Span.Contains(off) {
			return RefID(i)
		}
	}
	return NoRef
}

// DeclAt returns the declaration whose identifier covers off.
func (t *Tree) DeclAt(off int) DeclID {
	for i := 1; i < len(t.decls); i++ {
		d := &t.decls[i]
		if d.Implicit {
			continue
		}
		if t.idents[d.Ident].Span.Contains(off) {
			return DeclID(i)
		}
	}
	return NoDecl
}

// DeclAtOffset returns the non-implicit declaration whose identifier starts exactly at off.
func (t *Tree) DeclAtOffset(off int) DeclID {
	for i := 1; i < len(t.decls); i++ {
		d := &t.decls[i]
		if !d.Implicit && t.idents[d.Ident].Span.Start == off {
			return DeclID(i)
		}
	}
	return NoDecl
}

// Ancestors returns id and its enclosing scopes, innermost first.
func (t *Tree) Ancestors(id ScopeID) []ScopeID {
	var out []ScopeID
	for cur := id; cur != NoScope; cur = t.scopes[cur].Parent {
		out = append(out, cur)
	}
	return out
}

// TopmostBlock returns the outermost block scope enclosing id without leaving
// the nearest function. It returns NoScope when id is not inside a block.
func (t *Tree) TopmostBlock(id ScopeID) ScopeID {
	top := NoScope
	for cur := id; cur != NoScope; cur = t.scopes[cur].Parent {
		s := &t.scopes[cur]
		if s.Kind != ScopeBlock {
			break
		}
		top = cur
	}
	return top
}

// LabelsIn returns every label declared anywhere inside block, in document
// order. Nested function literals own their labels and are not entered.
func (t *Tree) LabelsIn(block ScopeID) []DeclID {
	var out []DeclID
	var walk func(ScopeID)
	walk = func(id ScopeID) {
		s := &t.scopes[id]
		for _, d := range s.Decls {
			if t.decls[d].Kind == symtab.KindLabel {
				out = append(out, d)
			}
		}
		for _, c := range s.Children {
			if t.scopes[c].Kind == ScopeFunction {
				continue
			}
			walk(c)
		}
	}
	if t.Scope(block) == nil {
		return nil
	}
	walk(block)
	sort.SliceStable(out, func(a, b int) bool {
		return t.idents[t.decls[out[a]].Ident].Span.Start < t.idents[t.decls[out[b]].Ident].Span.Start
	})
	return out
}

// Location converts a byte offset into a file location.
func (t *Tree) Location(off int) symtab.Location {
	line := sort.Search(len(t.lines), func(i int) bool { return t.lines[i] > off })
	if line == 0 {
		line = 1
	}
	return symtab.Location{
		File:   t.path,
		Offset: off,
		Line:   line,
		Column: off - t.lines[line-1] + 1,
	}
}

// Offset converts a 1-based line and column into a byte offset.
func (t *Tree) Offset(line, col int) (int, bool) {
	if line < 1 || line > len(t.lines) || col < 1 {
		return 0, false
	}
	off := t.lines[line-1] + col - 1
	if off > len(t.src) {
		return 0, false
	}
	return off, true
}

// Handle materializes a declaration handle for id.
func (t *Tree) Handle(id DeclID) symtab.Handle {
	d := t.Decl(id)
	if d == nil {
		return symtab.Handle{}
	}
	ident := t.idents[d.Ident]
	return symtab.Handle{
		Name:      ident.Name,
		Kind:      d.Kind,
		Package:   t.pkgPath,
		Container: d.Container,
		Location:  t.Location(ident.Span.Start),
		Scope:     uint32(d.Scope),
		Version:   t.version,
	}
}

// IsPackageLevel reports whether a declaration belongs to the package scope.
func (t *Tree) IsPackageLevel(id DeclID) bool {
	d := t.Decl(id)
	return d != nil && d.Scope == t.Root()
}

func lineStarts(src []byte) []int {
	lines := []int{0}
	for i, c := range src {
		if c == '\n' {
			lines = append(lines, i+1)
		}
	}
	return lines
}

// Rename replaces the identifier node id with a fresh node named newName and
// splices the source text. The tree is left untouched when an error is returned.
func (t *Tree) Rename(id IdentID, newName string) error {
	if t.Detached() {
		return fmt.Errorf("renaming in %s: tree is detached: %w", t.path, symtab.ErrInvalidOperation)
	}
	if id == NoIdent || int(id) >= len(t.idents) {
		return fmt.Errorf("renaming identifier %d: no such node: %w", id, symtab.ErrInvalidOperation)
	}
	if !token.IsIdentifier(newName) || newName == "_" {
		return fmt.Errorf("renaming to %q: not a valid identifier: %w", newName, symtab.ErrInvalidOperation)
	}
	old := t.idents[id]
	for i := 1; i < len(t.decls); i++ {
		if t.decls[i].Ident == id && t.decls[i].Implicit {
			return fmt.Errorf("renaming implicit name %q: %w", old.Name, symtab.ErrInvalidOperation)
		}
	}
	delta := len(newName) - len(old.Name)

	src := make([]byte, 0, len(t.src)+delta)
	src = append(src, t.src[:old.Span.Start]...)
	src = append(src, newName...)
	src = append(src, t.src[old.Span.End:]...)

	shift := func(off int) int {
		if off >= old.Span.End {
			return off + delta
		}
		return off
	}
	for i := 1; i < len(t.idents); i++ {
		if IdentID(i) == id {
			continue
		}
		sp := &t.idents[i].Span
		sp.Start, sp.End = shift(sp.Start), shift(sp.End)
	}
	for i := 1; i < len(t.scopes); i++ {
		sp := &t.scopes[i].Span
		sp.Start, sp.End = shift(sp.Start), shift(sp.End)
	}
	for i := 1; i < len(t.decls); i++ {
		t.decls[i].VisibleFrom = shift(t.decls[i].VisibleFrom)
	}
	t.idents[id] = Ident{Name: newName, Span: Span{Start: old.Span.Start, End: old.Span.Start + len(newName)}}
	t.src = src
	t.lines = lineStarts(src)
	return nil
}
