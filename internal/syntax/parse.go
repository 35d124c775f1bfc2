package syntax

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"path"
	"strconv"
	"strings"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
)

// Parse parses src and builds its scope tree. Syntax errors the parser can
// recover from are tolerated and counted; Parse only fails when no file
// node could be produced at all.
func Parse(filename, pkgPath string, version uint64, src []byte) (*Tree, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution|parser.AllErrors)
	if f == nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	t := newTree(filename, pkgPath, version, src)
	var list scanner.ErrorList
	if errors.As(err, &list) {
		t.errs = len(list)
	} else if err != nil {
		t.errs = 1
	}
	b := &builder{t: t, tf: fset.File(f.Pos())}
	b.file(f)
	return t, nil
}

type builder struct {
	t     *Tree
	tf    *token.File
	scope ScopeID
	root  ScopeID
}

func (b *builder) off(p token.Pos) int {
	if !p.IsValid() {
		return 0
	}
	return b.tf.Offset(p)
}

func (b *builder) span(n ast.Node) Span {
	return Span{Start: b.off(n.Pos()), End: b.off(n.End())}
}

func (b *builder) push(kind ScopeKind, sp Span) ScopeID {
	id := b.t.addScope(Scope{Kind: kind, Parent: b.scope, Span: sp})
	b.scope = id
	return id
}

func (b *builder) pop(prev ScopeID) {
	b.scope = prev
}

// declareIn records a named declaration in scope. Blank and empty names are skipped.
func (b *builder) declareIn(scope ScopeID, id *ast.Ident, d Decl) DeclID {
	if id == nil || id.Name == "" || id.Name == "_" {
		return NoDecl
	}
	d.Ident = b.t.addIdent(Ident{Name: id.Name, Span: b.span(id)})
	d.Scope = scope
	return b.t.addDecl(d)
}

func (b *builder) declare(id *ast.Ident, kind symtab.Kind, visibleFrom int) DeclID {
	return b.declareIn(b.scope, id, Decl{Kind: kind, VisibleFrom: visibleFrom})
}

func (b *builder) ref(id *ast.Ident, expect symtab.Kinds, qualifier RefID) RefID {
	if id == nil || id.Name == "" || id.Name == "_" {
		return NoRef
	}
	return b.t.addRef(Ref{
		Ident:     b.t.addIdent(Ident{Name: id.Name, Span: b.span(id)}),
		Expect:    expect,
		Scope:     b.scope,
		Qualifier: qualifier,
	})
}

func (b *builder) file(f *ast.File) {
	b.t.pkgName = f.Name.Name
	b.root = b.push(ScopePackage, Span{Start: 0, End: len(b.t.src)})
	b.declareIn(b.root, f.Name, Decl{Kind: symtab.KindPackage, Member: true})
	b.push(ScopeFile, Span{Start: 0, End: len(b.t.src)})

	for _, imp := range f.Imports {
		b.importSpec(imp)
	}
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok == token.IMPORT {
				continue
			}
			b.genDecl(d, b.root)
		case *ast.FuncDecl:
			b.funcDecl(d)
		}
	}
}

func (b *builder) importSpec(imp *ast.ImportSpec) {
	p, err := strconv.Unquote(imp.Path.Value)
	if err != nil || p == "" {
		return
	}
	if imp.Name != nil {
		if imp.Name.Name == "." || imp.Name.Name == "_" {
			return
		}
		b.declareIn(b.scope, imp.Name, Decl{Kind: symtab.KindPackage, ImportPath: p})
		return
	}
	// Unaliased imports declare the package name implicitly at the path literal.
	sp := b.span(imp.Path)
	ident := b.t.addIdent(Ident{Name: ImportName(p), Span: sp})
	b.t.addDecl(Decl{Kind: symtab.KindPackage, Ident: ident, Scope: b.scope, ImportPath: p, Implicit: true})
}

// ImportName guesses the package name of an import path: its last element,
// skipping a major version suffix and a "go-" prefix.
func ImportName(importPath string) string {
	base := path.Base(importPath)
	if len(base) > 1 && base[0] == 'v' && isDigits(base[1:]) {
		if dir := path.Dir(importPath); dir != "." {
			base = path.Base(dir)
		}
	}
	base = strings.TrimPrefix(base, "go-")
	if i := strings.IndexAny(base, ".-"); i > 0 {
		base = base[:i]
	}
	return base
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// genDecl handles type, var and const declarations. Package-level ones go to
// the package scope and are visible everywhere; local ones become visible at
// the end of their spec (types at their name, to allow recursion).
func (b *builder) genDecl(d *ast.GenDecl, target ScopeID) {
	local := target != b.root
	for _, spec := range d.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			vis := 0
			if local {
				vis = b.off(s.Name.Pos())
			}
			b.declareIn(target, s.Name, Decl{Kind: symtab.KindType, VisibleFrom: vis})
			b.typeSpec(s, target)
		case *ast.ValueSpec:
			kind := symtab.KindVar
			if d.Tok == token.CONST {
				kind = symtab.KindConst
			}
			if s.Type != nil {
				b.typeExpr(s.Type)
			}
			for _, v := range s.Values {
				b.expr(v, symtab.ExpectValue)
			}
			vis := 0
			if local {
				vis = b.off(s.End())
			}
			for _, name := range s.Names {
				b.declareIn(target, name, Decl{Kind: kind, VisibleFrom: vis})
			}
		}
	}
}

func (b *builder) typeSpec(s *ast.TypeSpec, target ScopeID) {
	prev := b.scope
	if s.TypeParams != nil {
		b.push(ScopeBlock, b.span(s))
		b.typeParams(s.TypeParams)
	}
	switch t := s.Type.(type) {
	case *ast.StructType:
		for _, field := range t.Fields.List {
			for _, name := range field.Names {
				b.declareIn(target, name, Decl{Kind: symtab.KindField, Container: s.Name.Name, Member: true})
			}
			b.typeExpr(field.Type)
		}
	case *ast.InterfaceType:
		for _, m := range t.Methods.List {
			if len(m.Names) == 0 {
				b.typeExpr(m.Type)
				continue
			}
			for _, name := range m.Names {
				b.declareIn(target, name, Decl{Kind: symtab.KindMethod, Container: s.Name.Name, Member: true})
			}
			b.funcTypeRefs(m.Type)
		}
	default:
		b.typeExpr(s.Type)
	}
	b.pop(prev)
}

func (b *builder) typeParams(fl *ast.FieldList) {
	if fl == nil {
		return
	}
	for _, field := range fl.List {
		b.typeExpr(field.Type)
		for _, name := range field.Names {
			b.declare(name, symtab.KindType, b.off(name.Pos()))
		}
	}
}

func (b *builder) funcDecl(d *ast.FuncDecl) {
	if d.Recv != nil && len(d.Recv.List) > 0 {
		b.declareIn(b.root, d.Name, Decl{Kind: symtab.KindMethod, Container: receiverName(d.Recv.List[0].Type), Member: true})
	} else {
		b.declareIn(b.root, d.Name, Decl{Kind: symtab.KindFunction})
	}
	prev := b.scope
	fn := b.push(ScopeFunction, b.span(d))
	start := b.t.scopes[fn].Span.Start
	if d.Recv != nil {
		b.receiverTypeParams(d.Recv)
		b.params(d.Recv, start)
	}
	b.typeParams(d.Type.TypeParams)
	b.params(d.Type.Params, start)
	b.params(d.Type.Results, start)
	if d.Body != nil {
		b.block(d.Body)
	}
	b.pop(prev)
}

// receiverTypeParams declares the type parameters of a generic receiver such as (l *List[T]).
func (b *builder) receiverTypeParams(recv *ast.FieldList) {
	for _, field := range recv.List {
		t := field.Type
		if star, ok := t.(*ast.StarExpr); ok {
			t = star.X
		}
		var idx []ast.Expr
		switch x := t.(type) {
		case *ast.IndexExpr:
			idx = []ast.Expr{x.Index}
		case *ast.IndexListExpr:
			idx = x.Indices
		}
		for _, e := range idx {
			if id, ok := e.(*ast.Ident); ok {
				b.declare(id, symtab.KindType, b.off(id.Pos()))
			}
		}
	}
}

func receiverName(e ast.Expr) string {
	for {
		switch t := e.(type) {
		case *ast.StarExpr:
			e = t.X
		case *ast.ParenExpr:
			e = t.X
		case *ast.IndexExpr:
			e = t.X
		case *ast.IndexListExpr:
			e = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}

// params declares parameters in the current function scope and walks their types.
func (b *builder) params(fl *ast.FieldList, visibleFrom int) {
	if fl == nil {
		return
	}
	for _, field := range fl.List {
		b.typeExpr(field.Type)
		for _, name := range field.Names {
			b.declare(name, symtab.KindVar, visibleFrom)
		}
	}
}

func (b *builder) funcTypeRefs(e ast.Expr) {
	ft, ok := e.(*ast.FuncType)
	if !ok {
		b.typeExpr(e)
		return
	}
	for _, fl := range []*ast.FieldList{ft.TypeParams, ft.Params, ft.Results} {
		if fl == nil {
			continue
		}
		for _, field := range fl.List {
			b.typeExpr(field.Type)
		}
	}
}

func (b *builder) block(blk *ast.BlockStmt) {
	if blk == nil {
		return
	}
	prev := b.scope
	b.push(ScopeBlock, b.span(blk))
	b.stmts(blk.List)
	b.pop(prev)
}

func (b *builder) stmts(list []ast.Stmt) {
	for _, s := range list {
		b.stmt(s)
	}
}

func (b *builder) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case nil:
	case *ast.DeclStmt:
		if gd, ok := s.Decl.(*ast.GenDecl); ok {
			b.genDecl(gd, b.scope)
		}
	case *ast.AssignStmt:
		for _, r := range s.Rhs {
			b.expr(r, symtab.ExpectValue)
		}
		if s.Tok == token.DEFINE {
			end := b.off(s.End())
			for _, l := range s.Lhs {
				if id, ok := l.(*ast.Ident); ok {
					b.declare(id, symtab.KindVar, end)
				}
			}
			return
		}
		for _, l := range s.Lhs {
			b.expr(l, symtab.ExpectValue)
		}
	case *ast.LabeledStmt:
		b.declare(s.Label, symtab.KindLabel, b.off(s.Pos()))
		b.stmt(s.Stmt)
	case *ast.BranchStmt:
		if s.Label != nil {
			b.ref(s.Label, symtab.ExpectLabel, NoRef)
		}
	case *ast.BlockStmt:
		b.block(s)
	case *ast.ExprStmt:
		b.expr(s.X, symtab.ExpectValue)
	case *ast.SendStmt:
		b.expr(s.Chan, symtab.ExpectValue)
		b.expr(s.Value, symtab.ExpectValue)
	case *ast.IncDecStmt:
		b.expr(s.X, symtab.ExpectValue)
	case *ast.GoStmt:
		b.expr(s.Call, symtab.ExpectValue)
	case *ast.DeferStmt:
		b.expr(s.Call, symtab.ExpectValue)
	case *ast.ReturnStmt:
		for _, r := range s.Results {
			b.expr(r, symtab.ExpectValue)
		}
	case *ast.IfStmt:
		prev := b.scope
		b.push(ScopeBlock, b.span(s))
		b.stmt(s.Init)
		b.expr(s.Cond, symtab.ExpectValue)
		b.block(s.Body)
		b.stmt(s.Else)
		b.pop(prev)
	case *ast.ForStmt:
		prev := b.scope
		b.push(ScopeBlock, b.span(s))
		b.stmt(s.Init)
		b.expr(s.Cond, symtab.ExpectValue)
		b.stmt(s.Post)
		b.block(s.Body)
		b.pop(prev)
	case *ast.RangeStmt:
		prev := b.scope
		b.push(ScopeBlock, b.span(s))
		b.expr(s.X, symtab.ExpectValue)
		if s.Tok == token.DEFINE {
			vis := b.off(s.Body.Pos())
			for _, e := range []ast.Expr{s.Key, s.Value} {
				if id, ok := e.(*ast.Ident); ok {
					b.declare(id, symtab.KindVar, vis)
				}
			}
		} else {
			b.expr(s.Key, symtab.ExpectValue)
			b.expr(s.Value, symtab.ExpectValue)
		}
		b.block(s.Body)
		b.pop(prev)
	case *ast.SwitchStmt:
		prev := b.scope
		b.push(ScopeBlock, b.span(s))
		b.stmt(s.Init)
		b.expr(s.Tag, symtab.ExpectValue)
		for _, c := range s.Body.List {
			cc := c.(*ast.CaseClause)
			for _, e := range cc.List {
				b.expr(e, symtab.ExpectValue)
			}
			b.clause(cc, cc.Body)
		}
		b.pop(prev)
	case *ast.TypeSwitchStmt:
		prev := b.scope
		b.push(ScopeBlock, b.span(s))
		b.stmt(s.Init)
		switch a := s.Assign.(type) {
		case *ast.AssignStmt:
			for _, r := range a.Rhs {
				b.expr(r, symtab.ExpectValue)
			}
			if len(a.Lhs) == 1 {
				if id, ok := a.Lhs[0].(*ast.Ident); ok {
					b.declare(id, symtab.KindVar, b.off(s.Body.Pos()))
				}
			}
		case *ast.ExprStmt:
			b.expr(a.X, symtab.ExpectValue)
		}
		for _, c := range s.Body.List {
			cc := c.(*ast.CaseClause)
			for _, e := range cc.List {
				b.typeExpr(e)
			}
			b.clause(cc, cc.Body)
		}
		b.pop(prev)
	case *ast.SelectStmt:
		for _, c := range s.Body.List {
			cc := c.(*ast.CommClause)
			prev := b.scope
			b.push(ScopeBlock, b.span(cc))
			b.stmt(cc.Comm)
			b.stmts(cc.Body)
			b.pop(prev)
		}
	}
}

func (b *builder) clause(n ast.Node, body []ast.Stmt) {
	prev := b.scope
	b.push(ScopeBlock, b.span(n))
	b.stmts(body)
	b.pop(prev)
}

// expr walks an expression and records reference sites. It returns the
// reference recorded for e itself when e is an identifier or a qualified name.
func (b *builder) expr(e ast.Expr, expect symtab.Kinds) RefID {
	switch e := e.(type) {
	case nil:
	case *ast.Ident:
		return b.ref(e, expect, NoRef)
	case *ast.SelectorExpr:
		q := b.expr(e.X, symtab.ExpectQualifier)
		if q != NoRef {
			return b.ref(e.Sel, expect, q)
		}
	case *ast.CallExpr:
		b.call(e)
	case *ast.CompositeLit:
		b.typeExpr(e.Type)
		_, isMap := e.Type.(*ast.MapType)
		for _, el := range e.Elts {
			kv, ok := el.(*ast.KeyValueExpr)
			if !ok {
				b.expr(el, symtab.ExpectValue)
				continue
			}
			// Identifier keys of struct literals are field names, not references.
			if _, isIdent := kv.Key.(*ast.Ident); !isIdent || isMap {
				b.expr(kv.Key, symtab.ExpectValue)
			}
			b.expr(kv.Value, symtab.ExpectValue)
		}
	case *ast.FuncLit:
		prev := b.scope
		b.push(ScopeFunction, b.span(e))
		start := b.off(e.Pos())
		b.params(e.Type.Params, start)
		b.params(e.Type.Results, start)
		b.block(e.Body)
		b.pop(prev)
	case *ast.ParenExpr:
		return b.expr(e.X, expect)
	case *ast.UnaryExpr:
		b.expr(e.X, symtab.ExpectValue)
	case *ast.BinaryExpr:
		b.expr(e.X, symtab.ExpectValue)
		b.expr(e.Y, symtab.ExpectValue)
	case *ast.StarExpr:
		b.expr(e.X, symtab.ExpectValue)
	case *ast.IndexExpr:
		b.expr(e.X, expect)
		b.expr(e.Index, symtab.ExpectValue)
	case *ast.IndexListExpr:
		b.expr(e.X, expect)
		for _, idx := range e.Indices {
			b.typeExpr(idx)
		}
	case *ast.SliceExpr:
		b.expr(e.X, symtab.ExpectValue)
		b.expr(e.Low, symtab.ExpectValue)
		b.expr(e.High, symtab.ExpectValue)
		b.expr(e.Max, symtab.ExpectValue)
	case *ast.TypeAssertExpr:
		b.expr(e.X, symtab.ExpectValue)
		b.typeExpr(e.Type)
	case *ast.KeyValueExpr:
		b.expr(e.Key, symtab.ExpectValue)
		b.expr(e.Value, symtab.ExpectValue)
	case *ast.ArrayType, *ast.MapType, *ast.ChanType, *ast.FuncType, *ast.StructType, *ast.InterfaceType:
		b.typeExpr(e)
	}
	return NoRef
}

func (b *builder) call(c *ast.CallExpr) {
	switch fun := c.Fun.(type) {
	case *ast.ArrayType, *ast.MapType, *ast.ChanType, *ast.FuncType, *ast.InterfaceType:
		b.typeExpr(fun)
	default:
		b.expr(fun, symtab.ExpectCall)
	}
	for i, arg := range c.Args {
		// new(T) and make(T, ...) take a type as their first argument.
		if id, ok := c.Fun.(*ast.Ident); ok && i == 0 && (id.Name == "new" || id.Name == "make") {
			b.typeExpr(arg)
			continue
		}
		b.expr(arg, symtab.ExpectValue)
	}
}

// typeExpr walks an expression in type position.
func (b *builder) typeExpr(e ast.Expr) {
	switch e := e.(type) {
	case nil:
	case *ast.Ident:
		b.ref(e, symtab.ExpectType, NoRef)
	case *ast.SelectorExpr:
		if x, ok := e.X.(*ast.Ident); ok {
			q := b.ref(x, symtab.KindsOf(symtab.KindPackage), NoRef)
			if q != NoRef {
				b.ref(e.Sel, symtab.ExpectType, q)
			}
		}
	case *ast.StarExpr:
		b.typeExpr(e.X)
	case *ast.ParenExpr:
		b.typeExpr(e.X)
	case *ast.ArrayType:
		b.expr(e.Len, symtab.ExpectValue)
		b.typeExpr(e.Elt)
	case *ast.Ellipsis:
		b.typeExpr(e.Elt)
	case *ast.MapType:
		b.typeExpr(e.Key)
		b.typeExpr(e.Value)
	case *ast.ChanType:
		b.typeExpr(e.Value)
	case *ast.FuncType:
		b.funcTypeRefs(e)
	case *ast.StructType:
		for _, field := range e.Fields.List {
			b.typeExpr(field.Type)
		}
	case *ast.InterfaceType:
		for _, m := range e.Methods.List {
			b.funcTypeRefs(m.Type)
		}
	case *ast.IndexExpr:
		b.typeExpr(e.X)
		b.typeExpr(e.Index)
	case *ast.IndexListExpr:
		b.typeExpr(e.X)
		for _, idx := range e.Indices {
			b.typeExpr(idx)
		}
	case *ast.UnaryExpr:
		// ~T in constraints
		b.typeExpr(e.X)
	case *ast.BinaryExpr:
		// A | B in constraints
		b.typeExpr(e.X)
		b.typeExpr(e.Y)
	}
}
