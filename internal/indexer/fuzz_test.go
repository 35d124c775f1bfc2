package indexer

import (
	"testing"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/syntax"
)

func FuzzIsUnderRoot(f *testing.F) {
	f.Add("/root/foo.go", "/root")
	f.Add("/root/pkg/sub/foo.go", "/root")
	f.Add("/other/foo.go", "/root")
	f.Add("", "")
	f.Add("..", "/root")
	f.Fuzz(func(t *testing.T, path, root string) {
		isUnderRoot(path, root) // must not panic
	})
}

func FuzzParse(f *testing.F) {
	f.Add("package a\n\nfunc f() {\nL:\n\tfor {\n\t\tbreak L\n\t}\n}\n")
	f.Add("package a\nimport \"fmt\"\nvar x = fmt.Sprint(y)\n")
	f.Add("package")
	f.Add("")
	f.Fuzz(func(t *testing.T, src string) {
		tree, err := syntax.Parse("fuzz.go", "fuzz", 1, []byte(src))
		if err != nil {
			return
		}
		// every reference site and declaration must be addressable
		for _, id := range tree.Refs() {
			_ = tree.Location(tree.Ident(tree.Ref(id).Ident).Span.Start)
		}
		for _, id := range tree.Decls() {
			_ = tree.Handle(id)
		}
	})
}
