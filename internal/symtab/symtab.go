package symtab

import (
	"errors"
	"fmt"
	"go/token"
	"strings"
)

var (
	// ErrInvalidElement is returned when a handle outlived the file version it was derived from.
	ErrInvalidElement = errors.New("invalid element")
	// ErrInvalidOperation is returned when an edit targets a detached tree or an invalid name.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrCanceled is returned when a query was abandoned through its context.
	ErrCanceled = errors.New("operation canceled")
)

// Canceled wraps a context error so callers can test it with errors.Is(err, ErrCanceled).
func Canceled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

// Kind classifies a named declaration.
type Kind uint8

const (
	KindFunction Kind = iota + 1
	KindType
	KindVar
	KindConst
	KindLabel
	KindPackage
	KindField
	KindMethod
)

var kindNames = map[Kind]string{
	KindFunction: "func",
	KindType:     "type",
	KindVar:      "var",
	KindConst:    "const",
	KindLabel:    "label",
	KindPackage:  "package",
	KindField:    "field",
	KindMethod:   "method",
}

// AllKinds lists every declaration kind in declaration order of the constants.
var AllKinds = []Kind{KindFunction, KindType, KindVar, KindConst, KindLabel, KindPackage, KindField, KindMethod}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

// ParseKind maps the textual form of a kind ("func", "type", ...) back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler so kinds read well in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown kind %q", string(b))
	}
	*k = parsed
	return nil
}

// Kinds is a set of declaration kinds, used as the expected kind of a reference site.
type Kinds uint16

// KindsOf builds a set from the given kinds.
func KindsOf(kinds ...Kind) Kinds {
	var s Kinds
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

// Has reports whether k is a member of the set.
func (s Kinds) Has(k Kind) bool {
	return s&(1<<k) != 0
}

// Without returns s minus the given kinds.
func (s Kinds) Without(kinds ...Kind) Kinds {
	return s &^ KindsOf(kinds...)
}

// List returns the members of the set in AllKinds order.
func (s Kinds) List() []Kind {
	var out []Kind
	for _, k := range AllKinds {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s Kinds) String() string {
	names := make([]string, 0, 4)
	for _, k := range s.List() {
		names = append(names, k.String())
	}
	return strings.Join(names, "|")
}

// Common expectation sets derived from syntactic position.
var (
	ExpectValue     = KindsOf(KindVar, KindConst, KindFunction)
	ExpectCall      = KindsOf(KindFunction, KindVar, KindType)
	ExpectType      = KindsOf(KindType)
	ExpectQualifier = KindsOf(KindPackage, KindVar, KindConst, KindType, KindFunction)
	ExpectLabel     = KindsOf(KindLabel)
)

// Location identifies the source position of a declaration.
// Offset is a byte offset into the file; Line and Column are 1-based.
type Location struct {
	File   string `json:"file" msgpack:"f"`
	Offset int    `json:"offset" msgpack:"o"`
	Line   int    `json:"line" msgpack:"l"`
	Column int    `json:"column" msgpack:"c"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Less orders locations by file, then offset.
func (l Location) Less(o Location) bool {
	if l.File != o.File {
		return l.File < o.File
	}
	return l.Offset < o.Offset
}

// Stub is the compact, serializable projection of a declaration used for indexing.
// It is produced from syntax alone.
type Stub struct {
	Name      string   `json:"name" msgpack:"n"`
	Kind      Kind     `json:"kind" msgpack:"k"`
	Package   string   `json:"package" msgpack:"p"`
	Container string   `json:"container,omitempty" msgpack:"ct,omitempty"`
	Exported  bool     `json:"exported" msgpack:"e"`
	Location  Location `json:"location" msgpack:"loc"`
}

// Handle is an opaque, immutable reference to a named declaration in a specific
// version of a file. A handle becomes stale once its file is re-parsed.
type Handle struct {
	Name      string   `json:"name"`
	Kind      Kind     `json:"kind"`
	Package   string   `json:"package"`
	Container string   `json:"container,omitempty"`
	Location  Location `json:"location"`
	Scope     uint32   `json:"scope"`
	Version   uint64   `json:"version"`
}

// Exported reports whether the handle names an exported declaration.
func (h Handle) Exported() bool {
	return token.IsExported(h.Name)
}

// Same reports whether two handles denote the same declaration in the same file version.
func (h Handle) Same(o Handle) bool {
	return h.Location.File == o.Location.File &&
		h.Location.Offset == o.Location.Offset &&
		h.Version == o.Version &&
		h.Name == o.Name
}

// SymbolRef is a lightweight reference returned by cross-package symbol search.
type SymbolRef struct {
	Name      string   `json:"name"`
	Package   string   `json:"package"`
	Kind      Kind     `json:"kind"`
	Container string   `json:"container,omitempty"`
	Location  Location `json:"location"`
}

// PackageInfo summarizes one indexed package.
type PackageInfo struct {
	ImportPath string   `json:"import_path"`
	Name       string   `json:"name"`
	Files      []string `json:"files"`
	FuncCount  int      `json:"func_count"`
	TypeCount  int      `json:"type_count"`
}
