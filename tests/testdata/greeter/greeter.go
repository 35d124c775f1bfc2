// Package greeter is a test fixture for the indexer and resolver.
package greeter

import "strings"

// Greeter produces greetings.
type Greeter interface {
	Greet(name string) string
}

// English greets in English using a configurable prefix.
type English struct {
	Prefix string
}

// Greet returns a greeting.
func (e *English) Greet(name string) string {
	return e.Prefix + name
}

// Formal greets with a formal salutation.
type Formal struct{}

// Greet returns a formal greeting.
func (f Formal) Greet(name string) string {
	return "Dear " + name
}

// DefaultPrefix is the default greeting prefix.
const DefaultPrefix = "Hello, "

// MaxLength is the maximum allowed greeting length.
var MaxLength = 100

// New returns an English greeter with the given prefix.
func New(prefix string) *English {
	return &English{Prefix: prefix}
}

func shout(s string) string {
	return strings.ToUpper(s)
}
