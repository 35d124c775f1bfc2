// Package salute uses greeter from another package.
package salute

import "example.com/testdata/greeter"

// Morning greets name with the default prefix.
func Morning(name string) string {
	g := greeter.New(greeter.DefaultPrefix)
	return g.Greet(name)
}
