// Package lock turns the host's read/write action discipline into explicit
// capability tokens. Core entry points take a token instead of assuming an
// ambient lock, so the precondition can be checked.
package lock

import (
	"errors"
	"sync"
)

var (
	ErrNoReadAccess  = errors.New("read access required")
	ErrNoWriteAccess = errors.New("write access required")
)

// ReadToken proves that the holder runs inside a read action.
type ReadToken interface {
	canRead()
}

// WriteToken proves that the holder runs inside a write action. It also grants read access.
type WriteToken interface {
	ReadToken
	canWrite()
}

type readToken struct{ g *Guard }

func (readToken) canRead() {}

type writeToken struct{ g *Guard }

func (writeToken) canRead()  {}
func (writeToken) canWrite() {}

// Guard is a read/write lock that hands out tokens while held.
type Guard struct {
	mu sync.RWMutex
}

// Read runs fn under the shared lock.
func (g *Guard) Read(fn func(ReadToken) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn(readToken{g: g})
}

// Write runs fn under the exclusive lock.
func (g *Guard) Write(fn func(WriteToken) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(writeToken{g: g})
}

// CheckRead returns ErrNoReadAccess when t is nil.
func CheckRead(t ReadToken) error {
	if t == nil {
		return ErrNoReadAccess
	}
	return nil
}

// CheckWrite returns ErrNoWriteAccess when t is nil.
func CheckWrite(t WriteToken) error {
	if t == nil {
		return ErrNoWriteAccess
	}
	return nil
}
