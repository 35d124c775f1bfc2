// Package store keeps the (index key, name) → locations multimap that backs
// the stub indices, with per-file invalidation.
package store

import (
	"slices"
	"sort"
	"sync"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/stub"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
)

// Store is the persistent index contract the indexer writes to and the finder reads from.
type Store interface {
	Put(key stub.IndexKey, name string, loc symtab.Location)
	Get(key stub.IndexKey, name string) []symtab.Location
	Names(key stub.IndexKey) []string
	Invalidate(file string)
}

type entryKey struct {
	key  stub.IndexKey
	name string
}

// Mem is an in-memory Store safe for concurrent use.
type Mem struct {
	mu      sync.RWMutex
	entries map[entryKey]map[symtab.Location]struct{}
	byFile  map[string][]entryKey
}

// NewMem returns an empty store.
func NewMem() *Mem {
	return &Mem{
		entries: make(map[entryKey]map[symtab.Location]struct{}),
		byFile:  make(map[string][]entryKey),
	}
}

// Put records one occurrence.
func (m *Mem) Put(key stub.IndexKey, name string, loc symtab.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ek := entryKey{key, name}
	set, ok := m.entries[ek]
	if !ok {
		set = make(map[symtab.Location]struct{})
		m.entries[ek] = set
	}
	if _, dup := set[loc]; dup {
		return
	}
	set[loc] = struct{}{}
	m.byFile[loc.File] = append(m.byFile[loc.File], ek)
}

// Occurrence lets a Mem act as a stub.Sink directly.
func (m *Mem) Occurrence(key stub.IndexKey, name string, loc symtab.Location) {
	m.Put(key, name, loc)
}

// Get returns the locations recorded under (key, name), sorted by file and offset.
func (m *Mem) Get(key stub.IndexKey, name string) []symtab.Location {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.entries[entryKey{key, name}]
	if len(set) == 0 {
		return nil
	}
	out := make([]symtab.Location, 0, len(set))
	for loc := range set {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Names returns the sorted distinct names recorded under key.
func (m *Mem) Names(key stub.IndexKey) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for ek := range m.entries {
		if ek.key == key {
			out = append(out, ek.name)
		}
	}
	sort.Strings(out)
	return out
}

// Invalidate drops every occurrence that points into file.
func (m *Mem) Invalidate(file string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ek := range m.byFile[file] {
		set := m.entries[ek]
		for loc := range set {
			if loc.File == file {
				delete(set, loc)
			}
		}
		if len(set) == 0 {
			delete(m.entries, ek)
		}
	}
	delete(m.byFile, file)
}

// Files returns the sorted list of files with at least one occurrence.
func (m *Mem) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byFile))
	for f := range m.byFile {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
