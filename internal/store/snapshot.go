package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
)

// SchemaVersion is bumped whenever the snapshot layout changes.
const SchemaVersion uint16 = 1

// ErrSchemaMismatch is returned by Load for snapshots written by another schema version.
var ErrSchemaMismatch = errors.New("index snapshot schema mismatch")

// FileRecord holds the stub records of one file. Records are replaced wholesale
// when the file is re-indexed.
type FileRecord struct {
	Path    string        `msgpack:"path"`
	Package string        `msgpack:"pkg"`
	Hash    string        `msgpack:"hash"`
	Stubs   []symtab.Stub `msgpack:"stubs"`
}

// Snapshot is the persisted form of an index.
type Snapshot struct {
	Schema uint16       `msgpack:"schema"`
	Files  []FileRecord `msgpack:"files"`
}

// Save writes the snapshot to path, replacing any previous file atomically.
func Save(path string, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	snap.Schema = SchemaVersion
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating index dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp index: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) //nolint:errcheck // already renamed on success

	if err := msgpack.NewEncoder(f).Encode(snap); err != nil {
		f.Close()
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing index: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	defer f.Close()

	var snap Snapshot
	if err := msgpack.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	if snap.Schema != SchemaVersion {
		return nil, fmt.Errorf("%s has schema %d, want %d: %w", path, snap.Schema, SchemaVersion, ErrSchemaMismatch)
	}
	return &snap, nil
}
