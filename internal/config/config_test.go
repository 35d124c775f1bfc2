package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
root = "src"
workers = 8
tree_cache_size = 16
include_tests = false
ignore = ["vendor/", "*_gen.go"]
debounce = "1s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "src"), cfg.Root)
	assert.Equal(t, filepath.Join(dir, "src", ".golens", "index.mp"), cfg.IndexFile)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 16, cfg.TreeCacheSize)
	assert.False(t, cfg.IncludeTests)
	assert.Equal(t, []string{"vendor/", "*_gen.go"}, cfg.Ignore)
	assert.Equal(t, time.Second, cfg.Debounce.Duration)
	assert.Equal(t, path, cfg.Path)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad toml", "workers = ", "parsing TOML"},
		{"bad duration", `debounce = "soon"`, "parsing TOML"},
		{"zero workers", "workers = 0", "workers must be at least 1"},
		{"negative cache", "tree_cache_size = -1", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := Load(path)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "workers = 2\n")
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	cfg, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, dir, cfg.Root)
}

func TestDiscoverDefaults(t *testing.T) {
	dir := t.TempDir()
	path, ok, err := Find(dir)
	require.NoError(t, err)
	if ok {
		t.Skipf("a %s exists above the temp dir at %s", FileName, path)
	}

	cfg, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, Default().Workers, cfg.Workers)
	assert.Empty(t, cfg.Path)
}
