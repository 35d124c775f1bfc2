// Package config loads golens.toml, the optional project configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up from the working directory upwards.
const FileName = "golens.toml"

// Config holds indexing and serving options.
type Config struct {
	Root          string   `toml:"root"`
	IndexFile     string   `toml:"index_file"`
	Workers       int      `toml:"workers"`
	TreeCacheSize int      `toml:"tree_cache_size"`
	IncludeTests  bool     `toml:"include_tests"`
	Ignore        []string `toml:"ignore"`
	Debounce      Duration `toml:"debounce"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no golens.toml exists.
func Default() Config {
	return Config{
		Root:          ".",
		IndexFile:     filepath.Join(".golens", "index.mp"),
		Workers:       4,
		TreeCacheSize: 64,
		IncludeTests:  true,
		Debounce:      Duration{250 * time.Millisecond},
	}
}

// Find looks for golens.toml in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("resolving start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("checking %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load decodes the file at path on top of the defaults. Relative root and
// index_file values are resolved against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: parsing TOML: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Dir(path)
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(base, cfg.Root)
	}
	if !filepath.IsAbs(cfg.IndexFile) {
		cfg.IndexFile = filepath.Join(cfg.Root, cfg.IndexFile)
	}
	cfg.Path = path
	return cfg, nil
}

// Discover loads the nearest golens.toml above startDir, or returns defaults
// rooted at startDir when there is none.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		cfg := Default()
		if startDir != "" {
			cfg.Root = startDir
		}
		cfg.IndexFile = filepath.Join(cfg.Root, cfg.IndexFile)
		return cfg, nil
	}
	return Load(path)
}

// Validate rejects values the indexer cannot work with.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.TreeCacheSize < 0 {
		return fmt.Errorf("tree_cache_size must not be negative, got %d", c.TreeCacheSize)
	}
	return nil
}
