package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/config"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/indexer"
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	nameColor  = color.New(color.FgCyan, color.Bold)
	kindColor  = color.New(color.FgYellow)
	pathColor  = color.New(color.FgGreen)
)

// loadConfig reads golens.toml from the working directory or the --root
// directory and applies the flag overrides.
func loadConfig(opts *globalOptions) (config.Config, error) {
	start := opts.root
	if start == "" {
		start = "."
	} else if err := checkDir(start); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Discover(start)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	if opts.root != "" {
		cfg.Root = opts.root
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.noTests {
		cfg.IncludeTests = false
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if err := checkDir(cfg.Root); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func checkDir(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %q is not a directory", root)
	}
	return nil
}

func newLogger(opts *globalOptions) *log.Logger {
	if !opts.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "golens: ", log.Ltime)
}

// openIndex builds an indexer for cfg, restores the saved index unless
// disabled, and brings it up to date with the files on disk.
func openIndex(ctx context.Context, cfg config.Config, opts *globalOptions, logger *log.Logger) (*indexer.Indexer, error) {
	idx, err := indexer.New(cfg.Root,
		indexer.WithLogger(logger),
		indexer.WithWorkers(cfg.Workers),
		indexer.WithTreeCache(cfg.TreeCacheSize),
		indexer.WithTests(cfg.IncludeTests),
		indexer.WithIgnore(cfg.Ignore...),
	)
	if err != nil {
		return nil, fmt.Errorf("creating indexer: %w", err)
	}

	if !opts.noCache {
		switch err := idx.Load(cfg.IndexFile); {
		case err == nil:
			logger.Printf("restored index from %s", cfg.IndexFile)
		case errors.Is(err, os.ErrNotExist):
		default:
			logger.Printf("ignoring saved index: %v", err)
		}
	}

	logger.Printf("indexing %s", idx.Root())
	if err := idx.Index(ctx); err != nil {
		return nil, fmt.Errorf("indexing codebase: %w", err)
	}
	logger.Printf("index ready: %d files", len(idx.Files()))
	return idx, nil
}

// parsePosition splits FILE:LINE:COL.
func parsePosition(s string) (file string, line, col int, err error) {
	colAt := strings.LastIndexByte(s, ':')
	if colAt < 0 {
		return "", 0, 0, fmt.Errorf("position %q: want FILE:LINE:COL", s)
	}
	lineAt := strings.LastIndexByte(s[:colAt], ':')
	if lineAt <= 0 {
		return "", 0, 0, fmt.Errorf("position %q: want FILE:LINE:COL", s)
	}
	if line, err = strconv.Atoi(s[lineAt+1 : colAt]); err != nil || line < 1 {
		return "", 0, 0, fmt.Errorf("position %q: invalid line", s)
	}
	if col, err = strconv.Atoi(s[colAt+1:]); err != nil || col < 1 {
		return "", 0, 0, fmt.Errorf("position %q: invalid column", s)
	}
	return s[:lineAt], line, col, nil
}
