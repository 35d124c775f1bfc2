package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/finder"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/indexer"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/lock"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/reference"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/resolve"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/symtab"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/syntax"
)

func newResolveCmd(opts *globalOptions) *cobra.Command {
	var variants bool

	cmd := &cobra.Command{
		Use:   "resolve FILE:LINE:COL",
		Short: "Print the declaration the identifier at a position refers to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openCursor(ctx, opts, args[0])
			if err != nil {
				return err
			}
			ref, err := c.reference()
			if err != nil {
				return err
			}

			guard := &lock.Guard{}
			out := cmd.OutOrStdout()
			return guard.Read(func(rt lock.ReadToken) error {
				if variants {
					names, err := ref.Variants(ctx, rt)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(out, strings.Join(names, "\n"))
					return nil
				}
				h, err := ref.Resolve(ctx, rt)
				if err != nil {
					return err
				}
				printResolution(out, ref, h)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&variants, "variants", false, "list completion candidates instead of resolving")
	return cmd
}

// cursor is a position in an indexed file.
type cursor struct {
	idx  *indexer.Indexer
	res  *resolve.Resolver
	tree *syntax.Tree
	off  int
	pos  string
}

// openCursor indexes the codebase and locates pos, given as FILE:LINE:COL.
func openCursor(ctx context.Context, opts *globalOptions, pos string) (*cursor, error) {
	file, line, col, err := parsePosition(pos)
	if err != nil {
		return nil, err
	}
	if file, err = filepath.Abs(file); err != nil {
		return nil, fmt.Errorf("resolving %s: %w", file, err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	idx, err := openIndex(ctx, cfg, opts, newLogger(opts))
	if err != nil {
		return nil, err
	}

	tree, err := idx.Tree(ctx, file)
	if err != nil {
		return nil, err
	}
	off, ok := tree.Offset(line, col)
	if !ok {
		return nil, fmt.Errorf("position %s is outside the file", pos)
	}
	return &cursor{
		idx:  idx,
		res:  resolve.New(finder.New(idx), resolve.WithValidator(idx)),
		tree: tree,
		off:  off,
		pos:  pos,
	}, nil
}

func (c *cursor) reference() (*reference.Reference, error) {
	ref := reference.At(c.tree, c.off, c.res)
	if ref == nil {
		return nil, fmt.Errorf("no identifier at %s", c.pos)
	}
	return ref, nil
}

func printResolution(w io.Writer, ref *reference.Reference, h *symtab.Handle) {
	if h == nil {
		_, _ = fmt.Fprintf(w, "%s  %s\n", nameColor.Sprint(ref.Name()), errorColor.Sprint("unresolved"))
		return
	}
	name := h.Name
	if h.Container != "" {
		name = h.Container + "." + name
	}
	_, _ = fmt.Fprintf(w, "%s  %s  %s  %s\n",
		nameColor.Sprint(name), kindColor.Sprint(h.Kind), h.Package, pathColor.Sprint(h.Location))
}
