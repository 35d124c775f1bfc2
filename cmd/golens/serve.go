package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/finder"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/lock"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/resolve"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/tools"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run an MCP stdio server over the indexed codebase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stderr, "Indexing codebase...")
			idx, err := openIndex(cmd.Context(), cfg, opts, newLogger(opts))
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Index ready.")

			f := finder.New(idx)
			res := resolve.New(f, resolve.WithValidator(idx))

			s := server.NewMCPServer("golens", version)
			tools.Register(s, f, res, &lock.Guard{})

			if err := server.ServeStdio(s); err != nil {
				return fmt.Errorf("serving MCP: %w", err)
			}
			return nil
		},
	}
}
