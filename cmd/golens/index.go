package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the codebase and save the stub index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			idx, err := openIndex(cmd.Context(), cfg, opts, newLogger(opts))
			if err != nil {
				return err
			}
			if err := idx.Save(cfg.IndexFile); err != nil {
				return fmt.Errorf("saving index: %w", err)
			}
			if quiet {
				return nil
			}

			out := cmd.OutOrStdout()
			pkgs := idx.Packages()
			width := 0
			for _, p := range pkgs {
				width = max(width, runewidth.StringWidth(p.ImportPath))
			}
			for _, p := range pkgs {
				_, _ = fmt.Fprintf(out, "%s %s  %d files, %d funcs, %d types\n",
					pathColor.Sprint(runewidth.FillRight(p.ImportPath, width)), nameColor.Sprint(p.Name),
					len(p.Files), p.FuncCount, p.TypeCount)
			}
			_, _ = fmt.Fprintf(os.Stderr, "indexed %d packages, %d files into %s\n", len(pkgs), len(idx.Files()), cfg.IndexFile)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the package summary")
	return cmd
}
