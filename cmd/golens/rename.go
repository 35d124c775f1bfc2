package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/lock"
	"github.com/duhaibo0404/go-lang-idea-plugin/internal/reference"
)

func newRenameCmd(opts *globalOptions) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "rename FILE:LINE:COL NEW_NAME",
		Short: "Rename a declaration and its references in the declaring file",
		Long: "Rename the declaration at the position, or the one the identifier there refers to, " +
			"together with every reference to it in the declaring file. The result is printed unless --write is set.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openCursor(ctx, opts, args[0])
			if err != nil {
				return err
			}

			guard := &lock.Guard{}
			return guard.Write(func(wt lock.WriteToken) error {
				tree, id, err := reference.DeclarationAt(ctx, wt, c.idx, c.res, c.tree, c.off)
				if err != nil {
					return err
				}
				n, err := reference.RenameDeclaration(ctx, wt, c.res, tree, id, args[1])
				if err != nil {
					return err
				}
				if _, err := c.idx.Commit(ctx, wt, tree); err != nil {
					return err
				}

				_, _ = fmt.Fprintf(os.Stderr, "renamed %s and %d references in %s\n",
					nameColor.Sprint(args[1]), n, pathColor.Sprint(tree.Path()))
				if !write {
					_, err := cmd.OutOrStdout().Write(tree.Source())
					return err
				}
				info, err := os.Stat(tree.Path())
				if err != nil {
					return err
				}
				return os.WriteFile(tree.Path(), tree.Source(), info.Mode().Perm())
			})
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result back to the declaring file")
	return cmd
}
