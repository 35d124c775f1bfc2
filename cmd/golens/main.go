// Command golens indexes a Go codebase and resolves identifiers in it, either
// from the command line or as an MCP stdio server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const version = "0.1.0"

// globalOptions are the persistent flags shared by every subcommand. Zero
// values leave the golens.toml setting in place.
type globalOptions struct {
	root    string
	workers int
	noTests bool
	noCache bool
	verbose bool
	color   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "golens",
		Short:         "Go name resolution and stub indexing",
		Long:          "golens indexes the declarations of a Go codebase and resolves identifiers to the declarations they denote.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return applyColor(opts.color)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.root, "root", "", "root directory of the Go codebase (default: golens.toml root or .)")
	cmd.PersistentFlags().IntVar(&opts.workers, "workers", 0, "number of files parsed concurrently")
	cmd.PersistentFlags().BoolVar(&opts.noTests, "no-tests", false, "skip _test.go files")
	cmd.PersistentFlags().BoolVar(&opts.noCache, "no-cache", false, "ignore the saved index and parse everything")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log indexing progress to stderr")
	cmd.PersistentFlags().StringVar(&opts.color, "color", "auto", "colorize output (auto|on|off)")

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newResolveCmd(opts))
	cmd.AddCommand(newRenameCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	return cmd
}

// applyColor switches colored output on or off. auto colors only when
// stdout is a terminal.
func applyColor(mode string) error {
	switch mode {
	case "auto":
		color.NoColor = !term.IsTerminal(int(os.Stdout.Fd()))
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color %q: want auto, on or off", mode)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		errorColor.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
