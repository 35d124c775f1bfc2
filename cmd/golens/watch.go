package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/duhaibo0404/go-lang-idea-plugin/internal/watch"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the saved index up to date as Go files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("debounce") {
				cfg.Debounce.Duration = debounce
			}
			logger := newLogger(opts)
			idx, err := openIndex(cmd.Context(), cfg, opts, logger)
			if err != nil {
				return err
			}
			if err := idx.Save(cfg.IndexFile); err != nil {
				return fmt.Errorf("saving index: %w", err)
			}

			w, err := watch.New(idx.Root(), idx,
				watch.WithDebounce(cfg.Debounce.Duration),
				watch.WithIgnore(cfg.Ignore...),
				watch.WithLogger(logger),
				watch.OnBatch(func(changed []string) {
					if err := idx.Save(cfg.IndexFile); err != nil {
						errorColor.Fprintln(os.Stderr, "saving index:", err)
						return
					}
					for _, path := range changed {
						_, _ = fmt.Fprintln(os.Stderr, "reindexed", pathColor.Sprint(path))
					}
				}),
			)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stderr, "watching %s\n", idx.Root())
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 250*time.Millisecond, "how long to wait for file events to settle")
	return cmd
}
