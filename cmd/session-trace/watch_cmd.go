package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitarald/vscode-session-trace/internal/indexer"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch session logs and reindex on change",
		Long:  "Run an initial incremental pass, then keep the index current as session logs change. Stops on SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg := configFrom(cmd.Context())

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ix := indexer.New(st, indexer.Options{
				BaseDir:     cfg.Storage.BaseDir,
				BatchSize:   cfg.Index.BatchSize,
				Parallelism: cfg.Index.Parallelism,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stats, err := ix.Reindex(ctx, false, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initial pass: indexed %d, skipped %d, pruned %d\n",
				stats.Indexed, stats.Skipped, stats.Pruned)

			w, err := indexer.NewWatcher(ix, indexer.WatchOptions{
				Debounce:         time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
				ReindexPerMinute: cfg.Watch.ReindexPerMinute,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", cfg.Storage.BaseDir)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	return cmd
}
