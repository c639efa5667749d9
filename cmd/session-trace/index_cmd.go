package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digitarald/vscode-session-trace/internal/indexer"
)

func newIndexCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Reindex session logs into the local database",
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

			var progress indexer.ProgressFunc
			if stdoutIsTTY() {
				progress = func(message string, _ float64) {
					fmt.Fprintln(cmd.OutOrStdout(), message)
				}
			}

			stats, err := ix.Reindex(cmd.Context(), full, progress)
			if err != nil {
				return err
			}

			if stdoutIsTTY() {
				fmt.Fprintf(cmd.OutOrStdout(),
					"Indexed %d, skipped %d unchanged, pruned %d, failed %d\n",
					stats.Indexed, stats.Skipped, stats.Pruned, stats.Failed)
				return nil
			}
			return printJSON(cmd, map[string]int{
				"indexed": stats.Indexed,
				"skipped": stats.Skipped,
				"pruned":  stats.Pruned,
				"failed":  stats.Failed,
			})
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Wipe the index and rebuild from scratch")
	return cmd
}
