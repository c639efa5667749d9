package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/digitarald/vscode-session-trace/internal/store"
)

func newQueryCmd() *cobra.Command {
	var rowCap int

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only SELECT against the index",
		Long:  "Run ad-hoc SQL against sessions, turns, annotations and turns_fts. Only single SELECT statements are accepted; results are capped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg := configFrom(cmd.Context())

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if rowCap <= 0 {
				rowCap = cfg.Query.RowCap
			}
			res, err := st.AdHocQuery(cmd.Context(), args[0], rowCap)
			if err != nil {
				var qe *store.QueryError
				if errors.As(err, &qe) && qe.Hint != "" {
					return fmt.Errorf("%s (%s)", qe.Message, qe.Hint)
				}
				return err
			}

			payload := map[string]any{
				"columns":   res.Columns,
				"rows":      res.Rows,
				"truncated": res.Truncated,
			}
			if err := printJSON(cmd, payload); err != nil {
				return err
			}
			if res.Truncated && stdoutIsTTY() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Result truncated at %d rows.\n", rowCap)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&rowCap, "row-cap", 0, "Max rows returned (default from config)")
	return cmd
}
