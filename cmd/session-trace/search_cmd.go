package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digitarald/vscode-session-trace/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		workspace string
		days      int
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over prompts and responses",
		Long:  "Search over indexed turn text. Bare words match as prefixes; AND, OR and NOT combine terms.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg := configFrom(cmd.Context())

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if limit <= 0 {
				limit = cfg.Search.MaxResults
			}
			hits, err := st.Search(cmd.Context(), strings.Join(args, " "), store.SearchOptions{
				WorkspacePath: workspace,
				MaxAgeDays:    days,
				Limit:         limit,
			})
			if err != nil {
				return err
			}

			if asJSON || !stdoutIsTTY() {
				return printJSON(cmd, searchPayload(hits))
			}

			if len(hits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
				return nil
			}
			rows := make([][]string, 0, len(hits))
			for _, h := range hits {
				rows = append(rows, []string{
					h.SessionID,
					strconv.Itoa(h.TurnIndex),
					clip(h.Prompt, 44),
					clip(h.Response, 44),
					h.WorkspacePath,
				})
			}
			printTable(cmd, []string{"SESSION", "#", "PROMPT", "RESPONSE", "WORKSPACE"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", "", "Restrict to one workspace label")
	cmd.Flags().IntVar(&days, "days", 0, "Only sessions created within the last N days")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Max hits (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Force JSON output")
	return cmd
}

type hitJSON struct {
	SessionID     string  `json:"sessionId"`
	Title         string  `json:"title,omitempty"`
	TurnIndex     int     `json:"turnIndex"`
	Prompt        string  `json:"prompt"`
	Response      string  `json:"response,omitempty"`
	Agent         string  `json:"agent,omitempty"`
	Model         string  `json:"model,omitempty"`
	WorkspacePath string  `json:"workspacePath,omitempty"`
	StorageType   string  `json:"storageType"`
	Rank          float64 `json:"rank"`
}

func searchPayload(hits []store.SearchHit) []hitJSON {
	out := make([]hitJSON, 0, len(hits))
	for _, h := range hits {
		out = append(out, hitJSON{
			SessionID:     h.SessionID,
			Title:         h.Title,
			TurnIndex:     h.TurnIndex,
			Prompt:        h.Prompt,
			Response:      h.Response,
			Agent:         h.Agent,
			Model:         h.Model,
			WorkspacePath: h.WorkspacePath,
			StorageType:   h.StorageType,
			Rank:          h.Rank,
		})
	}
	return out
}
