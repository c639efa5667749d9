package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digitarald/vscode-session-trace/internal/store"
)

func newListCmd() *cobra.Command {
	var (
		days      int
		storage   string
		workspace string
		limit     int
		offset    int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg := configFrom(cmd.Context())

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.ListSessions(cmd.Context(), store.ListOptions{
				MaxAgeDays:    days,
				StorageType:   storage,
				WorkspacePath: workspace,
				Limit:         limit,
				Offset:        offset,
			})
			if err != nil {
				return err
			}

			if asJSON || !stdoutIsTTY() {
				return printJSON(cmd, listPayload(sessions))
			}

			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions indexed. Run 'session-trace index' first.")
				return nil
			}

			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				title := s.Title
				if title == "" {
					title = s.LastMessage
				}
				rows = append(rows, []string{
					s.SessionID,
					clip(title, 48),
					strconv.Itoa(s.RequestCount),
					strings.Join(s.ModelIDs, ","),
					s.StorageType,
					s.WorkspacePath,
					formatMillis(s.CreationDate),
				})
			}
			printTable(cmd, []string{"SESSION", "TITLE", "TURNS", "MODELS", "STORAGE", "WORKSPACE", "CREATED"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Only sessions created within the last N days")
	cmd.Flags().StringVar(&storage, "storage", "", "Filter by storage type (workspace|global|transferred)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Filter by workspace label")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Max sessions (0 = no limit)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip the first N sessions")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Force JSON output")
	return cmd
}

type sessionJSON struct {
	SessionID     string   `json:"sessionId"`
	Title         string   `json:"title,omitempty"`
	CreationDate  int64    `json:"creationDate"`
	RequestCount  int      `json:"requestCount"`
	LastMessage   string   `json:"lastMessage,omitempty"`
	ModelIDs      []string `json:"modelIds,omitempty"`
	Agents        []string `json:"agents,omitempty"`
	TotalTokens   int64    `json:"totalTokens"`
	HasVotes      bool     `json:"hasVotes"`
	StorageType   string   `json:"storageType"`
	WorkspacePath string   `json:"workspacePath,omitempty"`
	FilePath      string   `json:"filePath"`
}

func listPayload(sessions []store.SessionSummary) []sessionJSON {
	out := make([]sessionJSON, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionJSON{
			SessionID:     s.SessionID,
			Title:         s.Title,
			CreationDate:  s.CreationDate,
			RequestCount:  s.RequestCount,
			LastMessage:   s.LastMessage,
			ModelIDs:      s.ModelIDs,
			Agents:        s.Agents,
			TotalTokens:   s.TotalTokens,
			HasVotes:      s.HasVotes,
			StorageType:   s.StorageType,
			WorkspacePath: s.WorkspacePath,
			FilePath:      s.FilePath,
		})
	}
	return out
}
