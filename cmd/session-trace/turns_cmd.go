package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/digitarald/vscode-session-trace/internal/store"
)

func newTurnsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "turns <session-id>",
		Short: "Show the turns of one indexed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg := configFrom(cmd.Context())

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			turns, err := st.TurnsForSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				return fmt.Errorf("no turns found for session %q", args[0])
			}

			if asJSON || !stdoutIsTTY() {
				return printJSON(cmd, turnsPayload(turns))
			}

			rows := make([][]string, 0, len(turns))
			for _, t := range turns {
				rows = append(rows, []string{
					strconv.Itoa(t.TurnIndex),
					clip(t.Prompt, 56),
					clip(t.Response, 56),
					t.Model,
					strconv.FormatInt(t.TotalTokens, 10),
					voteLabel(t.Vote),
				})
			}
			printTable(cmd, []string{"#", "PROMPT", "RESPONSE", "MODEL", "TOKENS", "VOTE"}, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Force JSON output")
	return cmd
}

func voteLabel(vote int) string {
	switch {
	case vote > 0:
		return "up"
	case vote < 0:
		return "down"
	default:
		return "-"
	}
}

type turnJSON struct {
	TurnIndex        int    `json:"turnIndex"`
	Prompt           string `json:"prompt"`
	Response         string `json:"response,omitempty"`
	Agent            string `json:"agent,omitempty"`
	Model            string `json:"model,omitempty"`
	Timestamp        int64  `json:"timestamp,omitempty"`
	DurationMs       int64  `json:"durationMs,omitempty"`
	TotalTokens      int64  `json:"totalTokens,omitempty"`
	PromptTokens     int64  `json:"promptTokens,omitempty"`
	CompletionTokens int64  `json:"completionTokens,omitempty"`
	Vote             int    `json:"vote,omitempty"`
}

func turnsPayload(turns []store.TurnRow) []turnJSON {
	out := make([]turnJSON, 0, len(turns))
	for _, t := range turns {
		out = append(out, turnJSON{
			TurnIndex:        t.TurnIndex,
			Prompt:           t.Prompt,
			Response:         t.Response,
			Agent:            t.Agent,
			Model:            t.Model,
			Timestamp:        t.Timestamp,
			DurationMs:       t.DurationMs,
			TotalTokens:      t.TotalTokens,
			PromptTokens:     t.PromptTokens,
			CompletionTokens: t.CompletionTokens,
			Vote:             t.Vote,
		})
	}
	return out
}
