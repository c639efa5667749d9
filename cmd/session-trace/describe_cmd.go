package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digitarald/vscode-session-trace/internal/store"
)

func newDescribeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Summarize what the index contains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg := configFrom(cmd.Context())

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ov, err := st.Describe(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON || !stdoutIsTTY() {
				return printJSON(cmd, describePayload(ov))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sessions:    %d\n", ov.SessionCount)
			fmt.Fprintf(out, "Turns:       %d\n", ov.TurnCount)
			fmt.Fprintf(out, "Annotations: %d\n", ov.AnnotationCount)
			if ov.SessionCount > 0 {
				fmt.Fprintf(out, "Date range:  %s .. %s\n",
					formatMillis(ov.OldestSession), formatMillis(ov.NewestSession))
			}
			if len(ov.AnnotationKinds) > 0 {
				parts := make([]string, 0, len(ov.AnnotationKinds))
				for kind, n := range ov.AnnotationKinds {
					parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
				}
				fmt.Fprintf(out, "Kinds:       %s\n", strings.Join(parts, " "))
			}
			printTop(out, "Top models", ov.TopModels)
			printTop(out, "Top agents", ov.TopAgents)
			printTop(out, "Top tools", ov.TopTools)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Force JSON output")
	return cmd
}

func printTop(out io.Writer, label string, counts []store.NameCount) {
	if len(counts) == 0 {
		return
	}
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s (%d)", c.Name, c.Count))
	}
	fmt.Fprintf(out, "%-12s %s\n", label+":", strings.Join(parts, ", "))
}

func describePayload(ov *store.Overview) map[string]any {
	return map[string]any{
		"sessionCount":    ov.SessionCount,
		"turnCount":       ov.TurnCount,
		"annotationCount": ov.AnnotationCount,
		"annotationKinds": ov.AnnotationKinds,
		"topModels":       ov.TopModels,
		"topAgents":       ov.TopAgents,
		"topTools":        ov.TopTools,
		"oldestSession":   ov.OldestSession,
		"newestSession":   ov.NewestSession,
	}
}
