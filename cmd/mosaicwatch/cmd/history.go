package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaicwatch/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		sessionID  string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent merges",
		Long: `Show the merge history recorded in the project database, newest first.

Every batch merged by a watch session is recorded, successful or not, as is
every one-shot 'mosaicwatch merge' (session "cli") and every merge made
through the MCP tools (session "mcp").`,
		Example: `  # Last 20 merges
  mosaicwatch history

  # Everything from one session
  mosaicwatch history --session 3f2a... --limit 0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var merges []store.MergeRecord
			if fileExists(cfg.Project.DatabasePath) {
				st, err := store.Open(cfg.Project.DatabasePath)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()

				if merges, err = st.ListMerges(cmd.Context(), sessionID, limit); err != nil {
					return err
				}
			}

			if jsonOutput {
				if merges == nil {
					merges = []store.MergeRecord{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(merges)
			}

			if len(merges) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No merges recorded.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "WHEN\tSESSION\tPOLICY\tTILES\tDURATION\tSTATUS\tOUTPUT")
			for _, m := range merges {
				status := string(m.Status)
				if m.Error != "" {
					status += ": " + truncate(m.Error, 40)
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					formatTimeAgo(m.CreatedAt), shortID(m.SessionID), m.Policy, len(m.Tiles),
					m.Duration.Round(time.Millisecond), status, filepath.Base(m.Output))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Only merges from this session ID")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of merges (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
