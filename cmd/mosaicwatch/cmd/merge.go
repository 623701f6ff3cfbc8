package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	"github.com/Aman-CERP/mosaicwatch/internal/merge"
	"github.com/Aman-CERP/mosaicwatch/internal/raster"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
)

// SessionIDCLI is the history session one-shot merges are recorded under.
const SessionIDCLI = "cli"

func newMergeCmd() *cobra.Command {
	var (
		output     string
		policy     string
		noHistory  bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "merge EXISTING TILE...",
		Short: "Merge tiles into a raster once",
		Long: `Merge one or more tiles into an existing raster and write the result.

This runs the same merge engine as a watch session, without watching.
Tiles are merged in the order given, so the last tile wins where inputs
overlap. The merge is recorded in the project history unless --no-history
is set.`,
		Example: `  # Warp-merge two tiles into a new mosaic
  mosaicwatch merge base.tif tile_01.tif tile_02.tif -o mosaic.tif

  # Overwrite the base's bands with a tile
  mosaicwatch merge base.tif tile.tif -o out.tif --policy overwrite`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, args[0], args[1:], output, policy, noHistory, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output raster path (required)")
	cmd.Flags().StringVar(&policy, "policy", "", "Merge policy: warp or overwrite (default from config)")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the merge in the project database")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// mergeResult is the --json output of merge.
type mergeResult struct {
	Output     string      `json:"output"`
	Policy     string      `json:"policy"`
	Tiles      int         `json:"tiles"`
	DurationMS int64       `json:"duration_ms"`
	Raster     raster.Info `json:"raster"`
}

func runMerge(cmd *cobra.Command, existing string, tiles []string, output, policyName string, noHistory, jsonOutput bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var policy merge.Policy
	if policyName != "" {
		if policy, err = merge.ParsePolicy(policyName); err != nil {
			return err
		}
	} else if policy, err = merge.ParsePolicy(cfg.Merge.Policy); err != nil {
		return err
	}

	merger, err := merge.FromConfig(cfg.Merge, policy, slog.Default())
	if err != nil {
		return err
	}

	existing = absPath(existing)
	output = absPath(output)
	abs := make([]string, len(tiles))
	for i, t := range tiles {
		abs[i] = absPath(t)
	}

	start := time.Now()
	written, mergeErr := merger.Merge(ctx, existing, abs, output)
	elapsed := time.Since(start)

	if !noHistory {
		recordCLIMerge(ctx, cfg, store.MergeRecord{
			SessionID: SessionIDCLI,
			Policy:    string(policy),
			Existing:  existing,
			Output:    output,
			Tiles:     abs,
			Duration:  elapsed,
		}, mergeErr)
	}
	if mergeErr != nil {
		return mergeErr
	}

	info, err := raster.Stat(written)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(mergeResult{
			Output:     written,
			Policy:     string(policy),
			Tiles:      len(abs),
			DurationMS: elapsed.Milliseconds(),
			Raster:     info,
		})
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Merged %d tile(s) into %s (%s, %s)\n",
		len(abs), filepath.Base(written), policy, elapsed.Round(time.Millisecond))
	return printRasterInfo(cmd.OutOrStdout(), info)
}

// recordCLIMerge adds the merge to the project history. A database problem
// never fails the merge itself.
func recordCLIMerge(ctx context.Context, cfg *config.Config, rec store.MergeRecord, mergeErr error) {
	rec.Status = store.MergeStatusOK
	if mergeErr != nil {
		rec.Status = store.MergeStatusFailed
		rec.Error = mergeErr.Error()
	}

	st, err := store.Open(cfg.Project.DatabasePath)
	if err != nil {
		slog.Warn("merge not recorded", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = st.Close() }()

	if _, err := st.RecordMerge(ctx, rec); err != nil {
		slog.Warn("merge not recorded",
			slog.String("path", rec.Output),
			slog.String("error", err.Error()))
	}
}
