package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	"github.com/Aman-CERP/mosaicwatch/internal/control"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
	"github.com/Aman-CERP/mosaicwatch/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running or most recent session",
		Long: `Display the state of the watch session:
  - Watched folder, base raster and output mosaic
  - Strategy and merge policy
  - Batches, tiles and errors so far
  - Layers in the map project

A running session is asked over its control socket. Otherwise the most
recent session recorded in the project database is shown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info, err := collectStatus(ctx, cfg)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || cfg.UI.NoColor || ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// errNoSessions is returned when nothing is running and nothing is recorded.
var errNoSessions = errors.New("no session has been run yet\nStart one with 'mosaicwatch watch DIR'")

func collectStatus(ctx context.Context, cfg *config.Config) (ui.StatusInfo, error) {
	client := control.NewClient(control.FromConfig(cfg.Control))
	if client.IsRunning() {
		res, err := client.Status(ctx)
		if err == nil {
			return liveStatus(res), nil
		}
		var ce *control.Error
		if !errors.As(err, &ce) || ce.Code != control.ErrCodeNoSession {
			return ui.StatusInfo{}, fmt.Errorf("failed to query running session: %w", err)
		}
	}

	if !fileExists(cfg.Project.DatabasePath) {
		return ui.StatusInfo{}, errNoSessions
	}
	st, err := store.Open(cfg.Project.DatabasePath)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	defer func() { _ = st.Close() }()

	sessions, err := st.ListSessions(ctx, 1)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	if len(sessions) == 0 {
		return ui.StatusInfo{}, errNoSessions
	}
	info := recordedStatus(sessions[0])

	layers, err := st.ListLayers(ctx)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	for _, l := range layers {
		info.Layers = append(info.Layers, ui.LayerInfo{
			Name:   l.Name,
			Source: l.Source,
			Width:  l.Width,
			Height: l.Height,
			Bands:  l.Bands,
		})
	}
	return info, nil
}

func liveStatus(res *control.StatusResult) ui.StatusInfo {
	s := res.Session
	info := ui.StatusInfo{
		ID:           s.ID,
		Name:         s.Name,
		State:        s.State,
		StopReason:   s.StopReason,
		Running:      true,
		PID:          res.PID,
		WatchedDir:   s.WatchedDir,
		BaseRaster:   s.BaseRaster,
		Output:       s.Output,
		OutputSize:   getFileSize(s.Output),
		Strategy:     s.Strategy,
		Policy:       s.Policy,
		Batches:      s.Batches,
		Tiles:        s.Tiles,
		Errors:       s.Errors,
		LastError:    s.LastError,
		StartedAt:    s.StartedAt,
		LastActivity: s.LastActivity,
		StoppedAt:    s.StoppedAt,
	}
	for _, l := range s.Layers {
		info.Layers = append(info.Layers, ui.LayerInfo{
			Name:   l.Name,
			Source: l.Source,
			Width:  l.Width,
			Height: l.Height,
			Bands:  l.Bands,
		})
	}
	return info
}

func recordedStatus(r store.SessionRecord) ui.StatusInfo {
	return ui.StatusInfo{
		ID:         r.ID,
		Name:       r.Name,
		State:      r.State,
		StopReason: r.StopReason,
		WatchedDir: r.WatchedDir,
		BaseRaster: r.BaseRaster,
		Output:     r.Output,
		OutputSize: getFileSize(r.Output),
		Strategy:   r.Strategy,
		Policy:     r.Policy,
		Batches:    r.Batches,
		Errors:     r.Errors,
		StartedAt:  r.StartedAt,
		StoppedAt:  r.StoppedAt,
	}
}

// getFileSize returns the size of a file, or 0 if it doesn't exist.
func getFileSize(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
