package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaicwatch/internal/control"
	"github.com/Aman-CERP/mosaicwatch/internal/mcp"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
)

func newMCPCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the mosaicwatch tools over MCP",
		Long: `Start a Model Context Protocol server on stdio.

Tools:
  merge_rasters   Merge tiles into an existing raster
  raster_info     Describe a raster
  session_status  Status of the running or last recorded session
  stop_session    Stop the running session

stdout carries the protocol, so nothing else is printed. Logs go to the log
file; see 'mosaicwatch logs'.`,
		Example: `  # Register with an MCP client
  {"command": "mosaicwatch", "args": ["mcp"]}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context(), transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type (stdio)")

	return cmd
}

func runMCP(parent context.Context, transport string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := mcp.Options{
		Config:  cfg,
		Control: control.NewClient(control.FromConfig(cfg.Control)),
		Logger:  slog.Default(),
	}
	st, err := store.Open(cfg.Project.DatabasePath)
	if err != nil {
		slog.Warn("merge history unavailable", slog.String("error", err.Error()))
	} else {
		defer func() { _ = st.Close() }()
		opts.History = st
	}

	server, err := mcp.NewServer(opts)
	if err != nil {
		return err
	}
	return server.Serve(ctx, transport)
}
