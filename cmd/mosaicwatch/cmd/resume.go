package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	var (
		skipCheck bool
		plain     bool
	)

	cmd := &cobra.Command{
		Use:   "resume NAME",
		Short: "Resume a saved session",
		Long: `Start a new watch session from a saved profile.

The profile's folder, base raster, output and overrides are applied on top
of the current configuration and validated again, so a profile whose paths
no longer exist fails with the offending path.

Example:
  # Resume the survey session
  mosaicwatch resume survey

  # List available sessions first
  mosaicwatch sessions`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, args[0], skipCheck, plain)
		},
	}

	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain text output instead of the TUI")

	return cmd
}

func runResume(cmd *cobra.Command, name string, skipCheck, plain bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, err := getSessionManager(cfg)
	if err != nil {
		return err
	}

	sess, err := mgr.Get(name)
	if err != nil {
		return err
	}

	wc, err := sess.WatchConfig(cfg)
	if err != nil {
		return fmt.Errorf("session '%s' can no longer start: %w\n\nTo remove it, run:\n  mosaicwatch sessions delete %s",
			name, err, name)
	}

	slog.Info("resuming session",
		slog.String("session", name),
		slog.String("path", wc.WatchedDir))
	return sessionRun{
		cfg:       cfg,
		watch:     wc,
		skipCheck: skipCheck,
		plain:     plain,
		profile:   sess,
		profiles:  mgr,
	}.execute(cmd)
}
