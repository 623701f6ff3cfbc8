// Package cmd provides the CLI commands for mosaicwatch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
	"github.com/Aman-CERP/mosaicwatch/internal/logging"
	"github.com/Aman-CERP/mosaicwatch/internal/profiling"
	"github.com/Aman-CERP/mosaicwatch/pkg/version"
)

// Profiling flags
var (
	profileKinds   string
	profileDir     string
	profileSession *profiling.Session
)

// Logging and output flags
var (
	debugMode      bool
	noColor        bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the mosaicwatch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mosaicwatch",
		Short: "Merge raster tiles into a running mosaic as they land in a folder",
		Long: `mosaicwatch watches a folder for new raster tiles (GeoTIFF, PNG, JPEG),
merges each batch into an output mosaic and keeps one "current mosaic" layer
in the map project up to date.

Start a session with 'mosaicwatch watch DIR --base BASE.tif --output OUT.tif'.
Use 'mosaicwatch status' and 'mosaicwatch stop' from another terminal.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("mosaicwatch version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&profileKinds, "profile", "", "Capture profiles: comma-separated cpu,heap,trace,block")
	cmd.PersistentFlags().StringVar(&profileDir, "profile-dir", "", "Directory for profile files (default: <data dir>/profiles)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (also written to stderr)")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	// Session commands
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newSessionsCmd())

	// One-shot raster commands
	cmd.AddCommand(newMergeCmd())
	cmd.AddCommand(newInfoCmd())

	// Project database
	cmd.AddCommand(newLayersCmd())
	cmd.AddCommand(newHistoryCmd())

	// Integration and diagnostics
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging sets up file logging and starts the requested
// profiles.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	if err := setupLogging(cmd); err != nil {
		return err
	}

	if profileKinds == "" {
		return nil
	}
	kinds, err := profiling.ParseKinds(profileKinds)
	if err != nil {
		return err
	}
	dir := profileDir
	if dir == "" {
		dir = filepath.Join(config.DataDir(), "profiles")
	}
	profileSession, err = profiling.Start(profiling.Options{Dir: dir, Kinds: kinds})
	if err != nil {
		return fmt.Errorf("failed to start profiling: %w", err)
	}
	slog.Debug("profiling started",
		slog.String("dir", dir),
		slog.Any("kinds", kinds))
	return nil
}

// setupLogging writes JSON logs to the rotating log file. With --debug the
// level drops to debug and logs are mirrored to stderr as text, except for
// the mcp command whose stdio carries the protocol.
func setupLogging(cmd *cobra.Command) error {
	logCfg := logging.DefaultConfig()
	if debugMode && cmd.Name() != "mcp" {
		logCfg.Mirror = cmd.ErrOrStderr()
	}

	if cfg, err := loadConfig(); err == nil {
		logCfg.Level = cfg.Logging.Level
		logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
		logCfg.MaxFiles = cfg.Logging.MaxFiles
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		if debugMode {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		// Logging is best effort unless explicitly requested.
		return nil
	}
	prev := slog.Default()
	loggingCleanup = func() {
		slog.SetDefault(prev)
		cleanup()
	}
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled",
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Version),
		slog.String("command", cmd.CommandPath()))
	return nil
}

// stopProfilingAndLogging writes the profiles and closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		if stopErr := profileSession.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to write profiles: %w", stopErr)
		}
		profileSession = nil
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints a failure in the CLI error format.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, mwerrors.FormatForCLI(err))
	}
	return err
}

// loadConfig loads configuration for the current working directory.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return config.Load(cwd)
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
