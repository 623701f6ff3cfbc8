package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	"github.com/Aman-CERP/mosaicwatch/internal/output"
	"github.com/Aman-CERP/mosaicwatch/internal/preflight"
	"github.com/Aman-CERP/mosaicwatch/internal/watcher"
)

type doctorOptions struct {
	verbose    bool
	jsonOutput bool
	dir        string
	output     string
	strategy   string
}

func newDoctorCmd() *cobra.Command {
	var opts doctorOptions

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics to ensure mosaicwatch can operate correctly.

Checks:
  - Data directory is writable
  - Project database opens
  - File descriptor limit (1024 recommended)
  - inotify watch limit, for the events strategy on Linux
  - With --dir: the watched folder exists and can be listed
  - With --output: free disk space (100MB minimum), output folder is
    writable and no other process holds the output mosaic lock

A passing run is remembered so 'watch' does not repeat the checks until
mosaicwatch is upgraded.

Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  mosaicwatch doctor

  # Check a planned session
  mosaicwatch doctor --dir ./incoming --output mosaic.tif

  # JSON output for scripting
  mosaicwatch doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Watched folder to check")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output mosaic to check")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Strategy to check for (default from config)")

	return cmd
}

func runDoctor(cmd *cobra.Command, opts doctorOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	strategyName := cfg.Watch.Strategy
	if opts.strategy != "" {
		strategyName = opts.strategy
	}
	strategy, err := watcher.ParseStrategy(strategyName)
	if err != nil {
		return err
	}

	dataDir := config.DataDir()
	checker := preflight.New(
		preflight.WithVerbose(opts.verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, preflight.Target{
		WatchedDir:   absPath(opts.dir),
		OutputPath:   absPath(opts.output),
		DataDir:      dataDir,
		DatabasePath: cfg.Project.DatabasePath,
		Strategy:     strategy,
	})
	failed := checker.HasCriticalFailures(results)

	if !failed {
		if err := preflight.MarkPassed(dataDir); err != nil {
			// Not fatal; watch will simply check again.
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not record passed check: %v\n", err)
		}
	}

	if opts.jsonOutput {
		if err := outputJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
		if m, ok := preflight.ReadMarker(dataDir); ok && !failed {
			out := output.New(cmd.OutOrStdout(), noColor)
			out.Newline()
			out.Successf("Last successful check: %s ago (%s)", formatAge(time.Since(m.PassedAt)), m.Version)
		}
	}

	if failed {
		return &doctorError{message: "system check failed"}
	}
	return nil
}

// doctorError is a custom error for doctor command failures.
type doctorError struct {
	message string
}

func (e *doctorError) Error() string {
	return e.message
}

// JSONOutput is the structure for JSON output.
type JSONOutput struct {
	Status   string                  `json:"status"`
	Checks   []preflight.CheckResult `json:"checks"`
	Warnings []string                `json:"warnings,omitempty"`
	Errors   []string                `json:"errors,omitempty"`
}

func outputJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := JSONOutput{
		Status: string(checker.SummaryStatus(results)),
		Checks: results,
	}
	for _, r := range results {
		if r.IsCritical() {
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d h", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	}
}
