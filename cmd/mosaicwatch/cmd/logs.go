package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaicwatch/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View mosaicwatch logs",
		Long: `View and tail the mosaicwatch log file (~/.mosaicwatch/logs/mosaicwatch.log).

By default, shows the last 50 entries. Use -f to follow new entries in
real-time (like 'tail -f').`,
		Example: `  mosaicwatch logs                 # Show last 50 entries
  mosaicwatch logs -n 200          # Show last 200 entries
  mosaicwatch logs -f              # Follow logs in real-time
  mosaicwatch logs --level warn    # Only warnings and errors
  mosaicwatch logs --filter tile_  # Entries mentioning tile_`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only entries matching this pattern (regex)")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	path := opts.logFile
	if path == "" {
		path = logging.DefaultLogPath()
	}
	if !fileExists(path) {
		return fmt.Errorf("no log file at %s\nRun a command first, or pass --file", path)
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		var err error
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(errOut, "Log file: %s\n", path)

	if opts.follow {
		_, _ = fmt.Fprintln(errOut, "Following... (Ctrl+C to stop)")
		_, _ = fmt.Fprintln(errOut, "---")
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return logging.Follow(ctx, path, opts.level, &lineFilter{out: out, pattern: pattern})
	}
	_, _ = fmt.Fprintln(errOut, "---")

	entries, err := logging.Tail(path, 0, opts.level)
	if err != nil {
		return err
	}
	var shown []logging.Entry
	for _, e := range entries {
		if pattern == nil || pattern.MatchString(e.Raw) {
			shown = append(shown, e)
		}
	}
	if opts.lines > 0 && len(shown) > opts.lines {
		shown = shown[len(shown)-opts.lines:]
	}
	for _, e := range shown {
		_, _ = fmt.Fprintln(out, e.Format())
	}
	return nil
}

// lineFilter drops formatted lines that do not match pattern. Follow writes
// one entry per Write call.
type lineFilter struct {
	out     io.Writer
	pattern *regexp.Regexp
}

func (f *lineFilter) Write(p []byte) (int, error) {
	if f.pattern != nil && !f.pattern.Match(p) {
		return len(p), nil
	}
	return f.out.Write(p)
}
