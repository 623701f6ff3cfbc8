package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file appeared in the watched directory.
	OpCreate Operation = iota
	// OpWrite indicates an existing file was written to.
	OpWrite
	// OpRemove indicates a file was removed or renamed away.
	OpRemove
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event for a single tile path.
type FileEvent struct {
	// Path is the absolute path to the file.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Detector reports files that are new since the previous call.
type Detector interface {
	// DetectNew returns the absolute paths of newly arrived tiles, oldest first.
	// An empty result means nothing new. A WatchError means the watched
	// directory can no longer be observed.
	DetectNew(ctx context.Context) ([]string, error)

	// Close releases the detector. Safe to call multiple times.
	Close() error
}

// Notifier is implemented by detectors that can signal new work instead of
// waiting for the next poll.
type Notifier interface {
	// Notify receives a value whenever DetectNew has something to return.
	Notify() <-chan struct{}
}

// Strategy selects the detector implementation.
type Strategy string

const (
	// StrategyPolling lists the directory and diffs it against a seen-set.
	StrategyPolling Strategy = "polling"
	// StrategyEvents subscribes to file system events.
	StrategyEvents Strategy = "events"
	// StrategyAuto tries events and falls back to polling.
	StrategyAuto Strategy = "auto"
)

// ParseStrategy converts a configuration value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyPolling, "":
		return StrategyPolling, nil
	case StrategyEvents, "event", "fsnotify":
		return StrategyEvents, nil
	case StrategyAuto:
		return StrategyAuto, nil
	default:
		return "", fmt.Errorf("unknown watch strategy %q (want polling, events or auto)", s)
	}
}

// Options configures detector behavior.
type Options struct {
	// Extensions are the recognised tile extensions with leading dot.
	// Matching is case-insensitive.
	// Default: .tif .tiff .png .jpg .jpeg
	Extensions []string

	// Exclude are patterns matched against file names, in IgnoreFile syntax.
	Exclude []string

	// ExcludePaths are absolute paths of files the session itself writes.
	// The file, its temp files and its sidecars are never reported.
	ExcludePaths []string

	// DebounceWindow coalesces bursts of events for one path (events only).
	// Zero disables debouncing.
	DebounceWindow time.Duration

	// Logger receives non-fatal watcher diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default detector options.
func DefaultOptions() Options {
	return Options{
		Extensions:     []string{".tif", ".tiff", ".png", ".jpg", ".jpeg"},
		Exclude:        []string{".*", "*.tmp", "*.part"},
		DebounceWindow: 500 * time.Millisecond,
	}
}

// WithDefaults returns options with defaults applied for zero values.
// DebounceWindow is left alone since zero is meaningful.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if len(o.Extensions) == 0 {
		o.Extensions = defaults.Extensions
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// New creates a detector for dir using the given strategy. StrategyAuto
// returns an EventDetector when fsnotify can be initialised and a
// PollingDetector otherwise.
func New(strategy Strategy, dir string, opts Options) (Detector, error) {
	opts = opts.WithDefaults()
	if strategy == StrategyEvents || strategy == StrategyAuto {
		d, err := NewEventDetector(dir, opts)
		if err == nil {
			return d, nil
		}
		if strategy == StrategyEvents {
			return nil, err
		}
		opts.Logger.Warn("event watcher unavailable, falling back to polling",
			slog.String("path", dir),
			slog.String("error", err.Error()))
	}
	d, err := NewPollingDetector(dir, opts)
	if err != nil {
		return nil, err
	}
	return d, nil
}
