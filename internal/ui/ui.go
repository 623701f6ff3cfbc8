// Package ui renders a running watch session in the terminal.
//
// A Renderer plays the part of the map canvas: it owns the thread that
// mutates the layer list, receives loop events, and shows the current
// layers. The TUI variant runs a bubbletea program; the plain variant writes
// one line per event for pipes, CI logs and --no-tui.
package ui

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/mosaicwatch/internal/monitor"
	"github.com/Aman-CERP/mosaicwatch/internal/project"
)

// Renderer shows a session. It is both the dispatcher layer mutations run on
// and the reporter the monitor loop sends events to.
type Renderer interface {
	project.Dispatcher
	monitor.Reporter

	// Start begins rendering. Do fails with project.ErrDispatcherClosed
	// before Start and after Stop.
	Start(ctx context.Context) error

	// SetLayers replaces the displayed layer list. It is safe to call from
	// Project.OnChange.
	SetLayers(layers []project.Layer)

	// Done is closed when the renderer has stopped, including when the user
	// quits the TUI.
	Done() <-chan struct{}

	// Stop stops rendering and releases the terminal.
	Stop() error
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string // session name shown in the header
	WatchedDir string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithTitle sets the header title.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// WithWatchedDir sets the watched folder shown in the header.
func WithWatchedDir(dir string) ConfigOption {
	return func(c *Config) {
		c.WatchedDir = dir
	}
}

// NewConfig creates a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output: output,
		Title:  "mosaicwatch",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI for interactive terminals and the plain
// renderer for pipes, CI, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
