package ui

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/mosaicwatch/internal/monitor"
	"github.com/Aman-CERP/mosaicwatch/internal/project"
)

// PlainRenderer writes one line per event, for CI and pipes. Layer
// mutations run on a private event loop.
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	tracker *SessionTracker
	loop    *project.EventLoop
	layers  int
	started bool
	stopped bool
	done    chan struct{}
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	return &PlainRenderer{
		out:     out,
		tracker: NewSessionTracker(),
		done:    make(chan struct{}),
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return nil
	}
	r.started = true
	r.loop = project.NewEventLoop()
	return nil
}

// Do implements project.Dispatcher.
func (r *PlainRenderer) Do(ctx context.Context, fn func()) error {
	r.mu.Lock()
	loop := r.loop
	r.mu.Unlock()
	if loop == nil {
		return project.ErrDispatcherClosed
	}
	return loop.Do(ctx, fn)
}

// Report implements monitor.Reporter.
func (r *PlainRenderer) Report(e monitor.Event) {
	r.tracker.Apply(e)

	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "INFO"
	if e.Kind == monitor.EventError {
		prefix = "ERROR"
	}
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	_, _ = fmt.Fprintf(r.out, "%s [%s] %s\n", ts.Format("15:04:05"), prefix, Describe(e))

	if e.Kind == monitor.EventStateChanged && e.Session.State == monitor.StateStopped {
		s := e.Session
		_, _ = fmt.Fprintf(r.out, "Stopped: %d %s, %d %s, %d %s",
			s.Batches, plural(s.Batches, "batch", "batches"),
			s.Tiles, plural(s.Tiles, "tile", "tiles"),
			s.Errors, plural(s.Errors, "error", "errors"))
		if s.CurrentMosaic != "" {
			_, _ = fmt.Fprintf(r.out, ", mosaic %s", s.CurrentMosaic)
		}
		_, _ = fmt.Fprintln(r.out)
	}
}

// SetLayers implements Renderer. Only changes in the layer count are
// printed.
func (r *PlainRenderer) SetLayers(layers []project.Layer) {
	r.tracker.SetLayers(layers)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(layers) == r.layers {
		return
	}
	r.layers = len(layers)
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = fmt.Sprintf("%s (%s)", l.Name, filepath.Base(l.Source))
	}
	_, _ = fmt.Fprintf(r.out, "Layers: %d %v\n", len(layers), names)
}

// Tracker returns the tracker fed by Report.
func (r *PlainRenderer) Tracker() *SessionTracker {
	return r.tracker
}

// Done implements Renderer.
func (r *PlainRenderer) Done() <-chan struct{} {
	return r.done
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	loop := r.loop
	r.loop = nil
	r.mu.Unlock()

	if loop != nil {
		loop.Close()
	}
	close(r.done)
	return nil
}
