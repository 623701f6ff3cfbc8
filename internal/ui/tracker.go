package ui

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/mosaicwatch/internal/monitor"
	"github.com/Aman-CERP/mosaicwatch/internal/project"
)

// maxActivity bounds the activity feed.
const maxActivity = 50

// Activity is one line of the activity feed.
type Activity struct {
	Time    time.Time
	Kind    monitor.EventKind
	Text    string
	IsError bool
}

// Stats is a snapshot of what the tracker has seen.
type Stats struct {
	Session      monitor.SessionState
	Layers       []project.Layer
	LastMerge    time.Duration
	AvgMerge     time.Duration
	LastError    string
	EventsSeen   int
	MergeSamples int
}

// SessionTracker accumulates loop events for display. It is safe for
// concurrent use.
type SessionTracker struct {
	mu         sync.RWMutex
	session    monitor.SessionState
	layers     []project.Layer
	activity   []Activity
	lastMerge  time.Duration
	totalMerge time.Duration
	merges     int
	lastErr    string
	events     int
	sparkline  *Sparkline
}

// NewSessionTracker creates an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sparkline: NewSparkline(60)}
}

// Apply records an event.
func (t *SessionTracker) Apply(e monitor.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events++
	t.session = e.Session

	switch e.Kind {
	case monitor.EventMerged:
		t.lastMerge = e.Duration
		t.totalMerge += e.Duration
		t.merges++
		t.sparkline.Add(e.Duration.Seconds())
	case monitor.EventError:
		if e.Err != nil {
			t.lastErr = e.Err.Error()
		}
	}

	t.activity = append(t.activity, Activity{
		Time:    e.Time,
		Kind:    e.Kind,
		Text:    Describe(e),
		IsError: e.Kind == monitor.EventError,
	})
	if over := len(t.activity) - maxActivity; over > 0 {
		t.activity = slices.Delete(t.activity, 0, over)
	}
}

// SetLayers replaces the layer list.
func (t *SessionTracker) SetLayers(layers []project.Layer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.layers = slices.Clone(layers)
}

// Stats returns a snapshot.
func (t *SessionTracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Stats{
		Session:      t.session,
		Layers:       slices.Clone(t.layers),
		LastMerge:    t.lastMerge,
		LastError:    t.lastErr,
		EventsSeen:   t.events,
		MergeSamples: t.merges,
	}
	if t.merges > 0 {
		s.AvgMerge = t.totalMerge / time.Duration(t.merges)
	}
	return s
}

// Recent returns up to n of the newest activity lines, oldest first.
func (t *SessionTracker) Recent(n int) []Activity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > len(t.activity) {
		n = len(t.activity)
	}
	return slices.Clone(t.activity[len(t.activity)-n:])
}

// RenderSparkline renders merge durations at the given width.
func (t *SessionTracker) RenderSparkline(width int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sparkline.Render(width)
}

// Describe renders an event as a single human readable line.
func Describe(e monitor.Event) string {
	switch e.Kind {
	case monitor.EventStateChanged:
		s := e.Session
		if s.State == monitor.StateStopped && s.StopReason != "" {
			return fmt.Sprintf("session %s (%s)", s.State, s.StopReason)
		}
		return "session " + s.State.String()
	case monitor.EventTilesDetected:
		return fmt.Sprintf("%d new %s: %s", len(e.Tiles), plural(len(e.Tiles), "tile", "tiles"), baseNames(e.Tiles, 3))
	case monitor.EventMerged:
		return fmt.Sprintf("merged into %s in %s", filepath.Base(e.Output), e.Duration.Round(time.Millisecond))
	case monitor.EventError:
		if e.Err != nil {
			return "error: " + e.Err.Error()
		}
		return "error"
	default:
		return string(e.Kind)
	}
}

func baseNames(paths []string, limit int) string {
	names := make([]string, 0, min(len(paths), limit))
	for i, p := range paths {
		if i == limit {
			break
		}
		names = append(names, filepath.Base(p))
	}
	out := strings.Join(names, ", ")
	if extra := len(paths) - limit; extra > 0 {
		out += fmt.Sprintf(" (+%d more)", extra)
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}
