package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes a session for the status command.
type StatusInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	State      string `json:"state"`
	StopReason string `json:"stop_reason,omitempty"`
	Running    bool   `json:"running"`
	PID        int    `json:"pid,omitempty"`

	WatchedDir string `json:"watched_dir"`
	BaseRaster string `json:"base_raster,omitempty"`
	Output     string `json:"output"`
	OutputSize int64  `json:"output_size"`
	Strategy   string `json:"strategy"`
	Policy     string `json:"policy"`

	Batches   int    `json:"batches"`
	Tiles     int    `json:"tiles"`
	Errors    int    `json:"errors"`
	LastError string `json:"last_error,omitempty"`

	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity,omitempty"`
	StoppedAt    time.Time `json:"stopped_at,omitempty"`

	Layers []LayerInfo `json:"layers,omitempty"`
}

// LayerInfo is one layer in a StatusInfo.
type LayerInfo struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bands  int    `json:"bands"`
}

// StatusRenderer displays session status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
		now:    time.Now,
	}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	title := info.Name
	if title == "" {
		title = info.ID
	}
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Session: "+title))

	state := info.State
	if info.StopReason != "" {
		state += " (" + info.StopReason + ")"
	}
	_, _ = fmt.Fprintf(r.out, "  State:     %s\n", r.renderState(info.State, state))
	if info.Running && info.PID > 0 {
		_, _ = fmt.Fprintf(r.out, "  PID:       %d\n", info.PID)
	}
	_, _ = fmt.Fprintf(r.out, "  Watching:  %s\n", info.WatchedDir)
	if info.BaseRaster != "" {
		_, _ = fmt.Fprintf(r.out, "  Base:      %s\n", info.BaseRaster)
	}
	_, _ = fmt.Fprintf(r.out, "  Output:    %s", info.Output)
	if info.OutputSize > 0 {
		_, _ = fmt.Fprintf(r.out, " (%s)", FormatBytes(info.OutputSize))
	}
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "  Strategy:  %s, policy %s\n", info.Strategy, info.Policy)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Batches:   %d\n", info.Batches)
	_, _ = fmt.Fprintf(r.out, "  Tiles:     %d\n", info.Tiles)
	if info.Errors > 0 {
		_, _ = fmt.Fprintf(r.out, "  Errors:    %s\n", r.styles.Error.Render(fmt.Sprint(info.Errors)))
		if info.LastError != "" {
			_, _ = fmt.Fprintf(r.out, "  Last error: %s\n", info.LastError)
		}
	}
	if !info.StartedAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Started:   %s\n", r.formatTime(info.StartedAt))
	}
	if !info.LastActivity.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Activity:  %s\n", r.formatTime(info.LastActivity))
	}
	if !info.StoppedAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Stopped:   %s\n", r.formatTime(info.StoppedAt))
	}

	if len(info.Layers) > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "  Layers:")
		for _, l := range info.Layers {
			_, _ = fmt.Fprintf(r.out, "    %s  %dx%d, %d band(s)  %s\n", l.Name, l.Width, l.Height, l.Bands, l.Source)
		}
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderState(state, text string) string {
	switch state {
	case "watching":
		return r.styles.OK.Render(text)
	case "stopped":
		return r.styles.Warning.Render(text)
	default:
		return text
	}
}

// formatTime formats t relative to now for recent times.
func (r *StatusRenderer) formatTime(t time.Time) string {
	diff := r.now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
