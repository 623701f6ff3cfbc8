package mcp

import (
	"time"

	"github.com/Aman-CERP/mosaicwatch/internal/control"
	"github.com/Aman-CERP/mosaicwatch/internal/raster"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
)

// Tool names.
const (
	ToolMergeRasters  = "merge_rasters"
	ToolRasterInfo    = "raster_info"
	ToolSessionStatus = "session_status"
	ToolStopSession   = "stop_session"
)

// MergeRastersInput defines the input schema for the merge_rasters tool.
type MergeRastersInput struct {
	Existing string   `json:"existing" jsonschema:"path of the raster the tiles are merged into"`
	Tiles    []string `json:"tiles" jsonschema:"tile paths in merge order; later tiles win where they overlap"`
	Output   string   `json:"output" jsonschema:"path of the merged raster; may equal existing"`
	Policy   string   `json:"policy,omitempty" jsonschema:"warp (union mosaic) or overwrite (newest tile replaces bands); default from config"`
}

// MergeRastersOutput defines the output schema for the merge_rasters tool.
type MergeRastersOutput struct {
	Output     string      `json:"output" jsonschema:"path of the written raster"`
	Policy     string      `json:"policy" jsonschema:"policy that was applied"`
	Tiles      int         `json:"tiles" jsonschema:"number of tiles passed in"`
	DurationMS int64       `json:"duration_ms" jsonschema:"merge wall time in milliseconds"`
	Raster     raster.Info `json:"raster" jsonschema:"description of the written raster"`
}

// RasterInfoInput defines the input schema for the raster_info tool.
type RasterInfoInput struct {
	Path string `json:"path" jsonschema:"raster file to describe (GeoTIFF, PNG or JPEG)"`
}

// SessionStatusInput defines the input schema for the session_status tool.
type SessionStatusInput struct {
	History int `json:"history,omitempty" jsonschema:"number of recent merges to include, default 5, max 50"`
}

// SessionStatusOutput defines the output schema for the session_status tool.
type SessionStatusOutput struct {
	Running bool `json:"running" jsonschema:"true if a session answered on the control socket"`
	// Source is "live" when Session came from the running process and
	// "history" when it is the last recorded session.
	Source  string                 `json:"source" jsonschema:"live, history or none"`
	PID     int                    `json:"pid,omitempty" jsonschema:"process id of the running session"`
	Uptime  string                 `json:"uptime,omitempty" jsonschema:"how long the running session has been up"`
	Session *SessionView `json:"session,omitempty" jsonschema:"the session, if any"`
	Merges  []MergeView  `json:"merges,omitempty" jsonschema:"recent merges of the session, newest first"`
}

// SessionView is a session as reported to MCP clients. Times are RFC 3339
// strings, empty when unset.
type SessionView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	State         string   `json:"state"`
	StopReason    string   `json:"stop_reason,omitempty"`
	WatchedDir    string   `json:"watched_dir"`
	BaseRaster    string   `json:"base_raster,omitempty"`
	Output        string   `json:"output"`
	CurrentMosaic string   `json:"current_mosaic,omitempty"`
	Strategy      string   `json:"strategy"`
	Policy        string   `json:"policy"`
	Batches       int      `json:"batches"`
	Tiles         int      `json:"tiles"`
	Errors        int      `json:"errors"`
	LastError     string   `json:"last_error,omitempty"`
	StartedAt     string   `json:"started_at,omitempty"`
	LastActivity  string   `json:"last_activity,omitempty"`
	StoppedAt     string   `json:"stopped_at,omitempty"`
	Layers        []string `json:"layers,omitempty" jsonschema:"names of the project layers"`
}

// MergeView is one merge history entry.
type MergeView struct {
	Output     string   `json:"output"`
	Tiles      []string `json:"tiles"`
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	At         string   `json:"at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func liveSessionView(s control.SessionStatus) *SessionView {
	v := &SessionView{
		ID:            s.ID,
		Name:          s.Name,
		State:         s.State,
		StopReason:    s.StopReason,
		WatchedDir:    s.WatchedDir,
		BaseRaster:    s.BaseRaster,
		Output:        s.Output,
		CurrentMosaic: s.CurrentMosaic,
		Strategy:      s.Strategy,
		Policy:        s.Policy,
		Batches:       s.Batches,
		Tiles:         s.Tiles,
		Errors:        s.Errors,
		LastError:     s.LastError,
		StartedAt:     formatTime(s.StartedAt),
		LastActivity:  formatTime(s.LastActivity),
		StoppedAt:     formatTime(s.StoppedAt),
	}
	for _, l := range s.Layers {
		v.Layers = append(v.Layers, l.Name)
	}
	return v
}

func recordedSessionView(r store.SessionRecord) *SessionView {
	return &SessionView{
		ID:         r.ID,
		Name:       r.Name,
		State:      r.State,
		StopReason: r.StopReason,
		WatchedDir: r.WatchedDir,
		BaseRaster: r.BaseRaster,
		Output:     r.Output,
		Strategy:   r.Strategy,
		Policy:     r.Policy,
		Batches:    r.Batches,
		Errors:     r.Errors,
		StartedAt:  formatTime(r.StartedAt),
		StoppedAt:  formatTime(r.StoppedAt),
	}
}

func mergeViews(records []store.MergeRecord) []MergeView {
	views := make([]MergeView, 0, len(records))
	for _, m := range records {
		views = append(views, MergeView{
			Output:     m.Output,
			Tiles:      m.Tiles,
			Status:     string(m.Status),
			Error:      m.Error,
			DurationMS: m.Duration.Milliseconds(),
			At:         formatTime(m.CreatedAt),
		})
	}
	return views
}

// StopSessionInput defines the input schema for the stop_session tool.
type StopSessionInput struct {
	Wait bool `json:"wait,omitempty" jsonschema:"wait until the session has stopped before returning"`
}

// StopSessionOutput defines the output schema for the stop_session tool.
type StopSessionOutput struct {
	State      string `json:"state" jsonschema:"session state after the request"`
	StopReason string `json:"stop_reason,omitempty" jsonschema:"why the session stopped"`
}
