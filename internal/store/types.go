// Package store persists the map project, merge history and session records
// in SQLite.
package store

import (
	"context"
	"time"
)

// LayerRecord is a layer in the map project.
type LayerRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Bands     int       `json:"bands"`
	SessionID string    `json:"session_id,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// MergeStatus is the outcome of one batch merge.
type MergeStatus string

const (
	MergeStatusOK     MergeStatus = "ok"
	MergeStatusFailed MergeStatus = "failed"
)

// MergeRecord is one row of merge history.
type MergeRecord struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	Policy    string        `json:"policy"`
	Existing  string        `json:"existing"`
	Output    string        `json:"output"`
	Tiles     []string      `json:"tiles"`
	Duration  time.Duration `json:"duration"`
	Status    MergeStatus   `json:"status"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// SessionRecord summarises one monitoring session.
type SessionRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	WatchedDir string    `json:"watched_dir"`
	BaseRaster string    `json:"base_raster,omitempty"`
	Output     string    `json:"output"`
	Strategy   string    `json:"strategy"`
	Policy     string    `json:"policy"`
	State      string    `json:"state"`
	StopReason string    `json:"stop_reason,omitempty"`
	Batches    int       `json:"batches"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at,omitempty"`
}

// LayerStore is the subset used by the map project for write-through.
type LayerStore interface {
	SaveLayer(ctx context.Context, l LayerRecord) error
	DeleteLayer(ctx context.Context, id string) error
	ListLayers(ctx context.Context) ([]LayerRecord, error)
}

// HistoryStore records merges and sessions.
type HistoryStore interface {
	RecordMerge(ctx context.Context, m MergeRecord) (int64, error)
	ListMerges(ctx context.Context, sessionID string, limit int) ([]MergeRecord, error)
	SaveSession(ctx context.Context, s SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
}
