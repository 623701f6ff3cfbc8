package monitor

import "time"

// State is the lifecycle state of a Loop.
type State int

const (
	StateIdle State = iota
	StateWatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason records why a loop reached StateStopped.
type StopReason string

const (
	ReasonIdle       StopReason = "idle"
	ReasonStopped    StopReason = "stopped"
	ReasonWatchError StopReason = "watch_error"
	ReasonCancelled  StopReason = "cancelled"
)

// SessionState is the single value describing one session. The loop owns it
// and hands out copies.
type SessionState struct {
	ID     string
	Config WatchConfig
	State  State

	// CurrentMosaic is the raster the next batch merges into. Empty until
	// the first tile arrives when the session started without a base raster.
	CurrentMosaic string

	StartedAt    time.Time
	LastActivity time.Time
	StoppedAt    time.Time

	Batches int
	Tiles   int
	Errors  int

	StopReason StopReason
	LastError  string
}

// IdleFor returns how long the session has gone without new tiles at now.
func (s SessionState) IdleFor(now time.Time) time.Duration {
	if s.LastActivity.IsZero() {
		return 0
	}
	return now.Sub(s.LastActivity)
}

// EventKind classifies loop events.
type EventKind string

const (
	EventStateChanged  EventKind = "state"
	EventTilesDetected EventKind = "tiles"
	EventMerged        EventKind = "merged"
	EventError         EventKind = "error"
)

// Event is sent to the Reporter as the loop makes progress.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Tiles    []string
	Output   string
	Duration time.Duration
	Err      error
	Session  SessionState
}

// Reporter receives loop events. Report must not block for long; it is
// called from the worker goroutine.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report calls f(e).
func (f ReporterFunc) Report(e Event) { f(e) }
