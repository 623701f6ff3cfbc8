// Package session stores named watch profiles so a session can be resumed
// later with the same folder, base raster, output and options.
//
// A profile only records what the user asked for. Resuming rebuilds and
// re-validates a fresh monitor.WatchConfig from it.
package session

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	"github.com/Aman-CERP/mosaicwatch/internal/monitor"
	"github.com/Aman-CERP/mosaicwatch/pkg/version"
)

// Session is a saved watch profile.
type Session struct {
	// Name is the user-provided identifier.
	Name string `json:"name"`

	WatchedDir string `json:"watched_dir"`
	BaseRaster string `json:"base_raster,omitempty"`
	OutputPath string `json:"output_path"`

	// Overrides of the loaded configuration. Empty values keep the config.
	Strategy     string `json:"strategy,omitempty"`
	Policy       string `json:"policy,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`

	// Version is the mosaicwatch version that last wrote the profile.
	Version string `json:"version"`

	Stats RunStats `json:"stats"`

	// SessionDir is where the profile lives. Computed, not persisted.
	SessionDir string `json:"-"`
}

// RunStats accumulates over every run of the profile.
type RunStats struct {
	Runs          int       `json:"runs"`
	Batches       int       `json:"batches"`
	Tiles         int       `json:"tiles"`
	LastRun       time.Time `json:"last_run"`
	LastStop      string    `json:"last_stop,omitempty"`
	LastSessionID string    `json:"last_session_id,omitempty"`
}

// Paths are the three locations a profile is keyed on.
type Paths struct {
	WatchedDir string
	BaseRaster string
	OutputPath string
}

// SessionInfo summarises a profile for listing.
type SessionInfo struct {
	Name       string
	WatchedDir string
	OutputPath string
	LastUsed   time.Time
	Runs       int

	// Valid reports whether the paths still exist, so the profile can be
	// resumed without editing.
	Valid bool
}

// NewSession creates a profile for paths stored in sessionDir.
func NewSession(name string, paths Paths, sessionDir string) *Session {
	now := time.Now()
	return &Session{
		Name:       name,
		WatchedDir: paths.WatchedDir,
		BaseRaster: paths.BaseRaster,
		OutputPath: paths.OutputPath,
		CreatedAt:  now,
		LastUsed:   now,
		Version:    version.Version,
		SessionDir: sessionDir,
	}
}

// Paths returns the profile's locations.
func (s *Session) Paths() Paths {
	return Paths{WatchedDir: s.WatchedDir, BaseRaster: s.BaseRaster, OutputPath: s.OutputPath}
}

// UpdateLastUsed sets LastUsed to now.
func (s *Session) UpdateLastUsed() {
	s.LastUsed = time.Now()
	s.Version = version.Version
}

// RecordRun adds a finished run to the stats.
func (s *Session) RecordRun(state monitor.SessionState) {
	s.Stats.Runs++
	s.Stats.Batches += state.Batches
	s.Stats.Tiles += state.Tiles
	s.Stats.LastRun = state.StartedAt
	s.Stats.LastStop = string(state.StopReason)
	s.Stats.LastSessionID = state.ID
}

// IsStale reports whether the profile hasn't been used within maxAge.
func (s *Session) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUsed) > maxAge
}

// Apply writes the profile's overrides into cfg.
func (s *Session) Apply(cfg *config.Config) {
	if s.Strategy != "" {
		cfg.Watch.Strategy = s.Strategy
	}
	if s.Policy != "" {
		cfg.Merge.Policy = s.Policy
	}
	if s.PollInterval != "" {
		cfg.Watch.PollInterval = s.PollInterval
	}
	if s.IdleTimeout != "" {
		cfg.Watch.IdleTimeout = s.IdleTimeout
	}
}

// WatchConfig rebuilds a validated WatchConfig from the profile on top of
// cfg. cfg is not modified.
func (s *Session) WatchConfig(cfg *config.Config) (monitor.WatchConfig, error) {
	merged := *cfg
	s.Apply(&merged)
	if err := merged.Validate(); err != nil {
		return monitor.WatchConfig{}, err
	}
	wc, err := monitor.FromConfig(&merged, s.WatchedDir, s.BaseRaster, s.OutputPath)
	if err != nil {
		return monitor.WatchConfig{}, err
	}
	wc.Name = s.Name
	if err := wc.Validate(); err != nil {
		return monitor.WatchConfig{}, err
	}
	return wc, nil
}

// ToInfo converts the profile for listing.
func (s *Session) ToInfo() *SessionInfo {
	return &SessionInfo{
		Name:       s.Name,
		WatchedDir: s.WatchedDir,
		OutputPath: s.OutputPath,
		LastUsed:   s.LastUsed,
		Runs:       s.Stats.Runs,
		Valid:      s.pathsExist(),
	}
}

func (s *Session) pathsExist() bool {
	if info, err := os.Stat(s.WatchedDir); err != nil || !info.IsDir() {
		return false
	}
	if s.BaseRaster != "" {
		if _, err := os.Stat(s.BaseRaster); err != nil {
			return false
		}
	}
	if _, err := os.Stat(filepath.Dir(s.OutputPath)); err != nil {
		return false
	}
	return true
}
