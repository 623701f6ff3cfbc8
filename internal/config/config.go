package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete mosaicwatch configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Watch    WatchConfig    `yaml:"watch" json:"watch"`
	Merge    MergeConfig    `yaml:"merge" json:"merge"`
	Project  ProjectConfig  `yaml:"project" json:"project"`
	UI       UIConfig       `yaml:"ui" json:"ui"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Control  ControlConfig  `yaml:"control" json:"control"`
	Sessions SessionsConfig `yaml:"sessions" json:"sessions"`
}

// WatchConfig configures how the watched folder is observed.
// Durations are Go duration strings ("10s", "2m").
type WatchConfig struct {
	// Strategy is "polling", "events" or "auto" (events, falling back to polling).
	Strategy string `yaml:"strategy" json:"strategy"`

	// PollInterval is the time between directory listings in polling mode.
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`

	// IdleTimeout stops the session when no new tile arrived for this long.
	IdleTimeout string `yaml:"idle_timeout" json:"idle_timeout"`

	// WatchdogInterval is how often the events strategy checks for idleness.
	WatchdogInterval string `yaml:"watchdog_interval" json:"watchdog_interval"`

	// Debounce coalesces bursts of events for one file. "0" disables it.
	Debounce string `yaml:"debounce" json:"debounce"`

	// Extensions lists recognised tile extensions, with leading dot.
	Extensions []string `yaml:"extensions" json:"extensions"`

	// Exclude lists glob patterns (matched against file names) never treated as tiles.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// MergeConfig configures the raster merge engine.
type MergeConfig struct {
	// Policy is "warp" (union mosaic) or "overwrite" (newest tile replaces bands).
	Policy string `yaml:"policy" json:"policy"`

	// Driver is the output format: "GTiff" or "PNG".
	Driver string `yaml:"driver" json:"driver"`

	// NoData overrides the output nodata value. Empty keeps the existing raster's.
	NoData string `yaml:"nodata" json:"nodata"`

	// CacheSize is the number of decoded rasters kept in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ProjectConfig configures the persisted map project.
type ProjectConfig struct {
	// DatabasePath is the SQLite file holding layers, sessions and merge history.
	DatabasePath string `yaml:"database_path" json:"database_path"`
}

// UIConfig configures the terminal map view.
type UIConfig struct {
	Plain   bool `yaml:"plain" json:"plain"`
	NoColor bool `yaml:"no_color" json:"no_color"`
}

// LoggingConfig configures the rotating log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// ControlConfig configures the control socket of a running session.
type ControlConfig struct {
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	PIDPath    string `yaml:"pid_path" json:"pid_path"`
}

// SessionsConfig configures saved session profiles.
type SessionsConfig struct {
	StoragePath string `yaml:"storage_path" json:"storage_path"`
	MaxSessions int    `yaml:"max_sessions" json:"max_sessions"`
}

var validStrategies = map[string]bool{"polling": true, "events": true, "auto": true}
var validPolicies = map[string]bool{"warp": true, "overwrite": true}
var validDrivers = map[string]bool{"gtiff": true, "png": true}
var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// DefaultExtensions are the tile extensions recognised out of the box.
var DefaultExtensions = []string{".tif", ".tiff", ".png", ".jpg", ".jpeg"}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	home := DataDir()
	return &Config{
		Version: 1,
		Watch: WatchConfig{
			Strategy:         "polling",
			PollInterval:     "10s",
			IdleTimeout:      "60s",
			WatchdogInterval: "120s",
			Debounce:         "500ms",
			Extensions:       append([]string(nil), DefaultExtensions...),
			Exclude:          []string{".*", "*.tmp", "*.part"},
		},
		Merge: MergeConfig{
			Policy:    "warp",
			Driver:    "GTiff",
			CacheSize: 8,
		},
		Project: ProjectConfig{
			DatabasePath: filepath.Join(home, "project.db"),
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Control: ControlConfig{
			SocketPath: filepath.Join(home, "mosaicwatch.sock"),
			PIDPath:    filepath.Join(home, "mosaicwatch.pid"),
		},
		Sessions: SessionsConfig{
			StoragePath: filepath.Join(home, "sessions"),
			MaxSessions: 20,
		},
	}
}

// DataDir returns the mosaicwatch data directory.
// MOSAICWATCH_HOME overrides the default ~/.mosaicwatch.
func DataDir() string {
	if v := os.Getenv("MOSAICWATCH_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mosaicwatch")
	}
	return filepath.Join(home, ".mosaicwatch")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/mosaicwatch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/mosaicwatch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mosaicwatch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "mosaicwatch", "config.yaml")
	}
	return filepath.Join(home, ".config", "mosaicwatch", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var cfg Config
	if err := readYAML(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Load loads configuration for the given working directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/mosaicwatch/config.yaml)
//  3. Project config (.mosaicwatch.yaml in dir)
//  4. Environment variables (MOSAICWATCH_*)
//
// Command-line flags are applied by the caller on top of the result.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, or "" if none exists.
// .mosaicwatch.yaml takes precedence over .mosaicwatch.yml.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{".mosaicwatch.yaml", ".mosaicwatch.yml"} {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

func (c *Config) loadFromFile(dir string) error {
	path := ProjectConfigPath(dir)
	if path == "" {
		return nil
	}
	var parsed Config
	if err := readYAML(path, &parsed); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

func readYAML(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Watch
	if other.Watch.Strategy != "" {
		c.Watch.Strategy = other.Watch.Strategy
	}
	if other.Watch.PollInterval != "" {
		c.Watch.PollInterval = other.Watch.PollInterval
	}
	if other.Watch.IdleTimeout != "" {
		c.Watch.IdleTimeout = other.Watch.IdleTimeout
	}
	if other.Watch.WatchdogInterval != "" {
		c.Watch.WatchdogInterval = other.Watch.WatchdogInterval
	}
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if len(other.Watch.Extensions) > 0 {
		c.Watch.Extensions = other.Watch.Extensions
	}
	if len(other.Watch.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Watch.Exclude = append(c.Watch.Exclude, other.Watch.Exclude...)
	}

	// Merge
	if other.Merge.Policy != "" {
		c.Merge.Policy = other.Merge.Policy
	}
	if other.Merge.Driver != "" {
		c.Merge.Driver = other.Merge.Driver
	}
	if other.Merge.NoData != "" {
		c.Merge.NoData = other.Merge.NoData
	}
	if other.Merge.CacheSize != 0 {
		c.Merge.CacheSize = other.Merge.CacheSize
	}

	if other.Project.DatabasePath != "" {
		c.Project.DatabasePath = other.Project.DatabasePath
	}

	// Booleans can only be switched on by a config layer
	if other.UI.Plain {
		c.UI.Plain = true
	}
	if other.UI.NoColor {
		c.UI.NoColor = true
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}

	if other.Control.SocketPath != "" {
		c.Control.SocketPath = other.Control.SocketPath
	}
	if other.Control.PIDPath != "" {
		c.Control.PIDPath = other.Control.PIDPath
	}

	if other.Sessions.StoragePath != "" {
		c.Sessions.StoragePath = other.Sessions.StoragePath
	}
	if other.Sessions.MaxSessions != 0 {
		c.Sessions.MaxSessions = other.Sessions.MaxSessions
	}
}

// applyEnvOverrides applies MOSAICWATCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MOSAICWATCH_STRATEGY"); v != "" {
		c.Watch.Strategy = v
	}
	if v := os.Getenv("MOSAICWATCH_POLL_INTERVAL"); v != "" {
		c.Watch.PollInterval = v
	}
	if v := os.Getenv("MOSAICWATCH_IDLE_TIMEOUT"); v != "" {
		c.Watch.IdleTimeout = v
	}
	if v := os.Getenv("MOSAICWATCH_DEBOUNCE"); v != "" {
		c.Watch.Debounce = v
	}
	if v := os.Getenv("MOSAICWATCH_MERGE_POLICY"); v != "" {
		c.Merge.Policy = v
	}
	if v := os.Getenv("MOSAICWATCH_MERGE_DRIVER"); v != "" {
		c.Merge.Driver = v
	}
	if v := os.Getenv("MOSAICWATCH_DB_PATH"); v != "" {
		c.Project.DatabasePath = v
	}
	if v := os.Getenv("MOSAICWATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MOSAICWATCH_PLAIN"); v != "" {
		c.UI.Plain = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if !validStrategies[strings.ToLower(c.Watch.Strategy)] {
		return fmt.Errorf("watch.strategy must be 'polling', 'events' or 'auto', got %q", c.Watch.Strategy)
	}
	for name, v := range map[string]string{
		"watch.poll_interval":     c.Watch.PollInterval,
		"watch.idle_timeout":      c.Watch.IdleTimeout,
		"watch.watchdog_interval": c.Watch.WatchdogInterval,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, v)
		}
	}
	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("watch.debounce: %w", err)
	} else if d < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	for _, ext := range c.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("watch.extensions entries must start with '.', got %q", ext)
		}
	}

	if !validPolicies[strings.ToLower(c.Merge.Policy)] {
		return fmt.Errorf("merge.policy must be 'warp' or 'overwrite', got %q", c.Merge.Policy)
	}
	if !validDrivers[strings.ToLower(c.Merge.Driver)] {
		return fmt.Errorf("merge.driver must be 'GTiff' or 'PNG', got %q", c.Merge.Driver)
	}
	if c.Merge.NoData != "" {
		if _, err := strconv.ParseFloat(c.Merge.NoData, 64); err != nil {
			return fmt.Errorf("merge.nodata must be a number, got %q", c.Merge.NoData)
		}
	}
	if c.Merge.CacheSize < 0 {
		return fmt.Errorf("merge.cache_size must be non-negative, got %d", c.Merge.CacheSize)
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// PollIntervalDuration returns the parsed polling interval.
func (w WatchConfig) PollIntervalDuration() time.Duration { return mustDuration(w.PollInterval) }

// IdleTimeoutDuration returns the parsed idle timeout.
func (w WatchConfig) IdleTimeoutDuration() time.Duration { return mustDuration(w.IdleTimeout) }

// WatchdogIntervalDuration returns the parsed watchdog interval.
func (w WatchConfig) WatchdogIntervalDuration() time.Duration {
	return mustDuration(w.WatchdogInterval)
}

// DebounceDuration returns the parsed debounce window.
func (w WatchConfig) DebounceDuration() time.Duration { return mustDuration(w.Debounce) }

// NoDataValue returns the configured nodata override, if any.
func (m MergeConfig) NoDataValue() (float64, bool) {
	if m.NoData == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m.NoData, 64)
	return v, err == nil
}

// mustDuration parses a duration that Validate has already checked.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// WriteYAML writes the configuration to a YAML file.
// An existing file is kept next to it with a .bak suffix.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if fileExists(path) {
		if err := os.Rename(path, path+".bak"); err != nil {
			return fmt.Errorf("failed to back up existing config: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
