package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
	"github.com/Aman-CERP/mosaicwatch/internal/merge"
	"github.com/Aman-CERP/mosaicwatch/internal/watcher"
)

// WatchConfig is everything one session needs. It is built once when the
// session starts and not changed afterwards.
type WatchConfig struct {
	Name       string
	WatchedDir string
	// BaseRaster is the existing raster the first batch merges into.
	// Required for the polling strategy.
	BaseRaster string
	OutputPath string

	PollInterval     time.Duration
	IdleTimeout      time.Duration // 0 disables the idle stop
	WatchdogInterval time.Duration
	Debounce         time.Duration

	Strategy   watcher.Strategy
	Policy     merge.Policy
	Extensions []string
	Exclude    []string
}

// FromConfig builds a WatchConfig from loaded configuration and the three
// session paths. Paths are made absolute.
func FromConfig(cfg *config.Config, watchedDir, baseRaster, outputPath string) (WatchConfig, error) {
	strategy, err := watcher.ParseStrategy(cfg.Watch.Strategy)
	if err != nil {
		return WatchConfig{}, mwerrors.ConfigError(err.Error(), err)
	}
	policy, err := merge.ParsePolicy(cfg.Merge.Policy)
	if err != nil {
		return WatchConfig{}, err
	}
	return WatchConfig{
		WatchedDir:       absPath(watchedDir),
		BaseRaster:       absPath(baseRaster),
		OutputPath:       absPath(outputPath),
		PollInterval:     cfg.Watch.PollIntervalDuration(),
		IdleTimeout:      cfg.Watch.IdleTimeoutDuration(),
		WatchdogInterval: cfg.Watch.WatchdogIntervalDuration(),
		Debounce:         cfg.Watch.DebounceDuration(),
		Strategy:         strategy,
		Policy:           policy,
		Extensions:       cfg.Watch.Extensions,
		Exclude:          cfg.Watch.Exclude,
	}, nil
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Validate checks the paths and intervals. Path problems are returned as
// ValidationErrors naming the offending path.
func (c WatchConfig) Validate() error {
	info, err := os.Stat(c.WatchedDir)
	if c.WatchedDir == "" || err != nil {
		return mwerrors.ValidationError(mwerrors.ErrCodeWatchDirNotFound, "watched directory does not exist", c.WatchedDir).
			WithSuggestion("Create the folder or pick an existing one")
	}
	if !info.IsDir() {
		return mwerrors.ValidationError(mwerrors.ErrCodeWatchDirNotFound, "watched path is not a directory", c.WatchedDir)
	}

	if c.BaseRaster == "" {
		if c.Strategy == watcher.StrategyPolling {
			return mwerrors.ValidationError(mwerrors.ErrCodeBaseRasterMissing, "a base raster is required for the polling strategy", c.BaseRaster).
				WithSuggestion("Pass --base, or use --strategy events")
		}
	} else if info, err := os.Stat(c.BaseRaster); err != nil || !info.Mode().IsRegular() {
		return mwerrors.ValidationError(mwerrors.ErrCodeBaseRasterMissing, "base raster does not exist", c.BaseRaster)
	}

	if c.OutputPath == "" {
		return mwerrors.ValidationError(mwerrors.ErrCodeInvalidPath, "output path is required", c.OutputPath)
	}
	outDir := filepath.Dir(c.OutputPath)
	if info, err := os.Stat(outDir); err != nil || !info.IsDir() {
		return mwerrors.ValidationError(mwerrors.ErrCodeOutputDirMissing, "output directory does not exist", outDir)
	}
	if info, err := os.Stat(c.OutputPath); err == nil && info.IsDir() {
		return mwerrors.ValidationError(mwerrors.ErrCodeInvalidPath, "output path is a directory", c.OutputPath)
	}

	if c.PollInterval <= 0 {
		return mwerrors.New(mwerrors.ErrCodeInvalidInterval, fmt.Sprintf("poll interval must be positive, got %s", c.PollInterval), nil)
	}
	if c.WatchdogInterval <= 0 {
		return mwerrors.New(mwerrors.ErrCodeInvalidInterval, fmt.Sprintf("watchdog interval must be positive, got %s", c.WatchdogInterval), nil)
	}
	if c.IdleTimeout < 0 {
		return mwerrors.New(mwerrors.ErrCodeInvalidInterval, fmt.Sprintf("idle timeout must not be negative, got %s", c.IdleTimeout), nil)
	}
	if _, err := merge.ParsePolicy(string(c.Policy)); err != nil {
		return err
	}
	return nil
}

// detectorOptions derives the watcher options. The session's own output
// and base raster are never reported as new tiles.
func (c WatchConfig) detectorOptions() watcher.Options {
	return watcher.Options{
		Extensions:     c.Extensions,
		Exclude:        c.Exclude,
		ExcludePaths:   []string{c.OutputPath, c.BaseRaster},
		DebounceWindow: c.Debounce,
	}
}
