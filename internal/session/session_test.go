package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
	"github.com/Aman-CERP/mosaicwatch/internal/merge"
	"github.com/Aman-CERP/mosaicwatch/internal/monitor"
	"github.com/Aman-CERP/mosaicwatch/internal/watcher"
	"github.com/Aman-CERP/mosaicwatch/pkg/version"
)

// existingPaths creates the folder, base raster file and output directory.
func existingPaths(t *testing.T) Paths {
	t.Helper()
	p := testPaths(t.TempDir())
	require.NoError(t, os.MkdirAll(p.WatchedDir, 0755))
	require.NoError(t, os.MkdirAll(filepath.Dir(p.OutputPath), 0755))
	require.NoError(t, os.WriteFile(p.BaseRaster, []byte("base"), 0644))
	return p
}

func TestNewSession(t *testing.T) {
	sess := NewSession("field-a", testPaths("/data"), "/store/field-a")

	assert.Equal(t, "field-a", sess.Name)
	assert.Equal(t, version.Version, sess.Version)
	assert.Equal(t, "/store/field-a", sess.SessionDir)
	assert.WithinDuration(t, time.Now(), sess.CreatedAt, 5*time.Second)
	assert.Equal(t, sess.CreatedAt, sess.LastUsed)
}

func TestSession_RecordRun(t *testing.T) {
	sess := NewSession("field-a", testPaths("/data"), "")
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	sess.RecordRun(monitor.SessionState{ID: "s1", Batches: 2, Tiles: 5, StartedAt: started, StopReason: monitor.ReasonIdle})
	sess.RecordRun(monitor.SessionState{ID: "s2", Batches: 1, Tiles: 1, StartedAt: started.Add(time.Hour), StopReason: monitor.ReasonStopped})

	assert.Equal(t, RunStats{Runs: 2, Batches: 3, Tiles: 6, LastRun: started.Add(time.Hour), LastStop: "stopped", LastSessionID: "s2"}, sess.Stats)
}

func TestSession_IsStale(t *testing.T) {
	sess := NewSession("a", testPaths("/data"), "")
	assert.False(t, sess.IsStale(time.Hour))

	sess.LastUsed = time.Now().Add(-2 * time.Hour)
	assert.True(t, sess.IsStale(time.Hour))
}

func TestSession_WatchConfig_AppliesOverrides(t *testing.T) {
	// Given: a profile with overrides over default config
	t.Setenv("MOSAICWATCH_HOME", t.TempDir())
	paths := existingPaths(t)
	sess := NewSession("field-a", paths, "")
	sess.Policy = "overwrite"
	sess.PollInterval = "2s"
	sess.IdleTimeout = "5m"
	cfg := config.NewConfig()

	// When: rebuilding the watch config
	wc, err := sess.WatchConfig(cfg)

	// Then: overrides win and the base config is untouched
	require.NoError(t, err)
	assert.Equal(t, "field-a", wc.Name)
	assert.Equal(t, paths.WatchedDir, wc.WatchedDir)
	assert.Equal(t, merge.PolicyOverwrite, wc.Policy)
	assert.Equal(t, watcher.StrategyPolling, wc.Strategy)
	assert.Equal(t, 2*time.Second, wc.PollInterval)
	assert.Equal(t, 5*time.Minute, wc.IdleTimeout)
	assert.Equal(t, "warp", cfg.Merge.Policy)
}

func TestSession_WatchConfig_RevalidatesPaths(t *testing.T) {
	// Given: a profile whose watched folder was removed
	t.Setenv("MOSAICWATCH_HOME", t.TempDir())
	paths := existingPaths(t)
	require.NoError(t, os.RemoveAll(paths.WatchedDir))
	sess := NewSession("field-a", paths, "")

	// When: rebuilding
	_, err := sess.WatchConfig(config.NewConfig())

	// Then: a validation error names the folder
	require.Error(t, err)
	assert.Equal(t, mwerrors.CategoryValidation, mwerrors.GetCategory(err))
	assert.Contains(t, err.Error(), paths.WatchedDir)
}

func TestSession_WatchConfig_RejectsBadOverride(t *testing.T) {
	t.Setenv("MOSAICWATCH_HOME", t.TempDir())
	sess := NewSession("field-a", existingPaths(t), "")
	sess.PollInterval = "soon"

	_, err := sess.WatchConfig(config.NewConfig())

	assert.ErrorContains(t, err, "poll_interval")
}

func TestSession_ToInfo(t *testing.T) {
	paths := existingPaths(t)
	sess := NewSession("field-a", paths, "")
	sess.Stats.Runs = 4

	info := sess.ToInfo()

	assert.Equal(t, "field-a", info.Name)
	assert.Equal(t, 4, info.Runs)
	assert.True(t, info.Valid)

	require.NoError(t, os.Remove(paths.BaseRaster))
	assert.False(t, sess.ToInfo().Valid)
}

func TestValidateSessionName(t *testing.T) {
	for _, name := range []string{"a", "field-a", "Field_2024", "x1"} {
		assert.NoError(t, ValidateSessionName(name), name)
	}
	for _, name := range []string{"", "has space", "../up", "dot.name", string(make([]byte, 65))} {
		assert.Error(t, ValidateSessionName(name), "%q", name)
	}
}

func TestSaveLoadSession_RoundTripsAndIsAtomic(t *testing.T) {
	// Given: a profile in a new directory
	dir := filepath.Join(t.TempDir(), "field-a")
	sess := NewSession("field-a", testPaths("/data"), dir)
	sess.Strategy = "events"

	// When: saving and loading it
	require.NoError(t, SaveSession(sess))
	loaded, err := LoadSession(dir)

	// Then: fields survive and no temp file is left behind
	require.NoError(t, err)
	assert.Equal(t, "events", loaded.Strategy)
	assert.Equal(t, sess.Paths(), loaded.Paths())
	assert.Equal(t, dir, loaded.SessionDir)
	assert.NoFileExists(t, filepath.Join(dir, sessionFileName+".tmp"))
}

func TestLoadSession_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSession(dir)
	assert.ErrorContains(t, err, "not found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, sessionFileName), []byte("{broken"), 0644))
	_, err = LoadSession(dir)
	assert.ErrorContains(t, err, "failed to parse")
}
