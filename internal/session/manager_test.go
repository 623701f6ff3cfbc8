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
)

func newTestManager(t *testing.T, max int) *Manager {
	t.Helper()
	mgr, err := NewManager(ManagerConfig{StoragePath: t.TempDir(), MaxSessions: max})
	require.NoError(t, err)
	return mgr
}

func testPaths(dir string) Paths {
	return Paths{
		WatchedDir: filepath.Join(dir, "incoming"),
		BaseRaster: filepath.Join(dir, "base.tif"),
		OutputPath: filepath.Join(dir, "out", "mosaic.tif"),
	}
}

func TestNewManager_Defaults(t *testing.T) {
	// Given: a storage path that does not exist yet
	storage := filepath.Join(t.TempDir(), "new", "sessions")

	// When: creating a manager without a limit
	mgr, err := NewManager(ManagerConfig{StoragePath: storage})

	// Then: the directory is created and the default limit applies
	require.NoError(t, err)
	assert.DirExists(t, storage)
	assert.Equal(t, DefaultMaxSessions, mgr.maxSessions)
}

func TestNewManager_RequiresStoragePath(t *testing.T) {
	_, err := NewManager(ManagerConfig{})

	assert.Error(t, err)
}

func TestManagerConfigFrom(t *testing.T) {
	t.Setenv("MOSAICWATCH_HOME", "/srv/mw")

	cfg := ManagerConfigFrom(config.SessionsConfig{MaxSessions: 3})

	assert.Equal(t, "/srv/mw/sessions", cfg.StoragePath)
	assert.Equal(t, 3, cfg.MaxSessions)
}

func TestManager_Open_NewSession(t *testing.T) {
	// Given: a manager
	mgr := newTestManager(t, 0)
	paths := testPaths("/data")

	// When: opening a new name
	sess, err := mgr.Open("field-a", paths)

	// Then: the profile is created on disk
	require.NoError(t, err)
	assert.Equal(t, "field-a", sess.Name)
	assert.Equal(t, paths, sess.Paths())
	assert.True(t, mgr.Exists("field-a"))
	assert.FileExists(t, filepath.Join(mgr.SessionDir("field-a"), sessionFileName))
}

func TestManager_Open_ExistingSamePaths(t *testing.T) {
	mgr := newTestManager(t, 0)
	first, err := mgr.Open("field-a", testPaths("/data"))
	require.NoError(t, err)

	again, err := mgr.Open("field-a", testPaths("/data"))

	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt.Unix(), again.CreatedAt.Unix())
}

func TestManager_Open_ExistingDifferentPaths(t *testing.T) {
	// Given: a profile for one folder
	mgr := newTestManager(t, 0)
	_, err := mgr.Open("field-a", testPaths("/data"))
	require.NoError(t, err)

	// When: opening the same name for another folder
	_, err = mgr.Open("field-a", testPaths("/elsewhere"))

	// Then: it is refused
	assert.ErrorContains(t, err, "already exists")
}

func TestManager_Open_InvalidName(t *testing.T) {
	mgr := newTestManager(t, 0)

	_, err := mgr.Open("../escape", testPaths("/data"))

	assert.ErrorContains(t, err, "invalid session name")
}

func TestManager_Open_MaxSessions(t *testing.T) {
	mgr := newTestManager(t, 2)
	_, err := mgr.Open("a", testPaths("/a"))
	require.NoError(t, err)
	_, err = mgr.Open("b", testPaths("/b"))
	require.NoError(t, err)

	_, err = mgr.Open("c", testPaths("/c"))

	assert.ErrorContains(t, err, "maximum 2 sessions")
}

func TestManager_Save_UpdatesLastUsed(t *testing.T) {
	mgr := newTestManager(t, 0)
	sess, err := mgr.Open("field-a", testPaths("/data"))
	require.NoError(t, err)
	sess.LastUsed = time.Now().Add(-time.Hour)

	require.NoError(t, mgr.Save(sess))

	loaded, err := mgr.Get("field-a")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), loaded.LastUsed, 5*time.Second)
}

func TestManager_List_MostRecentFirstAndValidity(t *testing.T) {
	// Given: two profiles, one whose paths exist
	mgr := newTestManager(t, 0)
	dir := t.TempDir()
	paths := testPaths(dir)
	require.NoError(t, os.MkdirAll(paths.WatchedDir, 0755))
	require.NoError(t, os.MkdirAll(filepath.Dir(paths.OutputPath), 0755))
	require.NoError(t, os.WriteFile(paths.BaseRaster, []byte("x"), 0644))

	old, err := mgr.Open("old", testPaths("/nonexistent"))
	require.NoError(t, err)
	old.LastUsed = time.Now().Add(-time.Hour)
	require.NoError(t, SaveSession(old))
	_, err = mgr.Open("recent", paths)
	require.NoError(t, err)

	// A stray directory without a profile is ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(mgr.storagePath, "junk"), 0755))

	// When: listing
	list, err := mgr.List()

	// Then: most recent first, validity reflects the paths
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "recent", list[0].Name)
	assert.True(t, list[0].Valid)
	assert.Equal(t, "old", list[1].Name)
	assert.False(t, list[1].Valid)
}

func TestManager_List_Empty(t *testing.T) {
	list, err := newTestManager(t, 0).List()

	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestManager_GetAndDelete(t *testing.T) {
	mgr := newTestManager(t, 0)
	_, err := mgr.Open("field-a", testPaths("/data"))
	require.NoError(t, err)

	sess, err := mgr.Get("field-a")
	require.NoError(t, err)
	assert.Equal(t, mgr.SessionDir("field-a"), sess.SessionDir)

	require.NoError(t, mgr.Delete("field-a"))
	assert.NoDirExists(t, mgr.SessionDir("field-a"))

	_, err = mgr.Get("field-a")
	assert.ErrorContains(t, err, "not found")
	assert.ErrorContains(t, mgr.Delete("field-a"), "not found")
}

func TestManager_Prune(t *testing.T) {
	// Given: one stale and one fresh profile
	mgr := newTestManager(t, 0)
	stale, err := mgr.Open("stale", testPaths("/a"))
	require.NoError(t, err)
	stale.LastUsed = time.Now().Add(-48 * time.Hour)
	require.NoError(t, SaveSession(stale))
	_, err = mgr.Open("fresh", testPaths("/b"))
	require.NoError(t, err)

	// When: pruning anything older than a day
	n, err := mgr.Prune(24 * time.Hour)

	// Then: only the stale profile is gone
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mgr.Exists("stale"))
	assert.True(t, mgr.Exists("fresh"))
}

func TestManager_Errors_CarrySuggestions(t *testing.T) {
	// Given: a manager holding one profile, at its limit
	mgr := newTestManager(t, 1)
	_, err := mgr.Open("field-a", testPaths("/data"))
	require.NoError(t, err)

	tests := []struct {
		name string
		err  error
	}{
		{"not found", mgr.Delete("missing")},
		{"limit", func() error { _, err := mgr.Open("field-b", testPaths("/data")); return err }()},
		{"conflict", func() error { _, err := mgr.Open("field-a", testPaths("/other")); return err }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Then: each failure is a validation error with a hint
			e, ok := mwerrors.As(tt.err)
			require.True(t, ok)
			assert.Equal(t, mwerrors.CategoryValidation, e.Category)
			assert.NotEmpty(t, e.Suggestion)
		})
	}
}

func TestManager_LockFileIsNotASession(t *testing.T) {
	// Given: a profile created under the storage lock
	mgr := newTestManager(t, 0)
	_, err := mgr.Open("field-a", testPaths("/data"))
	require.NoError(t, err)

	// When: listing
	list, err := mgr.List()

	// Then: the lock file is left out
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(mgr.storagePath, lockFileName))
	require.Len(t, list, 1)
	assert.Equal(t, "field-a", list[0].Name)
}
