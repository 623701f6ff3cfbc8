package cmd

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mosaicwatch/internal/store"
	"github.com/Aman-CERP/mosaicwatch/internal/ui"
)

func TestStatusCmd_NoSessions(t *testing.T) {
	setupCLIEnv(t)

	_, err := runCLI(t, "status")

	assert.ErrorIs(t, err, errNoSessions)
}

func TestStatusCmd_ShowsLastRecordedSession(t *testing.T) {
	// Given: a finished session and its layer in the project database
	home := setupCLIEnv(t)
	st, err := store.Open(filepath.Join(home, "project.db"))
	require.NoError(t, err)
	ctx := context.Background()
	started := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, st.SaveSession(ctx, store.SessionRecord{
		ID:         "older",
		WatchedDir: "/data/old",
		Output:     "/data/old/mosaic.tif",
		Strategy:   "polling",
		Policy:     "warp",
		State:      "stopped",
		StartedAt:  started.Add(-time.Hour),
	}))
	require.NoError(t, st.SaveSession(ctx, store.SessionRecord{
		ID:         "latest",
		Name:       "survey",
		WatchedDir: "/data/incoming",
		Output:     "/data/incoming/mosaic.tif",
		Strategy:   "events",
		Policy:     "overwrite",
		State:      "stopped",
		StopReason: "idle",
		Batches:    3,
		StartedAt:  started,
		StoppedAt:  started.Add(10 * time.Minute),
	}))
	require.NoError(t, st.SaveLayer(ctx, store.LayerRecord{
		ID: "layer-1", Name: "Merged Raster", Source: "/data/incoming/mosaic.tif",
		Kind: "raster", Width: 8, Height: 8, Bands: 1, SessionID: "latest", AddedAt: started,
	}))
	require.NoError(t, st.Close())

	// When: asking for status as JSON
	out, err := runCLI(t, "status", "--json")

	// Then: the newest session is shown with its layer
	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "latest", info.ID)
	assert.Equal(t, "survey", info.Name)
	assert.Equal(t, "idle", info.StopReason)
	assert.Equal(t, 3, info.Batches)
	assert.False(t, info.Running)
	require.Len(t, info.Layers, 1)
	assert.Equal(t, "Merged Raster", info.Layers[0].Name)
}

func TestLayersCmd_ListsStoredLayers(t *testing.T) {
	home := setupCLIEnv(t)
	st, err := store.Open(filepath.Join(home, "project.db"))
	require.NoError(t, err)
	require.NoError(t, st.SaveLayer(context.Background(), store.LayerRecord{
		ID: "0123456789abcdef", Name: "Merged Raster", Source: "/data/mosaic.tif",
		Kind: "raster", Width: 16, Height: 9, Bands: 3, AddedAt: time.Now(),
	}))
	require.NoError(t, st.Close())

	out, err := runCLI(t, "layers")

	require.NoError(t, err)
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "Merged Raster")
	assert.Contains(t, out, "16x9")
}

func TestStopCmd_NotRunning(t *testing.T) {
	setupCLIEnv(t)

	_, err := runCLI(t, "stop")

	assert.ErrorIs(t, err, errNotRunning)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "cli", shortID("cli"))
	assert.Equal(t, "3f2a9c1d", shortID("3f2a9c1d-0000-4000-8000-000000000000"))
}
