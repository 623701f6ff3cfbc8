package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("tile"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestPollingDetector_ReturnsDifferenceAndIsIdempotent(t *testing.T) {
	// Given: a directory with two tiles
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	touch(t, filepath.Join(dir, "b.tif"), base)
	touch(t, filepath.Join(dir, "a.tif"), base.Add(time.Minute))

	d, err := NewPollingDetector(dir, Options{})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()
	ctx := context.Background()

	// When: detecting twice with no change in between
	first, err := d.DetectNew(ctx)
	require.NoError(t, err)
	second, err := d.DetectNew(ctx)
	require.NoError(t, err)

	// Then: the first call returns both ordered by mtime, the second nothing
	assert.Equal(t, []string{filepath.Join(dir, "b.tif"), filepath.Join(dir, "a.tif")}, first)
	assert.Empty(t, second)
	assert.Equal(t, 2, d.SeenCount())
}

func TestPollingDetector_OnlyNewFilesAfterFirstCall(t *testing.T) {
	// Given: a detector that has already seen one tile
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.tif"), time.Now().Add(-time.Hour))
	d, err := NewPollingDetector(dir, Options{})
	require.NoError(t, err)
	_, err = d.DetectNew(context.Background())
	require.NoError(t, err)

	// When: another tile arrives
	touch(t, filepath.Join(dir, "new.png"), time.Now())
	got, err := d.DetectNew(context.Background())

	// Then: only the new one is returned
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "new.png")}, got)
}

func TestPollingDetector_FiltersExtensionsAndExclusions(t *testing.T) {
	// Given: a mix of tiles, non-tiles, hidden files and the output mosaic
	dir := t.TempDir()
	now := time.Now()
	for _, name := range []string{
		"tile.TIF", "photo.JPG", "notes.txt", ".mosaic.tif.123.tmp",
		"upload.tif.part", "mosaic.tif", "mosaic.tfw", "mosaic.prj",
	} {
		touch(t, filepath.Join(dir, name), now)
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.tif"), 0o755))

	d, err := NewPollingDetector(dir, Options{
		Exclude:      []string{".*", "*.part"},
		ExcludePaths: []string{filepath.Join(dir, "mosaic.tif")},
	})
	require.NoError(t, err)

	// When: detecting
	got, err := d.DetectNew(context.Background())

	// Then: only recognised tiles remain, matched case-insensitively
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "tile.TIF"), filepath.Join(dir, "photo.JPG")}, got)
}

func TestPollingDetector_ExclusionMatchesWholeName(t *testing.T) {
	// Given: tiles sharing a stem with the output and the base raster
	dir := t.TempDir()
	now := time.Now()
	for _, name := range []string{
		"mosaic.tif", "mosaic.png", ".mosaic.tif.42.tmp", "mosaic.tif.aux.xml",
		"base.tif", "base.jpg",
	} {
		touch(t, filepath.Join(dir, name), now)
	}

	// When: detecting with no name patterns, so only the session's own files are excluded
	d, err := NewPollingDetector(dir, Options{
		Extensions:   []string{".tif", ".png", ".jpg", ".tmp", ".xml"},
		ExcludePaths: []string{filepath.Join(dir, "mosaic.tif"), filepath.Join(dir, "base.tif")},
	})
	require.NoError(t, err)
	got, err := d.DetectNew(context.Background())

	// Then: same-stem tiles with another extension are still tiles
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "mosaic.png"), filepath.Join(dir, "base.jpg")}, got)
}

func TestOwnedNames(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{"mosaic.tif", "mosaic.tif.aux.xml", "mosaic.prj", "mosaic.wld", "mosaic.tfw", "mosaic.tifw"},
		ownedNames("mosaic.tif"))
}

func TestPollingDetector_MarkSeen(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "base.tif"), time.Now())
	d, err := NewPollingDetector(dir, Options{})
	require.NoError(t, err)

	d.MarkSeen(filepath.Join(dir, "base.tif"))
	got, err := d.DetectNew(context.Background())

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPollingDetector_DirectoryGone_ReturnsWatchError(t *testing.T) {
	// Given: a detector on a directory that is then removed
	dir := filepath.Join(t.TempDir(), "incoming")
	require.NoError(t, os.Mkdir(dir, 0o755))
	d, err := NewPollingDetector(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, os.Remove(dir))

	// When: detecting
	_, err = d.DetectNew(context.Background())

	// Then: a watch error naming the directory is returned
	require.Error(t, err)
	assert.Equal(t, mwerrors.ErrCodeWatchDirGone, mwerrors.GetCode(err))
	assert.Equal(t, mwerrors.CategoryWatch, mwerrors.GetCategory(err))
	assert.Contains(t, err.Error(), "incoming")
}

func TestPollingDetector_CloseIsIdempotent(t *testing.T) {
	d, err := NewPollingDetector(t.TempDir(), Options{})
	require.NoError(t, err)

	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
	d.MarkSeen("/w/x.tif")

	got, err := d.DetectNew(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestPollingDetector_CancelledContext(t *testing.T) {
	d, err := NewPollingDetector(t.TempDir(), Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = d.DetectNew(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func waitForTiles(t *testing.T, d *EventDetector, want int) []string {
	t.Helper()
	var got []string
	deadline := time.After(3 * time.Second)
	for len(got) < want {
		select {
		case <-d.Notify():
			paths, err := d.DetectNew(context.Background())
			require.NoError(t, err)
			got = append(got, paths...)
		case <-deadline:
			t.Fatalf("timed out waiting for %d tiles, got %v", want, got)
		}
	}
	return got
}

func TestEventDetector_ReportsCreatedTiles(t *testing.T) {
	// Given: an event detector with a short debounce window
	dir := t.TempDir()
	d, err := NewEventDetector(dir, Options{DebounceWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	// When: a tile and a non-tile are written
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tile.tif"), []byte("x"), 0o644))

	// Then: only the tile is reported, once
	got := waitForTiles(t, d, 1)
	assert.Equal(t, []string{filepath.Join(dir, "tile.tif")}, got)

	again, err := d.DetectNew(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestEventDetector_IgnoresOutputMosaic(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "mosaic.tif")
	d, err := NewEventDetector(dir, Options{ExcludePaths: []string{out}})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	require.NoError(t, os.WriteFile(out, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tile.png"), []byte("x"), 0o644))

	got := waitForTiles(t, d, 1)
	assert.Equal(t, []string{filepath.Join(dir, "tile.png")}, got)
}

func TestEventDetector_DirectoryRemoved_ReturnsWatchError(t *testing.T) {
	// Given: an event detector on a directory
	dir := filepath.Join(t.TempDir(), "incoming")
	require.NoError(t, os.Mkdir(dir, 0o755))
	d, err := NewEventDetector(dir, Options{})
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	// When: the directory is removed
	require.NoError(t, os.Remove(dir))

	// Then: DetectNew reports the directory as gone
	_, err = d.DetectNew(context.Background())
	require.Error(t, err)
	assert.Equal(t, mwerrors.ErrCodeWatchDirGone, mwerrors.GetCode(err))
}

func TestEventDetector_MissingDirectory(t *testing.T) {
	_, err := NewEventDetector(filepath.Join(t.TempDir(), "missing"), Options{})

	require.Error(t, err)
	assert.Equal(t, mwerrors.CategoryWatch, mwerrors.GetCategory(err))
}

func TestEventDetector_CloseIsIdempotent(t *testing.T) {
	d, err := NewEventDetector(t.TempDir(), Options{})
	require.NoError(t, err)

	require.NoError(t, d.Close())
	assert.NoError(t, d.Close())
}

func TestNew_SelectsStrategy(t *testing.T) {
	dir := t.TempDir()

	polling, err := New(StrategyPolling, dir, Options{})
	require.NoError(t, err)
	defer func() { _ = polling.Close() }()
	assert.IsType(t, &PollingDetector{}, polling)

	events, err := New(StrategyEvents, dir, Options{})
	require.NoError(t, err)
	defer func() { _ = events.Close() }()
	_, ok := events.(Notifier)
	assert.True(t, ok, "event detector should expose notifications")

	auto, err := New(StrategyAuto, dir, Options{})
	require.NoError(t, err)
	defer func() { _ = auto.Close() }()
}

func TestNew_EventsOnMissingDirFails(t *testing.T) {
	_, err := New(StrategyEvents, filepath.Join(t.TempDir(), "nope"), Options{})
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"polling", StrategyPolling, false},
		{"", StrategyPolling, false},
		{"Events", StrategyEvents, false},
		{"fsnotify", StrategyEvents, false},
		{"auto", StrategyAuto, false},
		{"inotify2", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "WRITE", OpWrite.String())
	assert.Equal(t, "REMOVE", OpRemove.String())
	assert.Equal(t, "UNKNOWN", Operation(42).String())
}
