package project

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
	"github.com/Aman-CERP/mosaicwatch/internal/raster/rastertest"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
)

func newPresenter(t *testing.T, p *Project) *Presenter {
	t.Helper()
	loop := NewEventLoop()
	t.Cleanup(loop.Close)
	return NewPresenter(p, loop, PresenterOptions{})
}

func writeRaster(t *testing.T, name string) string {
	t.Helper()
	return rastertest.Write(t, filepath.Join(t.TempDir(), name), rastertest.Spec{Width: 4, Height: 3, Bands: 3, Value: 7})
}

func TestLoadRasterLayer(t *testing.T) {
	path := writeRaster(t, "mosaic.tif")

	l, err := LoadRasterLayer(path, "")

	require.NoError(t, err)
	assert.Equal(t, "mosaic.tif", l.Name)
	assert.Equal(t, KindRaster, l.Kind)
	assert.Equal(t, 4, l.Width)
	assert.Equal(t, 3, l.Height)
	assert.Equal(t, 3, l.Bands)
}

func TestLoadRasterLayer_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.tif")
	require.NoError(t, os.WriteFile(path, []byte("not a tiff"), 0o644))

	_, err := LoadRasterLayer(path, "x")

	require.Error(t, err)
	assert.Equal(t, mwerrors.CategoryLayer, mwerrors.GetCategory(err))
	e, ok := mwerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, path, e.Path())
}

func TestProject_AddRemoveAndLayersByType(t *testing.T) {
	// Given: an empty project
	p := New(Options{})
	ctx := context.Background()

	// When: two layers are added and one removed
	a, err := p.AddLayer(ctx, Layer{Name: "a", Source: "/d/a.tif"})
	require.NoError(t, err)
	b, err := p.AddLayer(ctx, Layer{Name: "b", Source: "/d/b.tif", Kind: "vector"})
	require.NoError(t, err)
	require.NoError(t, p.RemoveLayer(ctx, a.ID))

	// Then: only the second remains, and it is not a raster
	assert.NotEmpty(t, a.ID)
	assert.Len(t, p.Layers(), 1)
	assert.Empty(t, p.LayersByType(KindRaster))
	got, ok := p.Layer(b.ID)
	assert.True(t, ok)
	assert.Equal(t, "b", got.Name)
}

func TestProject_RemoveMissingLayer(t *testing.T) {
	p := New(Options{})

	err := p.RemoveLayer(context.Background(), "nope")

	assert.Equal(t, mwerrors.ErrCodeLayerNotFound, mwerrors.GetCode(err))
}

func TestProject_AddLayer_RejectsDuplicateIDAndEmptySource(t *testing.T) {
	p := New(Options{})
	ctx := context.Background()

	_, err := p.AddLayer(ctx, Layer{ID: "x", Source: "/d/x.tif"})
	require.NoError(t, err)
	_, err = p.AddLayer(ctx, Layer{ID: "x", Source: "/d/y.tif"})
	assert.Error(t, err)
	_, err = p.AddLayer(ctx, Layer{Name: "nameless"})
	assert.Error(t, err)
}

func TestProject_OnChange(t *testing.T) {
	p := New(Options{})
	var snapshots [][]Layer
	p.OnChange(func(ls []Layer) { snapshots = append(snapshots, ls) })

	l, err := p.AddLayer(context.Background(), Layer{Source: "/d/a.tif"})
	require.NoError(t, err)
	require.NoError(t, p.RemoveLayer(context.Background(), l.ID))

	require.Len(t, snapshots, 2)
	assert.Len(t, snapshots[0], 1)
	assert.Empty(t, snapshots[1])
}

func TestProject_WritesThroughToStore(t *testing.T) {
	// Given: a project backed by a SQLite store
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "project.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s, err := store.New(db)
	require.NoError(t, err)
	ctx := context.Background()

	p := New(Options{Store: s, SessionID: "sess-1"})
	l, err := p.AddLayer(ctx, Layer{Name: "m", Source: "/d/m.tif", Width: 2, Height: 2, Bands: 1})
	require.NoError(t, err)

	// When: a second project loads from the same store
	reloaded := New(Options{Store: s})
	require.NoError(t, reloaded.Load(ctx))

	// Then: it sees the layer, and removal is persisted too
	require.Len(t, reloaded.Layers(), 1)
	assert.Equal(t, l.ID, reloaded.Layers()[0].ID)
	records, err := s.ListLayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", records[0].SessionID)

	require.NoError(t, p.RemoveLayer(ctx, l.ID))
	records, err = s.ListLayers(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPresenter_SwapTwice_LeavesOneLayer(t *testing.T) {
	// Given: a presenter over an empty project
	p := New(Options{})
	pr := newPresenter(t, p)
	ctx := context.Background()
	first := writeRaster(t, "first.tif")
	second := writeRaster(t, "second.tif")

	// When: swapping twice
	require.NoError(t, pr.Swap(ctx, first))
	require.NoError(t, pr.Swap(ctx, second))

	// Then: exactly one layer remains and it shows the second path
	layers := p.Layers()
	require.Len(t, layers, 1)
	assert.Equal(t, second, layers[0].Source)
	assert.Equal(t, DefaultLayerName, layers[0].Name)

	ref, ok, err := pr.Active(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, layers[0].ID, ref.ID)
}

func TestPresenter_Swap_KeepsUnrelatedLayers(t *testing.T) {
	p := New(Options{})
	ctx := context.Background()
	_, err := p.AddLayer(ctx, Layer{Name: "basemap", Source: "/d/osm.tif"})
	require.NoError(t, err)
	pr := newPresenter(t, p)

	require.NoError(t, pr.Swap(ctx, writeRaster(t, "a.tif")))
	require.NoError(t, pr.Swap(ctx, writeRaster(t, "b.tif")))

	assert.Len(t, p.Layers(), 2)
	assert.Equal(t, "basemap", p.Layers()[0].Name)
}

func TestPresenter_Swap_InvalidRaster_LeavesNoMosaicLayer(t *testing.T) {
	// Given: a presenter showing a valid mosaic
	p := New(Options{})
	pr := newPresenter(t, p)
	ctx := context.Background()
	require.NoError(t, pr.Swap(ctx, writeRaster(t, "good.tif")))

	// When: swapping to a file that is not a raster
	bad := filepath.Join(t.TempDir(), "bad.tif")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))
	err := pr.Swap(ctx, bad)

	// Then: a layer error is returned and no mosaic layer remains
	require.Error(t, err)
	assert.Equal(t, mwerrors.CategoryLayer, mwerrors.GetCategory(err))
	assert.Empty(t, p.Layers())
	_, ok, err := pr.Active(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPresenter_Swap_RemovalFailureIsBestEffort(t *testing.T) {
	// Given: the active layer was removed behind the presenter's back
	p := New(Options{})
	pr := newPresenter(t, p)
	ctx := context.Background()
	require.NoError(t, pr.Swap(ctx, writeRaster(t, "a.tif")))
	require.NoError(t, p.RemoveLayer(ctx, p.Layers()[0].ID))

	// When: swapping again
	err := pr.Swap(ctx, writeRaster(t, "b.tif"))

	// Then: the new layer is still added
	require.NoError(t, err)
	assert.Len(t, p.Layers(), 1)
}

func TestPresenter_Adopt(t *testing.T) {
	p := New(Options{})
	ctx := context.Background()
	old, err := p.AddLayer(ctx, Layer{Name: DefaultLayerName, Source: "/d/previous.tif"})
	require.NoError(t, err)
	pr := newPresenter(t, p)

	require.NoError(t, pr.Adopt(ctx, old.ID))
	require.NoError(t, pr.Swap(ctx, writeRaster(t, "next.tif")))

	require.Len(t, p.Layers(), 1)
	assert.NotEqual(t, old.ID, p.Layers()[0].ID)
	assert.Error(t, pr.Adopt(ctx, "missing"))
}

func TestPresenter_AdoptLatest_RemovesStaleMosaics(t *testing.T) {
	// Given: two mosaic layers left by earlier runs and an unrelated layer
	p := New(Options{})
	ctx := context.Background()
	now := time.Now()
	older, err := p.AddLayer(ctx, Layer{Name: DefaultLayerName, Source: "/d/first.tif", AddedAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	newer, err := p.AddLayer(ctx, Layer{Name: DefaultLayerName, Source: "/d/tile_001.tif", AddedAt: now})
	require.NoError(t, err)
	other, err := p.AddLayer(ctx, Layer{Name: "basemap", Source: "/d/base.tif"})
	require.NoError(t, err)
	pr := newPresenter(t, p)

	// When: adopting
	ref, ok, err := pr.AdoptLatest(ctx)

	// Then: the newest mosaic is active and the older one is gone
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newer.ID, ref.ID)
	_, found := p.Layer(older.ID)
	assert.False(t, found)
	_, found = p.Layer(other.ID)
	assert.True(t, found)

	// And: the next swap replaces the adopted layer
	require.NoError(t, pr.Swap(ctx, writeRaster(t, "next.tif")))
	mosaics := 0
	for _, l := range p.Layers() {
		if l.Name == DefaultLayerName {
			mosaics++
		}
	}
	assert.Equal(t, 1, mosaics)
	assert.Len(t, p.Layers(), 2)
}

func TestPresenter_AdoptLatest_Empty(t *testing.T) {
	pr := newPresenter(t, New(Options{}))

	_, ok, err := pr.AdoptLatest(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPresenter_MutatesOnlyOnDispatcher(t *testing.T) {
	// Given: a dispatcher that records calls
	p := New(Options{})
	rec := &recordingDispatcher{}
	pr := NewPresenter(p, rec, PresenterOptions{
		Load: func(path, name string) (*Layer, error) {
			return &Layer{Name: name, Source: path}, nil
		},
	})

	// When: swapping
	require.NoError(t, pr.Swap(context.Background(), "/d/m.tif"))

	// Then: the project change went through the dispatcher
	assert.Equal(t, 1, rec.calls)
	assert.Len(t, p.Layers(), 1)
}

type recordingDispatcher struct {
	calls int
}

func (r *recordingDispatcher) Do(_ context.Context, fn func()) error {
	r.calls++
	fn()
	return nil
}

func TestPresenter_DispatcherClosed(t *testing.T) {
	loop := NewEventLoop()
	loop.Close()
	pr := NewPresenter(New(Options{}), loop, PresenterOptions{})

	err := pr.Swap(context.Background(), writeRaster(t, "a.tif"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDispatcherClosed))
}

func TestEventLoop_RunsInOrder(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		require.NoError(t, loop.Do(context.Background(), func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestEventLoop_RecoversPanic(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	err := loop.Do(context.Background(), func() { panic("boom") })
	assert.ErrorContains(t, err, "boom")

	// The loop keeps running.
	assert.NoError(t, loop.Do(context.Background(), func() {}))
}

func TestEventLoop_ContextCancelledBeforePickup(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	block := make(chan struct{})
	go func() { _ = loop.Do(context.Background(), func() { <-block }) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := loop.Do(ctx, func() { ran = true })
	close(block)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestEventLoop_CloseIdempotent(t *testing.T) {
	loop := NewEventLoop()
	loop.Close()
	loop.Close()

	assert.ErrorIs(t, loop.Do(context.Background(), func() {}), ErrDispatcherClosed)
}
