package mcp

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	"github.com/Aman-CERP/mosaicwatch/internal/control"
	"github.com/Aman-CERP/mosaicwatch/internal/raster"
	"github.com/Aman-CERP/mosaicwatch/internal/raster/rastertest"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
)

// fakeController implements Controller for testing.
type fakeController struct {
	running   bool
	status    *control.StatusResult
	statusErr error
	stopped   []bool
}

func (f *fakeController) IsRunning() bool { return f.running }

func (f *fakeController) Status(context.Context) (*control.StatusResult, error) {
	return f.status, f.statusErr
}

func (f *fakeController) Stop(_ context.Context, wait bool) (*control.StopResult, error) {
	f.stopped = append(f.stopped, wait)
	if wait {
		return &control.StopResult{State: "stopped", StopReason: "stopped"}, nil
	}
	return &control.StopResult{State: "watching"}, nil
}

func newHistory(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "project.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s, err := store.New(db)
	require.NoError(t, err)
	return s
}

func newServer(t *testing.T, opts Options) *Server {
	t.Helper()
	s, err := NewServer(opts)
	require.NoError(t, err)
	return s
}

// grid returns a north-up transform with 10-unit pixels whose top-left corner is (x, y).
func grid(x, y float64) raster.GeoTransform {
	return raster.GeoTransform{x, 10, 0, y, 0, -10}
}

func TestServer_New_Defaults(t *testing.T) {
	s := newServer(t, Options{})

	name, ver := s.Info()
	assert.Equal(t, "mosaicwatch", name)
	assert.NotEmpty(t, ver)
	assert.NotNil(t, s.MCPServer())
	assert.Equal(t, "warp", s.config.Merge.Policy)
}

func TestServer_New_InvalidPolicy(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Merge.Policy = "blend"

	_, err := NewServer(Options{Config: cfg})

	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	s := newServer(t, Options{})

	var names []string
	for _, tool := range s.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}

	assert.Equal(t, []string{"merge_rasters", "raster_info", "session_status", "stop_session"}, names)
}

func TestServer_CallTool_UnknownTool(t *testing.T) {
	s := newServer(t, Options{})

	_, err := s.CallTool(context.Background(), "search", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestServer_CallTool_BadArgumentType(t *testing.T) {
	s := newServer(t, Options{})

	_, err := s.CallTool(context.Background(), ToolMergeRasters, map[string]any{"tiles": "a.tif"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestServer_RasterInfo(t *testing.T) {
	// Given: a georeferenced 3-band raster
	path := rastertest.Write(t, filepath.Join(t.TempDir(), "scene.tif"), rastertest.Spec{
		Width: 4, Height: 2, Bands: 3, GeoTransform: grid(100, 200), Projection: "EPSG:32633",
	})
	s := newServer(t, Options{})

	// When: describing it
	md, err := s.CallTool(context.Background(), ToolRasterInfo, map[string]any{"path": path})

	// Then: size, bands, projection and bounds are reported
	require.NoError(t, err)
	assert.Contains(t, md, "## scene.tif")
	assert.Contains(t, md, "| Size | 4 x 2 |")
	assert.Contains(t, md, "| Bands | 3 (Byte) |")
	assert.Contains(t, md, "| Projection | EPSG:32633 |")
	assert.Contains(t, md, "| Bounds | 100, 180, 140, 200 |")
}

func TestServer_RasterInfo_Errors(t *testing.T) {
	s := newServer(t, Options{})
	ctx := context.Background()

	_, err := s.CallTool(ctx, ToolRasterInfo, nil)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)

	missing := filepath.Join(t.TempDir(), "missing.tif")
	_, err = s.CallTool(ctx, ToolRasterInfo, map[string]any{"path": missing})
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeFileNotFound, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, missing)
}

func TestServer_MergeRasters_RecordsHistory(t *testing.T) {
	// Given: a base raster and a tile to its right, and a history store
	dir := t.TempDir()
	base := rastertest.Write(t, filepath.Join(dir, "base.tif"), rastertest.Spec{Width: 2, Height: 2, GeoTransform: grid(0, 20), Value: 1})
	tile := rastertest.Write(t, filepath.Join(dir, "tile.tif"), rastertest.Spec{Width: 2, Height: 2, GeoTransform: grid(20, 20), Value: 2})
	out := filepath.Join(dir, "mosaic.tif")
	history := newHistory(t)
	s := newServer(t, Options{History: history})

	// When: merging through the tool
	md, err := s.CallTool(context.Background(), ToolMergeRasters, map[string]any{
		"existing": base,
		"tiles":    []any{tile},
		"output":   out,
	})

	// Then: the union mosaic is written and the merge is recorded
	require.NoError(t, err)
	assert.Contains(t, md, "## Merged 1 tile into mosaic.tif")
	assert.Contains(t, md, "**Policy:** warp")
	assert.Contains(t, md, "| Size | 4 x 2 |")

	records, err := history.ListMerges(context.Background(), SessionIDMCP, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, store.MergeStatusOK, records[0].Status)
	assert.Equal(t, []string{tile}, records[0].Tiles)
}

func TestServer_MergeRasters_PolicyOverride(t *testing.T) {
	dir := t.TempDir()
	base := rastertest.Write(t, filepath.Join(dir, "base.tif"), rastertest.Spec{Width: 2, Height: 2, Bands: 3})
	tile := rastertest.Write(t, filepath.Join(dir, "tile.tif"), rastertest.Spec{Width: 2, Height: 2, Bands: 3, Value: 9})
	output := filepath.Join(dir, "out.tif")
	s := newServer(t, Options{})

	md, err := s.CallTool(context.Background(), ToolMergeRasters, map[string]any{
		"existing": base,
		"tiles":    []any{tile},
		"output":   output,
		"policy":   "overwrite",
	})

	require.NoError(t, err)
	assert.Contains(t, md, "**Policy:** overwrite")
	_, bands := rastertest.Read(t, output)
	require.Len(t, bands, 3)
	assert.Equal(t, uint16(9), bands[2][0])
}

func TestServer_MergeRasters_OverwriteBandMismatch(t *testing.T) {
	dir := t.TempDir()
	base := rastertest.Write(t, filepath.Join(dir, "base.tif"), rastertest.Spec{Width: 2, Height: 2, Bands: 3})
	tile := rastertest.Write(t, filepath.Join(dir, "tile.tif"), rastertest.Spec{Width: 2, Height: 2, Bands: 1, Value: 9})
	s := newServer(t, Options{})

	_, err := s.CallTool(context.Background(), ToolMergeRasters, map[string]any{
		"existing": base,
		"tiles":    []any{tile},
		"output":   filepath.Join(dir, "out.tif"),
		"policy":   "overwrite",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_505_BAND_MISMATCH")
}

func TestServer_MergeRasters_Failures(t *testing.T) {
	dir := t.TempDir()
	base := rastertest.Write(t, filepath.Join(dir, "base.tif"), rastertest.Spec{Width: 2, Height: 2})
	history := newHistory(t)
	s := newServer(t, Options{History: history})
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		code int
	}{
		{"no tiles", map[string]any{"existing": base, "output": filepath.Join(dir, "o.tif")}, ErrCodeInvalidParams},
		{"no output", map[string]any{"existing": base, "tiles": []any{base}}, ErrCodeInvalidParams},
		{"bad policy", map[string]any{"existing": base, "tiles": []any{base}, "output": filepath.Join(dir, "o.tif"), "policy": "mean"}, ErrCodeInvalidParams},
		{"missing existing", map[string]any{"existing": filepath.Join(dir, "nope.tif"), "tiles": []any{base}, "output": filepath.Join(dir, "o.tif")}, ErrCodeFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CallTool(ctx, ToolMergeRasters, tt.args)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}

	// Only the merge that reached the engine is recorded.
	records, err := history.ListMerges(ctx, SessionIDMCP, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, store.MergeStatusFailed, records[0].Status)
}

func TestServer_SessionStatus_Live(t *testing.T) {
	// Given: a running session with one recorded merge
	history := newHistory(t)
	_, err := history.RecordMerge(context.Background(), store.MergeRecord{
		SessionID: "sess-1", Output: "/out/mosaic.tif", Tiles: []string{"/in/a.tif"},
		Status: store.MergeStatusOK, Duration: 1500 * time.Millisecond, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	ctrl := &fakeController{running: true, status: &control.StatusResult{
		PID: 42, Uptime: "5m0s",
		Session: control.SessionStatus{
			ID: "sess-1", Name: "survey", State: "watching", WatchedDir: "/in",
			Output: "/out/mosaic.tif", Batches: 1, Tiles: 1,
			Layers: []control.LayerStatus{{Name: "mosaic"}},
		},
	}}
	s := newServer(t, Options{Control: ctrl, History: history})

	// When: asking for status
	out, err := s.sessionStatus(context.Background(), SessionStatusInput{})
	require.NoError(t, err)
	md := FormatSessionStatus(out)

	// Then: the live session and its merge are reported
	assert.True(t, out.Running)
	assert.Equal(t, "live", out.Source)
	require.Len(t, out.Merges, 1)
	assert.Equal(t, int64(1500), out.Merges[0].DurationMS)
	assert.Contains(t, md, "## Session survey")
	assert.Contains(t, md, "watching (pid 42, up 5m0s)")
	assert.Contains(t, md, "| Layers | mosaic |")
	assert.Contains(t, md, "### Recent merges")
}

func TestServer_SessionStatus_FallsBackToHistory(t *testing.T) {
	// Given: nothing running, one recorded session
	history := newHistory(t)
	require.NoError(t, history.SaveSession(context.Background(), store.SessionRecord{
		ID: "old", WatchedDir: "/in", Output: "/out/m.tif", State: "stopped", StopReason: "idle",
		StartedAt: time.Now().Add(-time.Hour), StoppedAt: time.Now(),
	}))
	s := newServer(t, Options{Control: &fakeController{}, History: history})

	// When: calling the tool
	md, err := s.CallTool(context.Background(), ToolSessionStatus, nil)

	// Then: the recorded session is shown as not running
	require.NoError(t, err)
	assert.Contains(t, md, "## Session old")
	assert.Contains(t, md, "last recorded session, not running")
	assert.Contains(t, md, "| Stop reason | idle |")
}

func TestServer_SessionStatus_Nothing(t *testing.T) {
	s := newServer(t, Options{})

	md, err := s.CallTool(context.Background(), ToolSessionStatus, nil)

	require.NoError(t, err)
	assert.Contains(t, md, "No mosaicwatch session is running")
}

func TestServer_SessionStatus_NoSessionAttached(t *testing.T) {
	ctrl := &fakeController{running: true, statusErr: fmtNoSession()}
	s := newServer(t, Options{Control: ctrl})

	out, err := s.sessionStatus(context.Background(), SessionStatusInput{})

	require.NoError(t, err)
	assert.Equal(t, "none", out.Source)
}

func TestServer_SessionStatus_ControlError(t *testing.T) {
	ctrl := &fakeController{running: true, statusErr: errors.New("connection reset")}
	s := newServer(t, Options{Control: ctrl})

	_, err := s.CallTool(context.Background(), ToolSessionStatus, nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInternalError, mcpErr.Code)
}

func TestServer_StopSession(t *testing.T) {
	ctrl := &fakeController{running: true}
	s := newServer(t, Options{Control: ctrl})

	md, err := s.CallTool(context.Background(), ToolStopSession, map[string]any{"wait": true})

	require.NoError(t, err)
	assert.Equal(t, "Session stopped (stopped).", md)
	assert.Equal(t, []bool{true}, ctrl.stopped)
}

func TestServer_StopSession_NotRunning(t *testing.T) {
	for _, ctrl := range []Controller{nil, &fakeController{}} {
		s := newServer(t, Options{Control: ctrl})

		_, err := s.CallTool(context.Background(), ToolStopSession, nil)

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeNoSession, mcpErr.Code)
	}
}

func TestServer_Serve_UnknownTransport(t *testing.T) {
	s := newServer(t, Options{})

	err := s.Serve(context.Background(), "sse")

	assert.ErrorContains(t, err, "unknown transport")
}

func fmtNoSession() error {
	return &control.Error{Code: control.ErrCodeNoSession, Message: "no session"}
}
