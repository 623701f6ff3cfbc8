package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mosaicwatch/internal/monitor"
	"github.com/Aman-CERP/mosaicwatch/internal/project"
)

// testSocketPath returns a short unique socket path; t.TempDir paths can
// exceed the unix socket length limit.
func testSocketPath(t *testing.T) string {
	t.Helper()
	p := filepath.Join("/tmp", fmt.Sprintf("mosaicwatch-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { os.Remove(p) })
	return p
}

type fakeHandler struct {
	mu      sync.Mutex
	status  SessionStatus
	stopped int
	waits   []bool
}

func (h *fakeHandler) Status() SessionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *fakeHandler) Stop(_ context.Context, wait bool) (SessionStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped++
	h.waits = append(h.waits, wait)
	h.status.State = "stopped"
	h.status.StopReason = "stopped"
	return h.status, nil
}

// startServer runs a server until the test ends and returns a client for it.
func startServer(t *testing.T, h Handler) (*Server, *Client) {
	t.Helper()
	cfg := Config{SocketPath: testSocketPath(t), PIDPath: filepath.Join(t.TempDir(), "pid"), Timeout: 2 * time.Second}
	srv := NewServer(cfg, nil)
	if h != nil {
		srv.SetHandler(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	return srv, client
}

func TestServer_Ping(t *testing.T) {
	_, client := startServer(t, nil)

	assert.NoError(t, client.Ping(context.Background()))
}

func TestServer_Status(t *testing.T) {
	// Given: a server attached to a watching session
	h := &fakeHandler{status: SessionStatus{ID: "s1", State: "watching", Batches: 3, WatchedDir: "/in"}}
	_, client := startServer(t, h)

	// When: asking for status
	res, err := client.Status(context.Background())

	// Then: the session and process are described
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), res.PID)
	assert.Equal(t, "s1", res.Session.ID)
	assert.Equal(t, "watching", res.Session.State)
	assert.Equal(t, 3, res.Session.Batches)
	assert.NotEmpty(t, res.Uptime)
}

func TestServer_Stop(t *testing.T) {
	// Given: a running session
	h := &fakeHandler{status: SessionStatus{ID: "s1", State: "watching"}}
	_, client := startServer(t, h)

	// When: stopping with wait
	res, err := client.Stop(context.Background(), true)

	// Then: the handler was asked to stop and the final state is returned
	require.NoError(t, err)
	assert.Equal(t, "stopped", res.State)
	assert.Equal(t, 1, h.stopped)
	assert.Equal(t, []bool{true}, h.waits)
}

func TestServer_NoSessionAttached(t *testing.T) {
	_, client := startServer(t, nil)

	_, err := client.Status(context.Background())

	require.Error(t, err)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeNoSession, rpcErr.Code)
}

func TestServer_UnknownMethodAndBadRequests(t *testing.T) {
	srv, _ := startServer(t, nil)

	tests := []struct {
		name     string
		payload  string
		wantCode int
	}{
		{"unknown method", `{"jsonrpc":"2.0","method":"explode","id":"1"}`, ErrCodeMethodNotFound},
		{"wrong version", `{"jsonrpc":"1.0","method":"ping","id":"2"}`, ErrCodeInvalidRequest},
		{"not json", `{{{`, ErrCodeParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := net.Dial("unix", srv.socketPath)
			require.NoError(t, err)
			defer conn.Close()

			_, err = conn.Write([]byte(tt.payload + "\n"))
			require.NoError(t, err)

			var resp Response
			require.NoError(t, json.NewDecoder(conn).Decode(&resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestServer_RefusesLiveSocket(t *testing.T) {
	// Given: a server already listening
	srv, _ := startServer(t, nil)

	// When: a second server tries the same socket
	second := NewServer(Config{SocketPath: srv.socketPath, Timeout: time.Second}, nil)
	err := second.ListenAndServe(context.Background())

	// Then: it refuses instead of stealing the socket
	assert.ErrorContains(t, err, "another session")
}

func TestServer_ReplacesStaleSocket(t *testing.T) {
	// Given: a socket file with nobody listening
	path := testSocketPath(t)
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	if ul, ok := l.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}
	require.NoError(t, l.Close())
	_, err = os.Stat(path)
	require.NoError(t, err)

	// When: a server starts on it
	srv := NewServer(Config{SocketPath: path, Timeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	// Then: it serves, and removes the socket on exit
	client := NewClient(Config{SocketPath: path, Timeout: time.Second})
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestServer_CloseBeforeListen(t *testing.T) {
	srv := NewServer(Config{SocketPath: testSocketPath(t), Timeout: time.Second}, nil)
	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())

	assert.NoError(t, srv.ListenAndServe(context.Background()))
}

func TestClient_NotRunning(t *testing.T) {
	client := NewClient(Config{SocketPath: testSocketPath(t), Timeout: 100 * time.Millisecond})

	assert.False(t, client.IsRunning())
	assert.ErrorContains(t, client.Ping(context.Background()), "failed to connect")
}

func TestLoopHandler(t *testing.T) {
	// Given: an idle loop with one presented layer
	loop := monitor.New(monitor.WatchConfig{Name: "field-a", WatchedDir: "/in", OutputPath: "/out/m.tif"},
		monitor.Deps{SessionID: "s1"})
	p := project.New(project.Options{})
	_, err := p.AddLayer(context.Background(), project.Layer{Name: "Merged Raster", Source: "/out/m.tif", Width: 2, Height: 2, Bands: 1})
	require.NoError(t, err)
	h := LoopHandler{Loop: loop, Project: p}

	// Then: status mirrors the loop and the layers
	st := h.Status()
	assert.Equal(t, "s1", st.ID)
	assert.Equal(t, "field-a", st.Name)
	assert.Equal(t, "idle", st.State)
	require.Len(t, st.Layers, 1)
	assert.Equal(t, "/out/m.tif", st.Layers[0].Source)

	// When: stopping and waiting
	st, err = h.Stop(context.Background(), true)

	// Then: the loop is stopped
	require.NoError(t, err)
	assert.Equal(t, "stopped", st.State)
	assert.Equal(t, "stopped", st.StopReason)
}

func TestPIDFile_WriteReadRelease(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "sub", "mosaicwatch.pid"))

	require.NoError(t, pf.Acquire())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, pf.IsRunning())

	require.NoError(t, pf.Release())
	_, err = pf.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
	assert.NoError(t, pf.Release())
}

func TestPIDFile_AcquireRefusesLiveProcess(t *testing.T) {
	// Given: a PID file naming our parent, which is alive
	path := filepath.Join(t.TempDir(), "mosaicwatch.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0644))
	pf := NewPIDFile(path)

	// When/Then: acquiring fails and release leaves the foreign file alone
	assert.ErrorIs(t, pf.Acquire(), ErrAlreadyRunning)
	require.NoError(t, pf.Release())
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestPIDFile_AcquireReplacesStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mosaicwatch.pid")
	// PIDs this large are not handed out on Linux.
	require.NoError(t, os.WriteFile(path, []byte("99999999\n"), 0644))
	pf := NewPIDFile(path)

	require.NoError(t, pf.Acquire())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mosaicwatch.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0644))

	_, err := NewPIDFile(path).Read()

	assert.ErrorContains(t, err, "invalid PID")
	assert.False(t, NewPIDFile(path).IsRunning())
}

func TestConfig_DefaultsAndValidate(t *testing.T) {
	t.Setenv("MOSAICWATCH_HOME", "/srv/mw")

	cfg := DefaultConfig()
	assert.Equal(t, "/srv/mw/mosaicwatch.sock", cfg.SocketPath)
	assert.Equal(t, "/srv/mw/mosaicwatch.pid", cfg.PIDPath)
	assert.NoError(t, cfg.Validate())

	cfg.Timeout = 0
	assert.Error(t, cfg.Validate())
	assert.Error(t, Config{PIDPath: "x", Timeout: time.Second}.Validate())
}

func TestConfig_EnsureDir(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{SocketPath: filepath.Join(dir, "a", "s.sock"), PIDPath: filepath.Join(dir, "b", "p.pid"), Timeout: time.Second}

	require.NoError(t, cfg.EnsureDir())

	assert.DirExists(t, filepath.Join(dir, "a"))
	assert.DirExists(t, filepath.Join(dir, "b"))
}
