package logging

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultLogPath_UsesDataDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("MOSAICWATCH_HOME", home)

	path := DefaultLogPath()

	if path != filepath.Join(home, "logs", "mosaicwatch.log") {
		t.Errorf("unexpected log path: %s", path)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got: %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("unexpected rotation defaults: %d MB, %d files", cfg.MaxSizeMB, cfg.MaxFiles)
	}
	if cfg.Mirror != nil {
		t.Error("expected no mirror by default")
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 3})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("merged batch", "tiles", 3, "path", "/out/mosaic.tif")
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	content := string(data)
	for _, want := range []string{`"msg":"merged batch"`, `"tiles":3`, `"level":"DEBUG"`} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %s: %s", want, content)
		}
	}
}

func TestSetup_RespectsLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	cleanup()

	data, _ := os.ReadFile(logPath)
	if strings.Contains(string(data), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("warn message should be written")
	}
}

func TestSetup_MirrorGetsText(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	var mirror bytes.Buffer

	logger, cleanup, err := Setup(Config{Level: "info", FilePath: logPath, Mirror: &mirror})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.With("session", "s1").Info("tile detected", "path", "/in/a.tif")
	logger.Debug("not shown")
	cleanup()

	data, _ := os.ReadFile(logPath)
	if !strings.Contains(string(data), `"session":"s1"`) {
		t.Errorf("file should hold JSON with attrs: %s", data)
	}
	text := mirror.String()
	if !strings.Contains(text, "msg=\"tile detected\"") || !strings.Contains(text, "session=s1") {
		t.Errorf("mirror should hold logfmt text: %s", text)
	}
	if strings.Contains(text, "not shown") || strings.Contains(string(data), "not shown") {
		t.Error("debug record should be filtered everywhere")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"INFO":    "INFO",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
		"":        "INFO",
	}
	for in, want := range tests {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestRotatingWriter_RotatesAndCapsFiles(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rot.log")

	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	// Each chunk is just over half the limit, so every second write rotates.
	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 6; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	for _, name := range []string{"rot.log", "rot.log.1", "rot.log.2"} {
		if _, err := os.Stat(filepath.Join(filepath.Dir(logPath), name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("expected at most 2 rotated files")
	}
}

func TestTail_FiltersByLevelAndCount(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tail.log")
	var lines []string
	for i := 0; i < 5; i++ {
		lines = append(lines, fmt.Sprintf(`{"time":"2026-01-02T10:00:0%dZ","level":"INFO","msg":"poll %d"}`, i, i))
	}
	lines = append(lines, `{"time":"2026-01-02T10:00:09Z","level":"ERROR","msg":"merge failed","path":"/w/a.tif"}`)
	lines = append(lines, "not json")
	if err := os.WriteFile(logPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := Tail(logPath, 3, "info")
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].Msg != "merge failed" || entries[1].Attrs["path"] != "/w/a.tif" {
		t.Errorf("unexpected entry: %+v", entries[1])
	}
	if entries[2].Format() != "not json" {
		t.Errorf("raw lines should pass through, got %q", entries[2].Format())
	}

	errorsOnly, err := Tail(logPath, 0, "error")
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	// The raw line has no level and is kept.
	if len(errorsOnly) != 2 {
		t.Errorf("expected 2 entries at error level, got %d", len(errorsOnly))
	}
}

type syncBuffer struct {
	ch chan string
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.ch <- string(p)
	return len(p), nil
}

func TestFollow_StreamsNewLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "follow.log")
	if err := os.WriteFile(logPath, []byte(`{"level":"INFO","msg":"old"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{ch: make(chan string, 10)}
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, logPath, "debug", out) }()

	// Give Follow time to seek to the end before appending.
	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"new tile"}` + "\n")
	_ = f.Close()

	select {
	case line := <-out.ch:
		if !strings.Contains(line, "new tile") || strings.Contains(line, "old") {
			t.Errorf("unexpected followed line: %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for followed line")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned error: %v", err)
	}
}
