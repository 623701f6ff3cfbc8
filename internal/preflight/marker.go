package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/mosaicwatch/pkg/version"
)

// MarkerFile is the name of the file that records a passed doctor run.
const MarkerFile = ".preflight-passed"

// Marker is the content of the marker file.
type Marker struct {
	Version  string
	PassedAt time.Time
}

// NeedsCheck returns true if preflight checks should run before a session
// starts: no marker exists, or it was written by another build.
func NeedsCheck(dataDir string) bool {
	m, ok := ReadMarker(dataDir)
	return !ok || m.Version != version.Short()
}

// MarkPassed records that the checks passed with this build.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	content := version.Short() + " " + time.Now().UTC().Format(time.RFC3339)
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(content), 0o644)
}

// ReadMarker parses the marker file. ok is false when it is missing or
// malformed.
func ReadMarker(dataDir string) (Marker, bool) {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return Marker{}, false
	}
	v, ts, found := strings.Cut(strings.TrimSpace(string(content)), " ")
	if !found {
		return Marker{}, false
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return Marker{}, false
	}
	return Marker{Version: v, PassedAt: t}, true
}

// ClearMarker removes the marker file, forcing a re-check on next run.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}
