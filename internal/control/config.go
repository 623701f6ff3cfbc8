// Package control lets other processes talk to a running watch session.
//
// A session listens on a unix socket for JSON-RPC 2.0 requests (ping, status,
// stop) and records its process ID in a PID file. The `status` and `stop`
// commands are clients of this socket.
package control

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
)

// Config holds the control plane settings.
type Config struct {
	// SocketPath is the unix socket a session listens on.
	// Default: ~/.mosaicwatch/mosaicwatch.sock
	SocketPath string

	// PIDPath records the running session's process ID.
	// Default: ~/.mosaicwatch/mosaicwatch.pid
	PIDPath string

	// Timeout bounds a single request, including a waiting stop.
	// Default: 30s
	Timeout time.Duration
}

// DefaultConfig returns the default control settings.
func DefaultConfig() Config {
	dir := config.DataDir()
	return Config{
		SocketPath: filepath.Join(dir, "mosaicwatch.sock"),
		PIDPath:    filepath.Join(dir, "mosaicwatch.pid"),
		Timeout:    30 * time.Second,
	}
}

// FromConfig builds a Config from the control section, filling defaults.
func FromConfig(c config.ControlConfig) Config {
	cfg := DefaultConfig()
	if c.SocketPath != "" {
		cfg.SocketPath = c.SocketPath
	}
	if c.PIDPath != "" {
		cfg.PIDPath = c.PIDPath
	}
	return cfg
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// EnsureDir creates the directories of the socket and PID file.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if pidDir := filepath.Dir(c.PIDPath); pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0755); err != nil {
			return fmt.Errorf("failed to create PID directory: %w", err)
		}
	}
	return nil
}
