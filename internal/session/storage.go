package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const (
	// sessionFileName is the profile file within each session directory.
	sessionFileName = "session.json"

	maxSessionNameLength = 64
)

var validSessionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSessionName checks that name is usable as a directory name.
// Valid names contain only letters, numbers, hyphens, and underscores.
func ValidateSessionName(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	if len(name) > maxSessionNameLength {
		return fmt.Errorf("session name too long (max %d chars)", maxSessionNameLength)
	}
	if !validSessionNamePattern.MatchString(name) {
		return fmt.Errorf("session name can only contain letters, numbers, hyphens, and underscores")
	}
	return nil
}

// SaveSession writes the profile atomically (temp file + rename), creating
// its directory.
func SaveSession(sess *Session) error {
	if err := os.MkdirAll(sess.SessionDir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	sessionPath := filepath.Join(sess.SessionDir, sessionFileName)
	tmpPath := sessionPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpPath, sessionPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save session file: %w", err)
	}
	return nil
}

// LoadSession reads the profile in sessionDir.
func LoadSession(sessionDir string) (*Session, error) {
	sessionPath := filepath.Join(sessionDir, sessionFileName)

	data, err := os.ReadFile(sessionPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s not found in %s", sessionFileName, sessionDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sessionFileName, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", sessionFileName, err)
	}
	sess.SessionDir = sessionDir
	return &sess, nil
}
