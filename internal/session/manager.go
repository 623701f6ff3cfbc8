package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/mosaicwatch/internal/config"
	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
)

// lockFileName serialises profile creation and deletion across processes.
const lockFileName = ".lock"

// DefaultMaxSessions is the default maximum number of saved profiles.
const DefaultMaxSessions = 20

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// StoragePath is the directory profiles are stored in.
	// Default: ~/.mosaicwatch/sessions
	StoragePath string

	// MaxSessions caps the number of profiles. Default: DefaultMaxSessions.
	MaxSessions int
}

// ManagerConfigFrom builds a ManagerConfig from the sessions section.
func ManagerConfigFrom(c config.SessionsConfig) ManagerConfig {
	cfg := ManagerConfig{StoragePath: c.StoragePath, MaxSessions: c.MaxSessions}
	if cfg.StoragePath == "" {
		cfg.StoragePath = filepath.Join(config.DataDir(), "sessions")
	}
	return cfg
}

// Manager creates, lists and deletes profiles.
type Manager struct {
	storagePath string
	maxSessions int
}

// NewManager creates a manager, creating the storage directory.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.StoragePath == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session storage: %w", err)
	}

	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{storagePath: cfg.StoragePath, maxSessions: maxSessions}, nil
}

// Open returns the named profile, creating it for paths if it does not
// exist. An existing profile for a different watched folder or output is an
// error, so a name cannot silently be pointed somewhere else.
func (m *Manager) Open(name string, paths Paths) (*Session, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	sessionDir := m.SessionDir(name)
	if m.Exists(name) {
		sess, err := LoadSession(sessionDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing session: %w", err)
		}
		if sess.WatchedDir != paths.WatchedDir || sess.OutputPath != paths.OutputPath {
			return nil, mwerrors.New(mwerrors.ErrCodeInvalidInput,
				fmt.Sprintf("session '%s' already exists for %s -> %s", name, sess.WatchedDir, sess.OutputPath), nil).
				WithSuggestion("Pick another --name, or run 'mosaicwatch sessions delete " + name + "' first")
		}
		return sess, nil
	}

	count, err := m.sessionCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	if count >= m.maxSessions {
		return nil, mwerrors.New(mwerrors.ErrCodeInvalidInput,
			fmt.Sprintf("maximum %d sessions reached", m.maxSessions), nil).
			WithSuggestion("Run 'mosaicwatch sessions prune' or delete a session")
	}

	sess := NewSession(name, paths, sessionDir)
	if err := SaveSession(sess); err != nil {
		return nil, fmt.Errorf("failed to save new session: %w", err)
	}
	return sess, nil
}

// Save persists a profile and updates LastUsed.
func (m *Manager) Save(sess *Session) error {
	sess.UpdateLastUsed()
	return SaveSession(sess)
}

// List returns all profiles, most recently used first. Unreadable profiles
// are skipped.
func (m *Manager) List() ([]*SessionInfo, error) {
	entries, err := os.ReadDir(m.storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []*SessionInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	sessions := []*SessionInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sess, err := LoadSession(filepath.Join(m.storagePath, entry.Name()))
		if err != nil {
			slog.Debug("skipping unreadable session", slog.String("name", entry.Name()), slog.String("error", err.Error()))
			continue
		}
		sessions = append(sessions, sess.ToInfo())
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastUsed.After(sessions[j].LastUsed)
	})
	return sessions, nil
}

// Get loads a profile by name.
func (m *Manager) Get(name string) (*Session, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if !m.Exists(name) {
		return nil, notFound(name)
	}
	return LoadSession(m.SessionDir(name))
}

// Delete removes a profile.
func (m *Manager) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	unlock, err := m.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if !m.Exists(name) {
		return notFound(name)
	}
	if err := os.RemoveAll(m.SessionDir(name)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Prune removes profiles not used within olderThan and returns how many
// were deleted.
func (m *Manager) Prune(olderThan time.Duration) (int, error) {
	sessions, err := m.List()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, info := range sessions {
		if time.Since(info.LastUsed) <= olderThan {
			continue
		}
		if err := m.Delete(info.Name); err != nil {
			slog.Warn("failed to prune session", slog.String("name", info.Name), slog.String("error", err.Error()))
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Exists reports whether a profile with name exists.
func (m *Manager) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(m.SessionDir(name), sessionFileName))
	return err == nil
}

func (m *Manager) sessionCount() (int, error) {
	entries, err := os.ReadDir(m.storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() && m.Exists(entry.Name()) {
			count++
		}
	}
	return count, nil
}

// SessionDir returns the directory of a profile.
func (m *Manager) SessionDir(name string) string {
	return filepath.Join(m.storagePath, name)
}

// lock takes the storage-wide lock and returns its release function.
func (m *Manager) lock() (func(), error) {
	fl := flock.New(filepath.Join(m.storagePath, lockFileName))
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock session storage: %w", err)
	}
	return func() { _ = fl.Unlock() }, nil
}

func checkName(name string) error {
	if err := ValidateSessionName(name); err != nil {
		return mwerrors.New(mwerrors.ErrCodeInvalidInput, "invalid session name: "+err.Error(), err)
	}
	return nil
}

func notFound(name string) error {
	return mwerrors.New(mwerrors.ErrCodeInvalidInput, fmt.Sprintf("session '%s' not found", name), nil).
		WithSuggestion("Run 'mosaicwatch sessions list' to see saved sessions")
}
