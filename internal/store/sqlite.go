package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements LayerStore and HistoryStore.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	owned  bool
	closed bool
}

var (
	_ LayerStore   = (*SQLiteStore)(nil)
	_ HistoryStore = (*SQLiteStore)(nil)
)

// Open opens (creating if needed) the project database at path.
// An empty path opens an in-memory database.
func Open(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path
	}

	// IMPORTANT: Use modernc.org/sqlite driver (pure Go, no CGO)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer: the monitor loop and the CLI never write concurrently
	// within one process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.path = path
	s.owned = true

	slog.Debug("project_store_opened", slog.String("path", path))
	return s, nil
}

// New wraps an existing connection and creates the schema. The caller keeps
// ownership of db.
func New(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := InitSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// InitSchema creates the project tables if they don't exist.
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS layers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source TEXT NOT NULL,
		kind TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		bands INTEGER NOT NULL DEFAULT 0,
		session_id TEXT NOT NULL DEFAULT '',
		added_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		watched_dir TEXT NOT NULL,
		base_raster TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL,
		strategy TEXT NOT NULL,
		policy TEXT NOT NULL,
		state TEXT NOT NULL,
		stop_reason TEXT NOT NULL DEFAULT '',
		batches INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		stopped_at TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);

	CREATE TABLE IF NOT EXISTS merges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL DEFAULT '',
		policy TEXT NOT NULL,
		existing TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL,
		tiles TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_merges_session ON merges(session_id, id DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create project schema: %w", err)
	}
	return nil
}

// Path returns the database file path, empty for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

// SaveLayer inserts or replaces a layer.
func (s *SQLiteStore) SaveLayer(ctx context.Context, l LayerRecord) error {
	if l.AddedAt.IsZero() {
		l.AddedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO layers (id, name, source, kind, width, height, bands, session_id, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source,
			kind = excluded.kind,
			width = excluded.width,
			height = excluded.height,
			bands = excluded.bands,
			session_id = excluded.session_id
	`, l.ID, l.Name, l.Source, l.Kind, l.Width, l.Height, l.Bands, l.SessionID, formatTime(l.AddedAt))
	if err != nil {
		return fmt.Errorf("save layer %s: %w", l.ID, err)
	}
	return nil
}

// DeleteLayer removes a layer. Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) DeleteLayer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM layers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete layer %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLayers returns all layers in insertion order.
func (s *SQLiteStore) ListLayers(ctx context.Context) ([]LayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, source, kind, width, height, bands, session_id, added_at
		FROM layers
		ORDER BY added_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query layers: %w", err)
	}
	defer rows.Close()

	var layers []LayerRecord
	for rows.Next() {
		var l LayerRecord
		var added string
		if err := rows.Scan(&l.ID, &l.Name, &l.Source, &l.Kind, &l.Width, &l.Height, &l.Bands, &l.SessionID, &added); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		l.AddedAt = parseTime(added)
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

// RecordMerge appends a merge to the history and returns its id.
func (s *SQLiteStore) RecordMerge(ctx context.Context, m MergeRecord) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	tiles, err := json.Marshal(m.Tiles)
	if err != nil {
		return 0, fmt.Errorf("encode tiles: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO merges (session_id, policy, existing, output, tiles, duration_ms, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.SessionID, m.Policy, m.Existing, m.Output, string(tiles), m.Duration.Milliseconds(),
		string(m.Status), m.Error, formatTime(m.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert merge: %w", err)
	}
	return res.LastInsertId()
}

// ListMerges returns the newest merges first. An empty sessionID lists all
// sessions; limit <= 0 means no limit.
func (s *SQLiteStore) ListMerges(ctx context.Context, sessionID string, limit int) ([]MergeRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, policy, existing, output, tiles, duration_ms, status, error, created_at
		FROM merges
		WHERE ? = '' OR session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query merges: %w", err)
	}
	defer rows.Close()

	var merges []MergeRecord
	for rows.Next() {
		var m MergeRecord
		var tiles, status, created string
		var durationMS int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Policy, &m.Existing, &m.Output, &tiles,
			&durationMS, &status, &m.Error, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(tiles), &m.Tiles); err != nil {
			return nil, fmt.Errorf("decode tiles for merge %d: %w", m.ID, err)
		}
		m.Duration = time.Duration(durationMS) * time.Millisecond
		m.Status = MergeStatus(status)
		m.CreatedAt = parseTime(created)
		merges = append(merges, m)
	}
	return merges, rows.Err()
}

// SaveSession inserts or updates a session record.
func (s *SQLiteStore) SaveSession(ctx context.Context, r SessionRecord) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, watched_dir, base_raster, output, strategy, policy,
			state, stop_reason, batches, errors, started_at, stopped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			stop_reason = excluded.stop_reason,
			batches = excluded.batches,
			errors = excluded.errors,
			stopped_at = excluded.stopped_at
	`, r.ID, r.Name, r.WatchedDir, r.BaseRaster, r.Output, r.Strategy, r.Policy,
		r.State, r.StopReason, r.Batches, r.Errors, formatTime(r.StartedAt), formatTime(r.StoppedAt))
	if err != nil {
		return fmt.Errorf("save session %s: %w", r.ID, err)
	}
	return nil
}

// GetSession returns one session record or ErrNotFound.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, sessionSelect+` WHERE id = ?`, id)
	r, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListSessions returns sessions newest first; limit <= 0 means no limit.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, sessionSelect+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *r)
	}
	return sessions, rows.Err()
}

const sessionSelect = `
	SELECT id, name, watched_dir, base_raster, output, strategy, policy,
		state, stop_reason, batches, errors, started_at, stopped_at
	FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var r SessionRecord
	var started, stopped string
	err := row.Scan(&r.ID, &r.Name, &r.WatchedDir, &r.BaseRaster, &r.Output, &r.Strategy, &r.Policy,
		&r.State, &r.StopReason, &r.Batches, &r.Errors, &started, &stopped)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	r.StartedAt = parseTime(started)
	r.StoppedAt = parseTime(stopped)
	return &r, nil
}

// Close closes the database if Open created it. Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
