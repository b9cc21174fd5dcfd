// Package checkpoint persists per-stage pipeline state snapshots to
// SQLite so interrupted runs can be inspected or replayed.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Snapshot is one saved state record.
type Snapshot struct {
	RunID   string
	Stage   string
	State   []byte
	SavedAt time.Time
}

// Store saves and loads pipeline state snapshots. It is safe for
// concurrent use; SQLite runs in WAL mode for concurrent reads.
type Store struct {
	conn *sql.DB
	path string
}

// DefaultPath returns the checkpoint database path under XDG data.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "flowweaver", "checkpoints.db")
}

// Open opens (or creates) the checkpoint database at the given path,
// creating parent directories and the schema as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	run_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	state BLOB NOT NULL,
	saved_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_run_id ON checkpoints(run_id);
`

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Save upserts the snapshot for a (run, stage) pair.
func (s *Store) Save(ctx context.Context, runID, stage string, snapshot []byte) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, stage, state, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, stage) DO UPDATE SET
			state = excluded.state,
			saved_at = excluded.saved_at
	`, runID, stage, snapshot, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save checkpoint %s/%s: %w", runID, stage, err)
	}
	return nil
}

// Load returns the snapshot for a (run, stage) pair, or sql.ErrNoRows
// if none was saved.
func (s *Store) Load(ctx context.Context, runID, stage string) (Snapshot, error) {
	var snap Snapshot
	var savedAt string

	row := s.conn.QueryRowContext(ctx, `
		SELECT run_id, stage, state, saved_at
		FROM checkpoints WHERE run_id = ? AND stage = ?
	`, runID, stage)
	if err := row.Scan(&snap.RunID, &snap.Stage, &snap.State, &savedAt); err != nil {
		return Snapshot{}, fmt.Errorf("load checkpoint %s/%s: %w", runID, stage, err)
	}

	ts, err := time.Parse(time.RFC3339, savedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse checkpoint timestamp: %w", err)
	}
	snap.SavedAt = ts
	return snap, nil
}

// List returns all snapshots for a run, ordered by save time.
func (s *Store) List(ctx context.Context, runID string) ([]Snapshot, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT run_id, stage, state, saved_at
		FROM checkpoints WHERE run_id = ? ORDER BY saved_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for %s: %w", runID, err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var snap Snapshot
		var savedAt string
		if err := rows.Scan(&snap.RunID, &snap.Stage, &snap.State, &savedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, savedAt); err == nil {
			snap.SavedAt = ts
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Purge deletes checkpoints saved before the cutoff. Returns the
// number of rows deleted.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(time.RFC3339)

	result, err := s.conn.ExecContext(ctx, `DELETE FROM checkpoints WHERE saved_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge checkpoints: %w", err)
	}
	return result.RowsAffected()
}
