// Package snapshot persists live room state in a local SQLite database so a
// restarted room rehydrates instead of starting from defaults.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/droplets-realm/api/internal/room"
)

// SQLiteStore implements room.SnapshotStore.
type SQLiteStore struct {
	db *sql.DB
}

// Open prepares the SQLite database at path and ensures the schema exists.
func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("snapshot path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS room_snapshots (
		room_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the last saved state for roomID.
func (s *SQLiteStore) Load(ctx context.Context, roomID string) (room.State, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM room_snapshots WHERE room_id = ?`, roomID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return room.State{}, false, nil
	}
	if err != nil {
		return room.State{}, false, fmt.Errorf("load snapshot %s: %w", roomID, err)
	}

	var state room.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return room.State{}, false, fmt.Errorf("decode snapshot %s: %w", roomID, err)
	}
	return state, true, nil
}

// Save replaces the stored state for roomID.
func (s *SQLiteStore) Save(ctx context.Context, roomID string, state room.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO room_snapshots (room_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		roomID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", roomID, err)
	}
	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
