package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

// SQLiteStore persists snapshots in a single-table SQLite database, one row
// per namespaced source key.
//
// The write connection is capped at one open conn so concurrent writers from
// this process serialize instead of tripping SQLITE_BUSY.
type SQLiteStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
	logger  *slog.Logger
}

// OpenSQLiteStore opens (and creates when needed) the database at dbPath.
func OpenSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	s := &SQLiteStore{readDB: readDB, writeDB: writeDB, logger: logger}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.writeDB.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			key          TEXT PRIMARY KEY,
			source_id    TEXT NOT NULL,
			body         TEXT NOT NULL,
			updated_time INTEGER NOT NULL,
			saved_at     DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_source ON snapshots(source_id);
	`)
	if err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}

	return nil
}

// Close releases both connections.
func (s *SQLiteStore) Close() error {
	var errs []error
	if s.readDB != nil {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}

	return errors.Join(errs...)
}

// Load reads and decodes the row for id.
func (s *SQLiteStore) Load(ctx context.Context, id newsfeed.SourceID) (newsfeed.SourceSnapshot, bool, error) {
	var body string
	err := s.readDB.QueryRowContext(ctx,
		`SELECT body FROM snapshots WHERE key = ?`, entryKey(id),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return newsfeed.SourceSnapshot{}, false, nil
	}
	if err != nil {
		return newsfeed.SourceSnapshot{}, false, fmt.Errorf("load %s: %w: %w", id, newsfeed.ErrStorageRead, err)
	}

	snap, err := decodeSnapshot([]byte(body))
	if err != nil {
		return newsfeed.SourceSnapshot{}, false, fmt.Errorf("load %s: %w: %w", id, newsfeed.ErrStorageRead, err)
	}

	return snap, true, nil
}

// Save upserts the row for id.
func (s *SQLiteStore) Save(ctx context.Context, id newsfeed.SourceID, snap newsfeed.SourceSnapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("save %s: %w: %w", id, newsfeed.ErrStorageWrite, err)
	}

	_, err = s.writeDB.ExecContext(ctx, `
		INSERT INTO snapshots (key, source_id, body, updated_time, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body = excluded.body,
			updated_time = excluded.updated_time,
			saved_at = excluded.saved_at
	`, entryKey(id), string(id), string(data), snap.UpdatedTime, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save %s: %w: %w", id, newsfeed.ErrStorageWrite, err)
	}

	return nil
}

// Delete removes the row for id; absent rows are not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id newsfeed.SourceID) error {
	if _, err := s.writeDB.ExecContext(ctx,
		`DELETE FROM snapshots WHERE key = ?`, entryKey(id),
	); err != nil {
		return fmt.Errorf("delete %s: %w: %w", id, newsfeed.ErrStorageWrite, err)
	}

	return nil
}
