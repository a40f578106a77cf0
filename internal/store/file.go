package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

// FileStore persists one JSON file per source id inside a directory.
//
// Reads fail soft: missing entries resolve to absent with no error, and
// malformed entries resolve to absent with a wrapped ErrStorageRead so the
// caller can log and move on. The store tolerates concurrent readers from
// other processes; the last writer wins.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileStore creates the backing directory when needed and returns a store
// rooted there.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("new file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("new file store: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{dir: dir, logger: logger}, nil
}

// Load reads and decodes the entry for id.
func (s *FileStore) Load(ctx context.Context, id newsfeed.SourceID) (newsfeed.SourceSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return newsfeed.SourceSnapshot{}, false, fmt.Errorf("load %s: %w", id, err)
	}

	data, err := os.ReadFile(s.entryPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newsfeed.SourceSnapshot{}, false, nil
		}
		return newsfeed.SourceSnapshot{}, false, fmt.Errorf("load %s: %w: %w", id, newsfeed.ErrStorageRead, err)
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		return newsfeed.SourceSnapshot{}, false, fmt.Errorf("load %s: %w: %w", id, newsfeed.ErrStorageRead, err)
	}

	return snap, true, nil
}

// Save writes the entry atomically via a temp file rename.
func (s *FileStore) Save(ctx context.Context, id newsfeed.SourceID, snap newsfeed.SourceSnapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}

	data, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("save %s: %w: %w", id, newsfeed.ErrStorageWrite, err)
	}

	path := s.entryPath(id)
	tmp, err := os.CreateTemp(s.dir, entryKey(id)+".*")
	if err != nil {
		return fmt.Errorf("save %s: %w: %w", id, newsfeed.ErrStorageWrite, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save %s: %w: %w", id, newsfeed.ErrStorageWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s: %w: %w", id, newsfeed.ErrStorageWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save %s: %w: %w", id, newsfeed.ErrStorageWrite, err)
	}

	return nil
}

// Delete removes the entry for id; absent entries are not an error.
func (s *FileStore) Delete(ctx context.Context, id newsfeed.SourceID) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	if err := os.Remove(s.entryPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w: %w", id, newsfeed.ErrStorageWrite, err)
	}

	return nil
}

func (s *FileStore) entryPath(id newsfeed.SourceID) string {
	return filepath.Join(s.dir, entryKey(id)+".json")
}
