// Package sqlite provides a SQLite-backed content-addressed blob store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS blobs (
	hash       TEXT PRIMARY KEY,
	content    BLOB NOT NULL,
	size       INTEGER NOT NULL,
	created_at INTEGER NOT NULL
)`

// BlobStore persists blobs in a single SQLite table keyed by content hash.
type BlobStore struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens (or creates) the database at path. ":memory:" is accepted for tests.
func Open(path string) (*BlobStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A :memory: database lives per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &BlobStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *BlobStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *BlobStore) Store(ctx context.Context, content []byte) (domain.ContentHash, error) {
	hash := domain.HashBytes(content)
	if content == nil {
		content = []byte{}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO blobs (hash, content, size, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		hash.String(), content, len(content), toMillis(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert blob: %v", ports.ErrStorage, err)
	}
	return hash, nil
}

func (s *BlobStore) Retrieve(ctx context.Context, hash domain.ContentHash) ([]byte, error) {
	var content []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT content FROM blobs WHERE hash = ?`, hash.String()).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ports.ErrBlobNotFound, hash)
		}
		return nil, fmt.Errorf("%w: select blob: %v", ports.ErrStorage, err)
	}
	return content, nil
}

func (s *BlobStore) Exists(ctx context.Context, hash domain.ContentHash) (bool, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(1) FROM blobs WHERE hash = ?`, hash.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: count blob: %v", ports.ErrStorage, err)
	}
	return n > 0, nil
}

func (s *BlobStore) Delete(ctx context.Context, hash domain.ContentHash) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM blobs WHERE hash = ?`, hash.String()); err != nil {
		return fmt.Errorf("%w: delete blob: %v", ports.ErrStorage, err)
	}
	return nil
}
