package file

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// Store implements ports.Repository[T] using the local filesystem.
// Each record is an indented JSON file in BasePath.
type Store[T any] struct {
	BasePath string
	entity   string
}

// New creates a Store for one entity kind under basePath.
// If basePath is empty, it defaults to ".chirality/<entity>".
func New[T any](entity, basePath string) *Store[T] {
	if basePath == "" {
		basePath = filepath.Join(".chirality", strings.ToLower(entity))
	}
	return &Store[T]{BasePath: basePath, entity: entity}
}

// fileName escapes id so typed identifiers ("del:...") are valid on every platform.
func fileName(id string) string {
	return url.QueryEscape(id) + ".json"
}

func (s *Store[T]) path(id string) string {
	return filepath.Join(s.BasePath, fileName(id))
}

// Save persists the record atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store[T]) Save(ctx context.Context, id string, v *T) error {
	if id == "" {
		return fmt.Errorf("%s id cannot be empty", s.entity)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", s.entity, err)
	}
	return writeAtomic(s.BasePath, s.path(id), data)
}

// Load retrieves the record.
func (s *Store[T]) Load(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, fmt.Errorf("%s id cannot be empty", s.entity)
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.NotFoundError{EntityType: s.entity, ID: id}
		}
		return nil, fmt.Errorf("failed to read %s file: %w", s.entity, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", s.entity, err)
	}
	return &v, nil
}

// Delete removes the record file.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%s id cannot be empty", s.entity)
	}

	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s file: %w", s.entity, err)
	}
	return nil
}

// List returns all stored ids, sorted.
func (s *Store[T]) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s records: %w", s.entity, err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		id, err := url.QueryUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// tempPrefix marks in-flight writes; watchers and listings ignore these names.
const tempPrefix = ".tmp-"

// writeAtomic replaces dest with data via a temp file in dir and a rename.
func writeAtomic(dir, dest string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
