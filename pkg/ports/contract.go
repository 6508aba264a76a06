package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRepositoryContract runs a suite of tests to verify that a Repository implementation
// adheres to the defined interface contract. newRecord returns a fresh record and its id.
func RunRepositoryContract[T any](t *testing.T, repo Repository[T], newRecord func() (string, *T)) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		id, record := newRecord()
		require.NoError(t, repo.Save(ctx, id, record), "Save should not return error")
		defer func() { _ = repo.Delete(ctx, id) }()

		loaded, err := repo.Load(ctx, id)
		require.NoError(t, err, "Load should not return error")
		assert.JSONEq(t, mustJSON(t, record), mustJSON(t, loaded))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := repo.Load(ctx, "non-existent-"+time.Now().Format("150405.000000"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		id, first := newRecord()
		_, second := newRecord()
		require.NoError(t, repo.Save(ctx, id, first))
		require.NoError(t, repo.Save(ctx, id, second))
		defer func() { _ = repo.Delete(ctx, id) }()

		loaded, err := repo.Load(ctx, id)
		require.NoError(t, err)
		assert.JSONEq(t, mustJSON(t, second), mustJSON(t, loaded))
	})

	t.Run("Delete", func(t *testing.T) {
		id, record := newRecord()
		require.NoError(t, repo.Save(ctx, id, record))

		require.NoError(t, repo.Delete(ctx, id), "Delete should not return error")
		_, err := repo.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, "Load after Delete should return ErrNotFound")

		assert.NoError(t, repo.Delete(ctx, id), "Deleting twice should not fail")
	})

	t.Run("List", func(t *testing.T) {
		id1, r1 := newRecord()
		id2, r2 := newRecord()
		require.NoError(t, repo.Save(ctx, id1, r1))
		require.NoError(t, repo.Save(ctx, id2, r2))
		defer func() {
			_ = repo.Delete(ctx, id1)
			_ = repo.Delete(ctx, id2)
		}()

		ids, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunBlobStoreContract verifies content-addressed behavior of a BlobStore.
func RunBlobStoreContract(t *testing.T, store BlobStore) {
	ctx := context.Background()
	content := []byte(fmt.Sprintf("blob contract %d", time.Now().UnixNano()))

	t.Run("Store and Retrieve", func(t *testing.T) {
		hash, err := store.Store(ctx, content)
		require.NoError(t, err)
		assert.Equal(t, domain.HashBytes(content), hash)

		again, err := store.Store(ctx, content)
		require.NoError(t, err)
		assert.Equal(t, hash, again, "storing identical content must yield the same hash")

		data, err := store.Retrieve(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, content, data)

		ok, err := store.Exists(ctx, hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Missing", func(t *testing.T) {
		missing := domain.HashBytes([]byte("never stored " + time.Now().String()))
		_, err := store.Retrieve(ctx, missing)
		assert.ErrorIs(t, err, ErrBlobNotFound)

		ok, err := store.Exists(ctx, missing)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		hash, err := store.Store(ctx, content)
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, hash))

		ok, err := store.Exists(ctx, hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// RunWorkspaceContract verifies a Workspace rooted at root (an empty, writable directory).
func RunWorkspaceContract(t *testing.T, ws Workspace, root string) {
	ctx := context.Background()

	t.Run("Write and Read", func(t *testing.T) {
		path := filepath.Join(root, "a", "b", "file.md")
		hash, err := ws.Write(ctx, path, []byte("# hello"))
		require.NoError(t, err)
		assert.Equal(t, domain.HashBytes([]byte("# hello")), hash)

		data, err := ws.Read(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "# hello", string(data))

		h, err := ws.Hash(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, hash, h)

		ok, err := ws.Exists(ctx, path)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Read Missing", func(t *testing.T) {
		_, err := ws.Read(ctx, filepath.Join(root, "missing.md"))
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("ListDir and Delete", func(t *testing.T) {
		dir := filepath.Join(root, "list")
		require.NoError(t, ws.CreateDirAll(ctx, dir))
		_, err := ws.Write(ctx, filepath.Join(dir, "b.md"), []byte("b"))
		require.NoError(t, err)
		_, err = ws.Write(ctx, filepath.Join(dir, "a.md"), []byte("a"))
		require.NoError(t, err)

		names, err := ws.ListDir(ctx, dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.md", "b.md"}, names)

		require.NoError(t, ws.Delete(ctx, filepath.Join(dir, "a.md")))
		ok, err := ws.Exists(ctx, filepath.Join(dir, "a.md"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ScaffoldDeliverable", func(t *testing.T) {
		dir := filepath.Join(root, "PKG-001_Pumps", "DEL-01.01_Pump")
		require.NoError(t, ws.ScaffoldDeliverable(ctx, dir))

		for _, dt := range append(append([]domain.DocumentType{}, domain.CoreDocumentTypes...), domain.MetadataDocumentTypes...) {
			ok, err := ws.Exists(ctx, filepath.Join(dir, dt.Filename()))
			require.NoError(t, err)
			assert.True(t, ok, dt.Filename())
		}

		_, err := ws.Write(ctx, filepath.Join(dir, "Datasheet.md"), []byte("kept"))
		require.NoError(t, err)
		require.NoError(t, ws.ScaffoldDeliverable(ctx, dir), "scaffolding twice must succeed")
		data, err := ws.Read(ctx, filepath.Join(dir, "Datasheet.md"))
		require.NoError(t, err)
		assert.Equal(t, "kept", string(data), "scaffold must not clobber existing files")
	})
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
