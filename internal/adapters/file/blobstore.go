package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// BlobStore implements ports.BlobStore as a sharded directory tree:
// <BasePath>/sha256/<first two hex chars>/<hex>.
type BlobStore struct {
	BasePath string
}

// NewBlobStore creates a BlobStore under basePath, defaulting to ".chirality/blobs".
func NewBlobStore(basePath string) *BlobStore {
	if basePath == "" {
		basePath = filepath.Join(".chirality", "blobs")
	}
	return &BlobStore{BasePath: basePath}
}

func (b *BlobStore) path(hash domain.ContentHash) (string, error) {
	if !hash.Valid() {
		return "", fmt.Errorf("%w: malformed content hash %q", ports.ErrStorage, hash)
	}
	hex := hash.Hex()
	return filepath.Join(b.BasePath, "sha256", hex[:2], hex), nil
}

func (b *BlobStore) Store(ctx context.Context, content []byte) (domain.ContentHash, error) {
	hash := domain.HashBytes(content)
	dest, err := b.path(hash)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(dest); err == nil {
		return hash, nil
	}
	if err := writeAtomic(filepath.Dir(dest), dest, content); err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}
	return hash, nil
}

func (b *BlobStore) Retrieve(ctx context.Context, hash domain.ContentHash) ([]byte, error) {
	p, err := b.path(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ports.ErrBlobNotFound, hash)
		}
		return nil, fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}
	return data, nil
}

func (b *BlobStore) Exists(ctx context.Context, hash domain.ContentHash) (bool, error) {
	p, err := b.path(hash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ports.ErrStorage, err)
}

func (b *BlobStore) Delete(ctx context.Context, hash domain.ContentHash) error {
	p, err := b.path(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ports.ErrStorage, err)
	}
	return nil
}
