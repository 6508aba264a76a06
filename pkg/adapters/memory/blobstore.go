package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// BlobStore implements ports.BlobStore in memory.
type BlobStore struct {
	blobs map[domain.ContentHash][]byte
	mu    sync.RWMutex
}

// NewBlobStore creates an empty blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[domain.ContentHash][]byte)}
}

func (b *BlobStore) Store(ctx context.Context, content []byte) (domain.ContentHash, error) {
	hash := domain.HashBytes(content)

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blobs[hash]; !ok {
		b.blobs[hash] = bytes.Clone(content)
	}
	return hash, nil
}

func (b *BlobStore) Retrieve(ctx context.Context, hash domain.ContentHash) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrBlobNotFound, hash)
	}
	return bytes.Clone(data), nil
}

func (b *BlobStore) Exists(ctx context.Context, hash domain.ContentHash) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blobs[hash]
	return ok, nil
}

func (b *BlobStore) Delete(ctx context.Context, hash domain.ContentHash) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, hash)
	return nil
}
