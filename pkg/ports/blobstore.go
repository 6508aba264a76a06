package ports

import (
	"context"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// BlobStore is a content-addressed store keyed by domain.ContentHash.
type BlobStore interface {
	// Store saves content and returns its hash. Storing identical content twice is a no-op.
	Store(ctx context.Context, content []byte) (domain.ContentHash, error)
	// Retrieve returns the content for hash, or an error wrapping ErrBlobNotFound.
	Retrieve(ctx context.Context, hash domain.ContentHash) ([]byte, error)
	Exists(ctx context.Context, hash domain.ContentHash) (bool, error)
	Delete(ctx context.Context, hash domain.ContentHash) error
}
