package ports

import "context"

// Repository persists entity records of one kind, keyed by their identifier string.
// Implementations copy on Save and Load so callers never share memory with the store.
type Repository[T any] interface {
	// Save creates or replaces the record for id.
	Save(ctx context.Context, id string, v *T) error

	// Load retrieves the record for id.
	// Returns a *domain.NotFoundError (matching domain.ErrNotFound) if it does not exist.
	Load(ctx context.Context, id string) (*T, error)

	// Delete removes the record for id. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the identifiers of every stored record.
	List(ctx context.Context) ([]string, error)
}
