package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// Repository implements ports.Repository[T] in memory.
// Records are kept serialized so callers never share memory with the store.
// Safe for concurrent use.
type Repository[T any] struct {
	entity string
	data   map[string][]byte
	mu     sync.RWMutex
}

// NewRepository creates an empty repository. entity names the record kind in NotFound errors.
func NewRepository[T any](entity string) *Repository[T] {
	return &Repository[T]{
		entity: entity,
		data:   make(map[string][]byte),
	}
}

// Save persists a copy of v.
func (r *Repository[T]) Save(ctx context.Context, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", r.entity, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[id] = data
	return nil
}

// Load returns a fresh copy of the record.
func (r *Repository[T]) Load(ctx context.Context, id string) (*T, error) {
	r.mu.RLock()
	data, ok := r.data[id]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.NotFoundError{EntityType: r.entity, ID: id}
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", r.entity, err)
	}
	return &v, nil
}

// Delete removes the record.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
	return nil
}

// List returns the stored ids in lexical order.
func (r *Repository[T]) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.data))
	for id := range r.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
