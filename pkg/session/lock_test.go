package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// nopStore satisfies the repository without keeping anything.
type nopStore struct{}

func (nopStore) Save(ctx context.Context, id string, v *domain.AgentSession) error { return nil }
func (nopStore) Load(ctx context.Context, id string) (*domain.AgentSession, error) {
	return nil, &domain.NotFoundError{EntityType: "AgentSession", ID: id}
}
func (nopStore) Delete(ctx context.Context, id string) error { return nil }
func (nopStore) List(ctx context.Context) ([]string, error)  { return nil, nil }

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(nopStore{})
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		key := fmt.Sprintf("DEL-%05d", i)
		_ = mgr.WithLock(ctx, key, func(context.Context) error { return nil })
		_ = mgr.Delete(ctx, domain.SessionID(key))
	}

	if lockCount := len(mgr.locks); lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory", lockCount)
	}
}
