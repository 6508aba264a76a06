package ports_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// mockRepository is a map-backed Repository used to exercise the contract suite itself.
type mockRepository struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockRepository() *mockRepository {
	return &mockRepository{data: make(map[string][]byte)}
}

func (m *mockRepository) Save(ctx context.Context, id string, v *domain.Deliverable) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = data
	return nil
}

func (m *mockRepository) Load(ctx context.Context, id string) (*domain.Deliverable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[id]
	if !ok {
		return nil, &domain.NotFoundError{EntityType: "Deliverable", ID: id}
	}
	var d domain.Deliverable
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *mockRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *mockRepository) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestRepositoryContract_Mock(t *testing.T) {
	ports.RunRepositoryContract[domain.Deliverable](t, newMockRepository(), func() (string, *domain.Deliverable) {
		d := domain.NewDeliverable("PKG-001", "Pump", "/ws/pump")
		return d.ID.String(), &d
	})
}
