package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sgttomas/chirality-runtime/pkg/adapters/memory"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
	"github.com/sgttomas/chirality-runtime/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore simulates latency to provoke lost updates if locking is missing.
type slowStore struct {
	ports.Repository[domain.AgentSession]
}

func (s slowStore) Load(ctx context.Context, id string) (*domain.AgentSession, error) {
	time.Sleep(2 * time.Millisecond)
	return s.Repository.Load(ctx, id)
}

func (s slowStore) Save(ctx context.Context, id string, v *domain.AgentSession) error {
	time.Sleep(2 * time.Millisecond)
	return s.Repository.Save(ctx, id, v)
}

func newPersona() domain.AgentSession {
	return domain.NewPersonaSession("PREPARATION", domain.AgentManager,
		domain.PackageScope{PackageID: "PKG-001"}, domain.WriteNone{}, domain.HumanActor("alice"))
}

func TestManager_UpdatesAreSerialized(t *testing.T) {
	mgr := session.NewManager(slowStore{memory.NewRepository[domain.AgentSession]("AgentSession")})
	ctx := context.Background()

	s := newPersona()
	require.NoError(t, mgr.Create(ctx, &s))
	_, _, err := mgr.Transition(ctx, s.ID, domain.SessionActive)
	require.NoError(t, err)

	var wg sync.WaitGroup
	writers := 20
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Update(ctx, s.ID, func(s *domain.AgentSession) error {
				return s.AddOutput(domain.SessionOutput{Type: domain.OutputReport, Path: "/ws/r.md"})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loaded, err := mgr.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Outputs, writers, "every read-modify-write must be preserved")
}

func TestManager_ConcurrentTransitionsOnlyOneWins(t *testing.T) {
	mgr := session.NewManager(slowStore{memory.NewRepository[domain.AgentSession]("AgentSession")})
	ctx := context.Background()

	s := newPersona()
	require.NoError(t, mgr.Create(ctx, &s))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := mgr.Transition(ctx, s.ID, domain.SessionActive); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestManager_FailedUpdateIsNotSaved(t *testing.T) {
	mgr := session.NewManager(memory.NewRepository[domain.AgentSession]("AgentSession"))
	ctx := context.Background()

	s := domain.NewTaskSession("4_DOCUMENTS", domain.SessionBrief{TaskDefinition: "x"},
		domain.DeliverableScope{DeliverableID: "DEL-01.01"}, domain.WriteNone{}, domain.SystemActor())
	require.NoError(t, mgr.Create(ctx, &s))
	_, _, err := mgr.Transition(ctx, s.ID, domain.SessionActive)
	require.NoError(t, err)

	_, _, err = mgr.Transition(ctx, s.ID, domain.SessionPaused)
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	loaded, err := mgr.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, loaded.State)
}

func TestManager_CreateTwice(t *testing.T) {
	mgr := session.NewManager(memory.NewRepository[domain.AgentSession]("AgentSession"))
	ctx := context.Background()

	s := newPersona()
	require.NoError(t, mgr.Create(ctx, &s))
	assert.ErrorIs(t, mgr.Create(ctx, &s), domain.ErrPreconditionFailed)

	_, err := mgr.Load(ctx, "session:missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type failingLocker struct{}

func (failingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	return nil, errors.New("redis down")
}

func TestManager_DistributedLockFailure(t *testing.T) {
	mgr := session.NewManager(memory.NewRepository[domain.AgentSession]("AgentSession"), session.WithLocker(failingLocker{}))
	called := false
	err := mgr.WithLock(context.Background(), "DEL-01.01", func(context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestManager_DistributedLockReleased(t *testing.T) {
	locker := memory.NewLocker()
	mgr := session.NewManager(memory.NewRepository[domain.AgentSession]("AgentSession"),
		session.WithLocker(locker), session.WithLockTTL(time.Second))

	require.NoError(t, mgr.WithLock(context.Background(), "DEL-01.01", func(context.Context) error { return nil }))
	assert.False(t, locker.Held("DEL-01.01"))
}

func TestManager_DeleteIfChecksUnderLock(t *testing.T) {
	mgr := session.NewManager(memory.NewRepository[domain.AgentSession]("AgentSession"))
	ctx := context.Background()

	s := newPersona()
	require.NoError(t, mgr.Create(ctx, &s))
	_, from, err := mgr.Transition(ctx, s.ID, domain.SessionActive)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCreated, from)

	busy := errors.New("busy")
	notActive := func(s *domain.AgentSession) error {
		if s.State.IsActive() {
			return busy
		}
		return nil
	}
	assert.ErrorIs(t, mgr.DeleteIf(ctx, s.ID, notActive), busy)
	_, err = mgr.Load(ctx, s.ID)
	require.NoError(t, err)

	_, _, err = mgr.Transition(ctx, s.ID, domain.SessionCancelled)
	require.NoError(t, err)
	require.NoError(t, mgr.DeleteIf(ctx, s.ID, notActive))
	_, err = mgr.Load(ctx, s.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, mgr.DeleteIf(ctx, s.ID, notActive), domain.ErrNotFound)
}
