package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sgttomas/chirality-runtime/internal/logging"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes mutations per entity and persists agent sessions.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.Repository[domain.AgentSession]

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL for distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager over the given session repository.
func NewManager(store ports.Repository[domain.AgentSession], opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// WithLock runs fn while holding the lock for key. Locks are not reentrant.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Create persists a new session. It fails if the id is already taken.
func (m *Manager) Create(ctx context.Context, s *domain.AgentSession) error {
	id := s.ID.String()
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, id)
		if err == nil {
			return &domain.PreconditionFailedError{Message: fmt.Sprintf("session %s already exists", id)}
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		return m.store.Save(ctx, id, s)
	})
}

// Load retrieves a session.
func (m *Manager) Load(ctx context.Context, id domain.SessionID) (*domain.AgentSession, error) {
	var s *domain.AgentSession
	err := m.WithLock(ctx, id.String(), func(ctx context.Context) error {
		var err error
		s, err = m.store.Load(ctx, id.String())
		return err
	})
	return s, err
}

// Update applies fn to the stored session and saves the result, all under the session's lock.
// Nothing is saved when fn fails.
func (m *Manager) Update(ctx context.Context, id domain.SessionID, fn func(*domain.AgentSession) error) (*domain.AgentSession, error) {
	var s *domain.AgentSession
	err := m.WithLock(ctx, id.String(), func(ctx context.Context) error {
		loaded, err := m.store.Load(ctx, id.String())
		if err != nil {
			return err
		}
		if err := fn(loaded); err != nil {
			return err
		}
		if err := m.store.Save(ctx, id.String(), loaded); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		s = loaded
		return nil
	})
	return s, err
}

// Transition moves a stored session to target and reports the state it left.
func (m *Manager) Transition(ctx context.Context, id domain.SessionID, target domain.SessionState) (*domain.AgentSession, domain.SessionState, error) {
	var from domain.SessionState
	s, err := m.Update(ctx, id, func(s *domain.AgentSession) error {
		from = s.State
		return s.TransitionTo(target)
	})
	if err != nil {
		return nil, "", err
	}
	m.logger.Debug("session transitioned", "session_id", id, "from", from, "to", target)
	return s, from, nil
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id domain.SessionID) error {
	return m.DeleteIf(ctx, id, nil)
}

// DeleteIf removes a session when check accepts it. The check and the delete
// run under the same lock. A nil check always accepts.
func (m *Manager) DeleteIf(ctx context.Context, id domain.SessionID, check func(*domain.AgentSession) error) error {
	return m.WithLock(ctx, id.String(), func(ctx context.Context) error {
		if check != nil {
			s, err := m.store.Load(ctx, id.String())
			if err != nil {
				return err
			}
			if err := check(s); err != nil {
				return err
			}
		}
		return m.store.Delete(ctx, id.String())
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session repository.
func (m *Manager) Store() ports.Repository[domain.AgentSession] {
	return m.store
}
