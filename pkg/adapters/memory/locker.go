package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sgttomas/chirality-runtime/pkg/ports"
)

type lease struct {
	owner   uint64
	expires time.Time
}

// Locker implements ports.DistributedLocker for a single process.
// Expired leases are reclaimed on the next acquisition attempt.
type Locker struct {
	mu      sync.Mutex
	held    map[string]lease
	next    uint64
	backoff time.Duration
}

// NewLocker creates an empty locker.
func NewLocker() *Locker {
	return &Locker{
		held:    make(map[string]lease),
		backoff: 5 * time.Millisecond,
	}
}

func (l *Locker) tryLock(key string, ttl time.Duration) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.held[key]; ok && time.Now().Before(cur.expires) {
		return 0, false
	}
	l.next++
	l.held[key] = lease{owner: l.next, expires: time.Now().Add(ttl)}
	return l.next, true
}

// Lock polls until key is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	owner, ok := l.tryLock(key, ttl)
	for !ok {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
		owner, ok = l.tryLock(key, ttl)
	}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// A lease that expired and was taken over belongs to someone else.
		if cur, ok := l.held[key]; ok && cur.owner == owner {
			delete(l.held, key)
		}
		return nil
	}, nil
}

// Held reports whether key is currently locked.
func (l *Locker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[key]
	return ok && time.Now().Before(cur.expires)
}
