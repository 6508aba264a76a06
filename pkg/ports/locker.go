package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock taken by DistributedLocker.Lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes mutations of one entity across processes
// sharing a workspace. Keys are entity ids such as "DEL-01.02".
type DistributedLocker interface {
	// Lock waits until key is free or ctx is done. A holder that never
	// unlocks loses the lock after ttl.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
