// Package memlock provides an in-process resource lock with the same
// set-if-absent-with-expiry semantics a shared lock store would give. It is
// the single-process backing for booking.ResourceLock; the gormstore lock
// rows cover multi-process deployments.
package memlock

import (
	"context"
	"sync"
	"time"
)

// Lock tracks held resources and their expiry stamps.
type Lock struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	nowFn  func() time.Time
}

// New returns a Lock using the wall clock.
func New() *Lock {
	return NewWithClock(time.Now)
}

// NewWithClock returns a Lock reading time from now.
func NewWithClock(now func() time.Time) *Lock {
	return &Lock{
		expiry: make(map[string]time.Time),
		nowFn:  now,
	}
}

// TryAcquire takes the resource iff it is absent or its previous holder's TTL
// has elapsed. It never blocks.
func (lock *Lock) TryAcquire(ctx context.Context, resourceID string, ttl time.Duration) (bool, error) {
	lock.mu.Lock()
	defer lock.mu.Unlock()
	now := lock.nowFn()
	if expiresAt, held := lock.expiry[resourceID]; held && expiresAt.After(now) {
		return false, nil
	}
	lock.expiry[resourceID] = now.Add(ttl)
	return true, nil
}

// Release drops the resource. Releasing an absent or expired entry is a no-op.
func (lock *Lock) Release(ctx context.Context, resourceID string) error {
	lock.mu.Lock()
	defer lock.mu.Unlock()
	delete(lock.expiry, resourceID)
	return nil
}
