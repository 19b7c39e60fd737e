package lock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryLease implements Lease in process memory. It satisfies the same
// contract as RedisLease and is the right choice for single-process
// deployments and tests. The clock is injectable so tests can expire
// leases without sleeping.
type MemoryLease struct {
	clock clockwork.Clock

	mu      sync.Mutex
	expires map[string]time.Time
}

// NewMemoryLease creates a MemoryLease using the real clock.
func NewMemoryLease() *MemoryLease {
	return NewMemoryLeaseWithClock(clockwork.NewRealClock())
}

// NewMemoryLeaseWithClock creates a MemoryLease with an injected clock.
func NewMemoryLeaseWithClock(clock clockwork.Clock) *MemoryLease {
	return &MemoryLease{
		clock:   clock,
		expires: make(map[string]time.Time),
	}
}

// TryAcquire grants the lease unless a live holder exists. Expired entries
// are treated as free.
func (l *MemoryLease) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if expiry, held := l.expires[key]; held && now.Before(expiry) {
		return false, nil
	}
	l.expires[key] = now.Add(ttl)
	return true, nil
}

// Release frees the lease. Releasing an unheld or expired key is a no-op.
func (l *MemoryLease) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.expires, key)
	return nil
}
