package worker

import (
	"context"
	"sync"
	"time"
)

// Locker grants exclusive, expiring leases tagged with an owner token.
// Acquire takes a free lease or extends one the owner already holds; Release
// only drops the lease while the owner still holds it.
type Locker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

type lease struct {
	owner   string
	expires time.Time
}

type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]lease), now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) && cur.owner != owner {
		return false, nil
	}
	l.leases[key] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && cur.owner == owner {
		delete(l.leases, key)
	}
	return nil
}
