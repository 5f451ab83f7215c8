package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript sets the lease when it is free and extends it when the
// caller already owns it.
const acquireScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return 1
end
if cur == ARGV[1] then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0`

// releaseScript deletes the lease only while the caller still owns it.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0`

// Locker implements printer leases shared by every instance. The value of
// each lease key is the holder's owner token, so an expired holder can never
// extend or delete a lease another instance has taken over.
type Locker struct {
	client redis.Cmdable
	prefix string
}

func NewLocker(client redis.Cmdable) *Locker {
	return &Locker{client: client, prefix: "kitchenops:lease:"}
}

func (l *Locker) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	n, err := l.client.Eval(ctx, acquireScript, []string{l.prefix + key}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", key, err)
	}
	return n == 1, nil
}

func (l *Locker) Release(ctx context.Context, key, owner string) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.prefix + key}, owner).Err(); err != nil {
		return fmt.Errorf("releasing lease %s: %w", key, err)
	}
	return nil
}
