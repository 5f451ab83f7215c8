package routing

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Rotator hands out the round-robin position for a key. Every call advances
// the position, whatever happens to the resulting job.
type Rotator interface {
	Next(ctx context.Context, key string, n int) (int, error)
}

// MemoryRotator keeps positions in process memory. Exact fairness only holds
// for a single instance.
type MemoryRotator struct {
	mu        sync.Mutex
	positions map[string]uint64
}

func NewMemoryRotator() *MemoryRotator {
	return &MemoryRotator{positions: make(map[string]uint64)}
}

func (r *MemoryRotator) Next(_ context.Context, key string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("rotating over %d printers", n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pos := r.positions[key]
	r.positions[key] = pos + 1
	return int(pos % uint64(n)), nil
}

// RedisRotator shares positions between instances through INCR.
type RedisRotator struct {
	client redis.Cmdable
	prefix string
}

func NewRedisRotator(client redis.Cmdable) *RedisRotator {
	return &RedisRotator{client: client, prefix: "kitchenops:rr:"}
}

func (r *RedisRotator) Next(ctx context.Context, key string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("rotating over %d printers", n)
	}
	v, err := r.client.Incr(ctx, r.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing rotation for %s: %w", key, err)
	}
	return int((v - 1) % int64(n)), nil
}
