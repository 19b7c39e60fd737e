package lock

import (
	"context"
	"sync"

	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if this locker still owns it, so a
// worker that outlived its TTL cannot release a lease the next worker has
// since acquired.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLease implements Lease on a Redis SET NX PX key. Each acquisition
// writes a random token; release is fenced on that token.
type RedisLease struct {
	client *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisLease creates a RedisLease on the given client. Callers typically
// point this at a dedicated lock database, separate from any cache use.
func NewRedisLease(client *redis.Client) *RedisLease {
	return &RedisLease{
		client: client,
		tokens: make(map[string]string),
	}
}

// TryAcquire attempts a non-blocking acquisition. Returns false when
// another holder owns the key.
func (l *RedisLease) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, wrapErr("acquire", err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

// Release gives up the lease. Releasing a key this locker does not hold, or
// one whose TTL already expired, is a no-op.
func (l *RedisLease) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return wrapErr("release", err)
	}
	return nil
}
