// Package lock provides the mutual exclusion used by background jobs that
// must run on a single instance at a time.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker acquires named, expiring locks.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// unlockScript deletes the key only while it still holds this owner's token,
// so a lock that expired and was taken by another instance is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock coordinates instances through SET NX on a shared Redis. Each
// acquisition stores a fresh token that Unlock must present.
type RedisLock struct {
	client *redis.Client
	token  func() string

	mu    sync.Mutex
	owned map[string]string
}

// NewRedisLock connects to addr and verifies the connection with a ping.
func NewRedisLock(ctx context.Context, addr string) (*RedisLock, error) {
	const op = "lock.NewRedisLock"

	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return newRedisLock(client, uuid.NewString), nil
}

func newRedisLock(client *redis.Client, token func() string) *RedisLock {
	return &RedisLock{client: client, token: token, owned: make(map[string]string)}
}

func (r *RedisLock) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	const op = "lock.RedisLock.Lock"

	token := r.token()
	acquired, err := r.client.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if acquired {
		r.mu.Lock()
		r.owned[key] = token
		r.mu.Unlock()
	}
	return acquired, nil
}

// Unlock is a no-op for keys this instance does not hold.
func (r *RedisLock) Unlock(ctx context.Context, key string) error {
	const op = "lock.RedisLock.Unlock"

	r.mu.Lock()
	token, ok := r.owned[key]
	delete(r.owned, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	if err := unlockScript.Run(ctx, r.client, []string{lockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisLock) Close() error {
	return r.client.Close()
}

func lockKey(key string) string {
	return "lock:" + key
}

// LocalLock is the single process Locker used when no Redis is configured.
type LocalLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewLocalLock constructs an in-memory Locker. A nil clock uses time.Now.
func NewLocalLock(clock func() time.Time) *LocalLock {
	if clock == nil {
		clock = time.Now
	}
	return &LocalLock{held: make(map[string]time.Time), clock: clock}
}

func (l *LocalLock) Lock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *LocalLock) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
