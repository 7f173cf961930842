package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is the distributed-lock seam used to serialize per-conversation
// worker processing and per-connection credential refresh. A held lock
// token must be presented to Unlock — this is a fencing token against a
// stale unlock racing a new holder after expiry.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// lockHeldError is returned when a lock is currently held by another caller.
type lockHeldError struct{ key string }

func (e *lockHeldError) Error() string { return fmt.Sprintf("lock held: %s", e.key) }

// ErrLockHeld reports whether err indicates the lock was already held.
func ErrLockHeld(err error) bool {
	_, ok := err.(*lockHeldError)
	return ok
}

// InProcessLocker implements Locker with a mutex-guarded map of expiring
// tokens, one entry per key; Lock does not wait, it fails at once while an
// unexpired entry exists. For local and lite-mode deployments that don't
// have Redis configured.
type InProcessLocker struct {
	mu    sync.Mutex
	locks map[string]*inProcessEntry
	clock func() time.Time
}

type inProcessEntry struct {
	token     string
	expiresAt time.Time
}

// NewInProcessLocker creates an advisory lock table keyed by lock name.
func NewInProcessLocker() *InProcessLocker {
	return &InProcessLocker{
		locks: make(map[string]*inProcessEntry),
		clock: time.Now,
	}
}

func (l *InProcessLocker) Lock(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if existing, ok := l.locks[key]; ok && now.Before(existing.expiresAt) {
		return "", &lockHeldError{key: key}
	}

	token := uuid.NewString()
	l.locks[key] = &inProcessEntry{token: token, expiresAt: now.Add(ttl)}
	return token, nil
}

func (l *InProcessLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.locks[key]
	if !ok || existing.token != token {
		return nil
	}
	delete(l.locks, key)
	return nil
}

// RedisLocker implements Locker with `SET key token NX PX ttl`, for
// deployments with REDIS_URL configured — the lock then holds across
// multiple bridge processes, not just one.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return "", &lockHeldError{key: key}
	}
	return token, nil
}

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	if err := l.client.Eval(ctx, unlockScript, []string{"lock:" + key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis unlock %s: %w", key, err)
	}
	return nil
}
