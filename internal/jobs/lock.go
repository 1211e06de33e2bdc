package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	customError "github.com/segyhp/collections-engine/pkg/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock guards a named job so that a scheduled run and a manual trigger never
// overlap. Acquire fails with a JobAlreadyRunning error when the name is held.
type Lock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// LocalLock is an in-process Lock.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]bool)}
}

func (l *LocalLock) Acquire(_ context.Context, name string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, customError.WrapJobAlreadyRunning(name)
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the key only if it still carries our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a Lock shared by every process pointing at the same Redis.
type RedisLock struct {
	client redis.Cmdable
	prefix string
}

func NewRedisLock(client redis.Cmdable, prefix string) *RedisLock {
	if prefix == "" {
		prefix = "collections:lock:"
	}
	return &RedisLock{client: client, prefix: prefix}
}

func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, customError.WrapJobAlreadyRunning(name)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The job context may already be done; release on a fresh one.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			releaseScript.Run(ctx, l.client, []string{key}, token)
		})
	}, nil
}

// withLock runs fn while holding name.
func withLock(ctx context.Context, lock Lock, name string, ttl time.Duration, fn func(context.Context) error) error {
	release, err := lock.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
