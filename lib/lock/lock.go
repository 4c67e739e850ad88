// Package lock serialises operations sharing a key, ie. transfers from the same owner. Local locks serve a single
// process; Redis locks serve several replicas of the wallet service.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when a lock could not be acquired before the context expired.
var ErrLockHeld = errors.New("lock held by another operation")

// Locker acquires an exclusive lock for key. The returned function releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocal returns an in-process Locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once

		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrLockHeld, ctx.Err())
	}
}

// release only deletes the key when the token still matches.
var release = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Redis is a Locker based on SET NX with an expiry.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedis returns a Locker that holds keys in redis for at most ttl.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, retry: 50 * time.Millisecond}
}

// Lock polls redis until key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	key = "lock:" + key

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, err
		}

		if ok {
			var once sync.Once

			return func() {
				once.Do(func() {
					// release with a fresh context, the caller's may be done already
					rctx, cancel := context.WithTimeout(context.Background(), time.Second)
					defer cancel()
					_ = release.Run(rctx, r.client, []string{key}, token).Err()
				})
			}, nil
		}

		select {
		case <-time.After(r.retry):
		case <-ctx.Done():
			return nil, errors.Join(ErrLockHeld, ctx.Err())
		}
	}
}
