// Package lock provides a best-effort mutual exclusion used to keep only one
// replica ticking the reminder dispatcher at a time.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Unlock releases a held lock.
type Unlock func(ctx context.Context) error

type Locker interface {
	// TryLock returns ok=false without error when somebody else holds key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, bool, error)
}

// Noop always grants the lock. Used when no shared backend is configured.
type Noop struct{}

func (Noop) TryLock(context.Context, string, time.Duration) (Unlock, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, r.client, []string{key}, token).Err()
	}, true, nil
}
