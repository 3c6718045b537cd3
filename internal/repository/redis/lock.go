package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Deletes KEYS[1] only while it still holds ARGV[1].
const luaCompareAndDelete = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// Locker is an advisory lock shared by every process connected to the
// same Redis. Each acquisition is stamped with a random token so a holder
// whose TTL lapsed cannot release a lock taken over by another process.
type Locker struct {
	rdb    redis.UniversalClient
	script *redis.Script
}

func NewLocker(rdb redis.UniversalClient) *Locker {
	return &Locker{
		rdb:    rdb,
		script: redis.NewScript(luaCompareAndDelete),
	}
}

// TryLock attempts to take the named lock for ttl. When it succeeds the
// returned release func gives the lock back.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, func(ctx context.Context) error, error) {
	key := KeyReclaimLock(name)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, nil
	}

	release := func(ctx context.Context) error {
		return l.script.Run(ctx, l.rdb, []string{key}, token).Err()
	}

	return true, release, nil
}
