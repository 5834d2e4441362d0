package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vaxsync/vaxsync-backend/internal/config"
)

// releaseIfOwner deletes the lock only if it still holds our token.
var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-holder lock shared by the server and vaxctl so
// that only one derivation pass writes at a time.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisLocker creates a lock whose lease expires after ttl.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

// TryLock acquires the lock without waiting.
func (l *RedisLocker) TryLock(ctx context.Context) (func(), bool, error) {
	key := config.CacheKey.DerivationLockKey()
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseIfOwner.Run(ctx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
