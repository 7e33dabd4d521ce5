package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	lockKeyPrefix = "season_alloc_lock:"
	lockTTL       = 10 * time.Second
	retryInterval = 50 * time.Millisecond
)

// SeasonLock is a Redis-backed mutual exclusion guard around ticket key
// allocation, for deployments running more than one allocator process.
// The lock value is a random token so a holder only ever releases its
// own lock; the TTL bounds the damage of a crashed holder.
type SeasonLock struct {
	Client *redis.Client
}

func NewSeasonLock(client *redis.Client) *SeasonLock {
	return &SeasonLock{Client: client}
}

// Acquire blocks until the season lock is held, the context is
// cancelled, or the attempt times out. The returned release function is
// safe to call after the TTL expired the lock.
func (l *SeasonLock) Acquire(ctx context.Context, season string) (func(), error) {
	key := lockKeyPrefix + season
	token := uuid.New().String()

	for {
		ok, err := l.Client.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire season lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	release := func() {
		// Only delete the lock if we still hold it.
		val, err := l.Client.Get(context.Background(), key).Result()
		if err != nil {
			return
		}
		if val == token {
			l.Client.Del(context.Background(), key)
		}
	}
	return release, nil
}
