package cache

import (
	"context"
	"fmt"
	"time"

	rediscache "github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// RedisCache backs the change cache with Redis plus a small TinyLFU local
// layer for hot user snapshots.
type RedisCache struct {
	data    *rediscache.Cache
	userTTL time.Duration
}

var _ ChangeCache = (*RedisCache)(nil)

func NewRedisCache(addr, password string, db, localSize int, userTTL time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if localSize <= 0 {
		localSize = 10000
	}
	data := rediscache.New(&rediscache.Options{
		Redis:      rdb,
		LocalCache: rediscache.NewTinyLFU(localSize, userTTL),
	})
	return &RedisCache{data: data, userTTL: userTTL}, nil
}

func (c *RedisCache) FollowerSet(ctx context.Context, accountID string) ([]string, bool, error) {
	var ids []string
	err := c.data.Get(ctx, followerSetKey(accountID), &ids)
	if err == rediscache.ErrCacheMiss {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (c *RedisCache) SetFollowerSet(ctx context.Context, accountID string, ids []string) error {
	return c.data.Set(&rediscache.Item{
		Ctx:   ctx,
		Key:   followerSetKey(accountID),
		Value: ids,
		// Negative TTL disables expiry: the set is only ever replaced by
		// the next sync.
		TTL:            -1,
		SkipLocalCache: true,
	})
}

func (c *RedisCache) UserSnapshot(ctx context.Context, platform, userID string) (*UserSnapshot, bool, error) {
	var snap UserSnapshot
	err := c.data.Get(ctx, userKey(platform, userID), &snap)
	if err == rediscache.ErrCacheMiss {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &snap, true, nil
}

func (c *RedisCache) SetUserSnapshot(ctx context.Context, platform, userID string, snap *UserSnapshot) error {
	return c.data.Set(&rediscache.Item{
		Ctx:   ctx,
		Key:   userKey(platform, userID),
		Value: snap,
		TTL:   c.userTTL,
	})
}
