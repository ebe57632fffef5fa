package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is an in-process change cache for dev setups and tests.
// Follower sets live in a non-expiring LRU; user snapshots expire after the
// configured TTL.
type MemoryCache struct {
	sets  *expirable.LRU[string, []string]
	users *expirable.LRU[string, UserSnapshot]
}

var _ ChangeCache = (*MemoryCache)(nil)

func NewMemoryCache(entries int, userTTL time.Duration) *MemoryCache {
	if entries <= 0 {
		entries = 100000
	}
	return &MemoryCache{
		// ttl 0 disables expiry in expirable.LRU
		sets:  expirable.NewLRU[string, []string](entries, nil, 0),
		users: expirable.NewLRU[string, UserSnapshot](entries, nil, userTTL),
	}
}

func (c *MemoryCache) FollowerSet(ctx context.Context, accountID string) ([]string, bool, error) {
	ids, ok := c.sets.Get(followerSetKey(accountID))
	if !ok {
		return nil, false, nil
	}
	return ids, true, nil
}

func (c *MemoryCache) SetFollowerSet(ctx context.Context, accountID string, ids []string) error {
	c.sets.Add(followerSetKey(accountID), ids)
	return nil
}

func (c *MemoryCache) UserSnapshot(ctx context.Context, platform, userID string) (*UserSnapshot, bool, error) {
	snap, ok := c.users.Get(userKey(platform, userID))
	if !ok {
		return nil, false, nil
	}
	return &snap, true, nil
}

func (c *MemoryCache) SetUserSnapshot(ctx context.Context, platform, userID string, snap *UserSnapshot) error {
	c.users.Add(userKey(platform, userID), *snap)
	return nil
}
