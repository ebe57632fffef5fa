// Package cache holds the change cache: the previously observed follower-id
// set per account, plus short-lived per-user enrichment snapshots used to
// describe users after they disappear from the live follower list.
package cache

import (
	"context"
)

// UserSnapshot is the cached enrichment for one platform user.
type UserSnapshot struct {
	UserID          string `json:"user_id"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
	Verified        bool   `json:"verified"`
	FollowersCount  *int   `json:"followers_count,omitempty"`
}

// ChangeCache is the store the follower diff engine reads its previous
// observation from. Follower sets never expire and are overwritten on each
// sync; user snapshots carry the backend's configured TTL.
type ChangeCache interface {
	FollowerSet(ctx context.Context, accountID string) ([]string, bool, error)
	SetFollowerSet(ctx context.Context, accountID string, ids []string) error
	UserSnapshot(ctx context.Context, platform, userID string) (*UserSnapshot, bool, error)
	SetUserSnapshot(ctx context.Context, platform, userID string, snap *UserSnapshot) error
}

func followerSetKey(accountID string) string {
	return "followers:" + accountID
}

func userKey(platform, userID string) string {
	return "user:" + platform + ":" + userID
}
