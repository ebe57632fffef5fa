package platform

import (
	"context"
	"fmt"
)

// PublicMetrics X user.fields=public_metrics 子对象
type PublicMetrics struct {
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
	TweetCount     int `json:"tweet_count"`
}

// FollowerUser one user record from a followers page.
type FollowerUser struct {
	ID              string         `json:"id"`
	Username        string         `json:"username"`
	ProfileImageURL string         `json:"profile_image_url,omitempty"`
	Verified        bool           `json:"verified"`
	PublicMetrics   *PublicMetrics `json:"public_metrics,omitempty"`
}

// FollowerPage 一页粉丝列表及翻页游标
type FollowerPage struct {
	Users     []FollowerUser
	NextToken string
}

// FollowerFetcher pages through a platform's follower-list endpoint.
type FollowerFetcher interface {
	FollowersPage(ctx context.Context, platformUserID, accessToken, paginationToken string, pageSize int) (*FollowerPage, error)
}

// ErrRateLimited 上游限流（HTTP 429）
var ErrRateLimited = &APIError{StatusCode: 429, Message: "rate limit exceeded"}

// APIError is a completed platform API response with an error status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error [%d]: %s", e.StatusCode, e.Message)
}

// Is 让 errors.Is(err, ErrRateLimited) 按状态码匹配
func (e *APIError) Is(target error) bool {
	other, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == other.StatusCode
}
