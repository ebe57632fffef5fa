package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 社媒平台
const (
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformLinkedIn  = "linkedin"
	PlatformX         = "x"
)

// 账号状态
const (
	AccountStatusActive       = "active"
	AccountStatusNeedsReview  = "needs_review"
	AccountStatusDisconnected = "disconnected"
)

// SocialAccount 工作区内绑定的社媒账号
type SocialAccount struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID    string    `gorm:"type:uuid;index" json:"workspace_id"`
	Platform       string    `gorm:"size:32;index" json:"platform"`
	Handle         string    `gorm:"size:255" json:"handle"`
	PlatformUserID string    `gorm:"size:255" json:"platform_user_id"`
	Status         string    `gorm:"size:32;default:needs_review" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *SocialAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// OAuthToken 账号凭证（静态加密可选，见 credentials.MaybeDecrypt）
type OAuthToken struct {
	ID              string     `gorm:"type:uuid;primaryKey" json:"id"`
	SocialAccountID string     `gorm:"type:uuid;uniqueIndex" json:"social_account_id"`
	AccessTokenEnc  string     `gorm:"type:text" json:"-"`
	RefreshTokenEnc string     `gorm:"type:text" json:"-"`
	Scopes          string     `gorm:"type:text" json:"scopes"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func (t *OAuthToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// MetricsSnapshot 账号指标时间序列快照
type MetricsSnapshot struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	SocialAccountID string    `gorm:"type:uuid;index:idx_snapshot_account_ts,priority:1" json:"social_account_id"`
	Timestamp       time.Time `gorm:"index:idx_snapshot_account_ts,priority:2,sort:desc" json:"timestamp"`

	FollowersCount int `gorm:"default:0" json:"followers_count"`
	FollowingCount int `gorm:"default:0" json:"following_count"`
	PostsCount     int `gorm:"default:0" json:"posts_count"`

	// Engagement metrics, last 24h unless the platform says otherwise
	Reach           int `gorm:"default:0" json:"reach"`
	Impressions     int `gorm:"default:0" json:"impressions"`
	EngagementCount int `gorm:"default:0" json:"engagement_count"`
	ProfileViews    int `gorm:"default:0" json:"profile_views"`

	ExtraData string `gorm:"type:text" json:"extra_data,omitempty"` // JSON, platform specific
}

func (s *MetricsSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	return nil
}

// 粉丝变化类型
const (
	ChangeTypeNewFollower  = "new_follower"
	ChangeTypeUnfollower   = "unfollower"
	ChangeTypeNewFollowing = "new_following"
	ChangeTypeUnfollowing  = "unfollowing"
)

// FollowerChange 粉丝增减审计日志，只增不改
//
// EventKey dedupes replayed diffs: account:change_type:user_id:day. A retried
// sync that recomputes the same diff hits the unique index and is ignored.
type FollowerChange struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	SocialAccountID string    `gorm:"type:uuid;index:idx_change_account_type_ts,priority:1" json:"social_account_id"`
	ChangeType      string    `gorm:"size:32;index:idx_change_account_type_ts,priority:2" json:"change_type"`
	UserID          string    `gorm:"size:255" json:"user_id"`
	Username        string    `gorm:"size:255" json:"username"`
	Timestamp       time.Time `gorm:"index:idx_change_account_type_ts,priority:3,sort:desc" json:"timestamp"`
	EventKey        string    `gorm:"size:512;uniqueIndex" json:"-"`

	// Enrichment
	ProfilePicURL string `gorm:"size:1024" json:"profile_pic_url,omitempty"`
	Verified      bool   `gorm:"default:false" json:"verified"`
	FollowerCount *int   `json:"follower_count,omitempty"`
	ExtraData     string `gorm:"type:text" json:"extra_data,omitempty"` // JSON
}

func (c *FollowerChange) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	return nil
}
