package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MetricsService 指标快照的写入与查询
type MetricsService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewMetricsService(db *gorm.DB, logger *logrus.Logger) *MetricsService {
	if logger == nil {
		logger = logrus.New()
	}
	return &MetricsService{db: db, logger: logger}
}

// SnapshotRequest 一次指标快照上报
type SnapshotRequest struct {
	SocialAccountID string                 `json:"social_account_id" binding:"required"`
	Timestamp       *time.Time             `json:"timestamp"`
	FollowersCount  int                    `json:"followers_count"`
	FollowingCount  int                    `json:"following_count"`
	PostsCount      int                    `json:"posts_count"`
	Reach           int                    `json:"reach"`
	Impressions     int                    `json:"impressions"`
	EngagementCount int                    `json:"engagement_count"`
	ProfileViews    int                    `json:"profile_views"`
	ExtraData       map[string]interface{} `json:"extra_data"`
}

// IngestSnapshot 校验账号存在后落一条时间序列快照
func (s *MetricsService) IngestSnapshot(ctx context.Context, req *SnapshotRequest) (*models.MetricsSnapshot, error) {
	if req == nil {
		return nil, errors.New("request required")
	}

	var account models.SocialAccount
	if err := s.db.WithContext(ctx).First(&account, "id = ?", req.SocialAccountID).Error; err != nil {
		return nil, err
	}

	snapshot := &models.MetricsSnapshot{
		SocialAccountID: account.ID,
		FollowersCount:  req.FollowersCount,
		FollowingCount:  req.FollowingCount,
		PostsCount:      req.PostsCount,
		Reach:           req.Reach,
		Impressions:     req.Impressions,
		EngagementCount: req.EngagementCount,
		ProfileViews:    req.ProfileViews,
	}
	if req.Timestamp != nil {
		snapshot.Timestamp = req.Timestamp.UTC()
	}
	if len(req.ExtraData) > 0 {
		extra, err := json.Marshal(req.ExtraData)
		if err != nil {
			return nil, err
		}
		snapshot.ExtraData = string(extra)
	}

	if err := s.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return nil, err
	}
	return snapshot, nil
}

// ListSnapshots 查询账号的快照时间序列（新→旧）
func (s *MetricsService) ListSnapshots(ctx context.Context, accountID string, since *time.Time, limit int) ([]models.MetricsSnapshot, error) {
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	q := s.db.WithContext(ctx).Where("social_account_id = ?", accountID)
	if since != nil {
		q = q.Where("timestamp >= ?", since.UTC())
	}

	var snapshots []models.MetricsSnapshot
	if err := q.Order("timestamp DESC").Limit(limit).Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}
