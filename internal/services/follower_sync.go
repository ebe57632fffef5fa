package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/cache"
	"github.com/Lorenzozero/social-automation-hub/internal/models"
	"github.com/Lorenzozero/social-automation-hub/internal/platform"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncResult 一次全量粉丝同步的汇总
type SyncResult struct {
	Platform     string `json:"platform"`
	AccountID    string `json:"account_id"`
	FetchedUsers int    `json:"fetched_users"`
	NewFollowers int    `json:"new_followers"`
	Unfollowers  int    `json:"unfollowers"`
}

// FollowerSyncService fetches the full current follower set for an account,
// diffs it against the previous observation in the change cache and records
// the additions/removals as append-only audit rows.
//
// Only identity-level diffing is done here, and only for platforms with an
// official followers list endpoint (X today). Other platforms are covered by
// the followers_count time series in MetricsSnapshot.
type FollowerSyncService struct {
	db      *gorm.DB
	logger  *logrus.Logger
	cache   cache.ChangeCache
	creds   CredentialStore
	fetcher platform.FollowerFetcher

	maxPages int
	pageSize int
}

func NewFollowerSyncService(db *gorm.DB, logger *logrus.Logger, changeCache cache.ChangeCache, creds CredentialStore, fetcher platform.FollowerFetcher, maxPages, pageSize int) *FollowerSyncService {
	if logger == nil {
		logger = logrus.New()
	}
	if maxPages <= 0 {
		maxPages = 50
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &FollowerSyncService{
		db:       db,
		logger:   logger,
		cache:    changeCache,
		creds:    creds,
		fetcher:  fetcher,
		maxPages: maxPages,
		pageSize: pageSize,
	}
}

// ListSyncableAccounts 当前可做身份级同步的账号（active 的 X 账号）
func (s *FollowerSyncService) ListSyncableAccounts(ctx context.Context) ([]models.SocialAccount, error) {
	var accounts []models.SocialAccount
	if err := s.db.WithContext(ctx).
		Where("platform = ? AND status = ?", models.PlatformX, models.AccountStatusActive).
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ChangeListRequest 粉丝变动查询
type ChangeListRequest struct {
	AccountID  string `form:"account_id"`
	ChangeType string `form:"change_type"`
	Since      string `form:"since"` // RFC 3339
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// ListChanges 分页查询粉丝变动审计记录
func (s *FollowerSyncService) ListChanges(ctx context.Context, req *ChangeListRequest) ([]models.FollowerChange, int64, error) {
	if req == nil {
		req = &ChangeListRequest{}
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	q := s.db.WithContext(ctx).Model(&models.FollowerChange{})
	if req.AccountID != "" {
		q = q.Where("social_account_id = ?", req.AccountID)
	}
	if req.ChangeType != "" {
		q = q.Where("change_type = ?", req.ChangeType)
	}
	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid since timestamp: %w", err)
		}
		q = q.Where("timestamp >= ?", since)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var changes []models.FollowerChange
	if err := q.Order("timestamp DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&changes).Error; err != nil {
		return nil, 0, err
	}
	return changes, total, nil
}

// Sync runs one full snapshot-and-diff cycle for the account.
//
// Any upstream failure aborts before persistence: partially fetched pages are
// discarded and neither the database nor the cache is touched. The change-row
// insert is idempotent (event_key, ON CONFLICT DO NOTHING), so a replay after
// a crash between commit and cache swap is safe.
func (s *FollowerSyncService) Sync(ctx context.Context, accountID string) (*SyncResult, error) {
	var account models.SocialAccount
	if err := s.db.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account.Platform != models.PlatformX {
		return nil, fmt.Errorf("follower sync only supports %s accounts, got %s", models.PlatformX, account.Platform)
	}

	accessToken, err := s.creds.Resolve(ctx, &account)
	if err != nil {
		return nil, err
	}

	// Full follower list, paged, hard-capped at maxPages regardless of how
	// many pages upstream claims to offer.
	var users []platform.FollowerUser
	nextToken := ""
	for page := 0; page < s.maxPages; page++ {
		result, err := s.fetcher.FollowersPage(ctx, account.PlatformUserID, accessToken, nextToken, s.pageSize)
		if err != nil {
			return nil, &UpstreamError{Err: err}
		}
		users = append(users, result.Users...)
		nextToken = result.NextToken
		if nextToken == "" {
			break
		}
	}

	currentIDs := make([]string, 0, len(users))
	currentSet := make(map[string]platform.FollowerUser, len(users))
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		if _, seen := currentSet[u.ID]; !seen {
			currentIDs = append(currentIDs, u.ID)
		}
		currentSet[u.ID] = u
	}

	prevIDs, _, err := s.cache.FollowerSet(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("read follower cache: %w", err)
	}
	prevSet := make(map[string]bool, len(prevIDs))
	for _, id := range prevIDs {
		prevSet[id] = true
	}

	var newIDs, removedIDs []string
	for _, id := range currentIDs {
		if !prevSet[id] {
			newIDs = append(newIDs, id)
		}
	}
	for _, id := range prevIDs {
		if _, ok := currentSet[id]; !ok {
			removedIDs = append(removedIDs, id)
		}
	}

	if err := s.persistChanges(ctx, &account, newIDs, removedIDs, currentSet); err != nil {
		return nil, err
	}

	// Cache swap happens after the commit; a crash in between leaves the
	// cache stale for one cycle and the replayed diff no-ops on event_key.
	if err := s.cache.SetFollowerSet(ctx, account.ID, currentIDs); err != nil {
		s.logger.Warnf("account %s: refresh follower set cache: %v", account.ID, err)
	}
	for id, u := range currentSet {
		snap := &cache.UserSnapshot{
			UserID:          u.ID,
			Username:        u.Username,
			ProfileImageURL: u.ProfileImageURL,
			Verified:        u.Verified,
		}
		if u.PublicMetrics != nil {
			count := u.PublicMetrics.FollowersCount
			snap.FollowersCount = &count
		}
		if err := s.cache.SetUserSnapshot(ctx, account.Platform, id, snap); err != nil {
			s.logger.Warnf("account %s: cache user %s: %v", account.ID, id, err)
		}
	}

	result := &SyncResult{
		Platform:     account.Platform,
		AccountID:    account.ID,
		FetchedUsers: len(currentSet),
		NewFollowers: len(newIDs),
		Unfollowers:  len(removedIDs),
	}
	s.logger.Infof("account %s synced: %d fetched, %d new, %d unfollowed",
		account.ID, result.FetchedUsers, result.NewFollowers, result.Unfollowers)
	return result, nil
}

func (s *FollowerSyncService) persistChanges(ctx context.Context, account *models.SocialAccount, newIDs, removedIDs []string, currentSet map[string]platform.FollowerUser) error {
	if len(newIDs) == 0 && len(removedIDs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	day := now.Format("20060102")
	extra := fmt.Sprintf(`{"platform":%q}`, account.Platform)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var changes []models.FollowerChange

		for _, id := range newIDs {
			u := currentSet[id]
			change := models.FollowerChange{
				SocialAccountID: account.ID,
				ChangeType:      models.ChangeTypeNewFollower,
				UserID:          id,
				Username:        u.Username,
				Timestamp:       now,
				EventKey:        eventKey(account.ID, models.ChangeTypeNewFollower, id, day),
				ProfilePicURL:   u.ProfileImageURL,
				Verified:        u.Verified,
				ExtraData:       extra,
			}
			if u.PublicMetrics != nil {
				count := u.PublicMetrics.FollowersCount
				change.FollowerCount = &count
			}
			changes = append(changes, change)
		}

		// Unfollowers are gone from the live list; enrichment is best effort
		// from the user cache.
		for _, id := range removedIDs {
			change := models.FollowerChange{
				SocialAccountID: account.ID,
				ChangeType:      models.ChangeTypeUnfollower,
				UserID:          id,
				Timestamp:       now,
				EventKey:        eventKey(account.ID, models.ChangeTypeUnfollower, id, day),
				ExtraData:       extra,
			}
			if snap, ok, err := s.cache.UserSnapshot(ctx, account.Platform, id); err == nil && ok {
				change.Username = snap.Username
				change.ProfilePicURL = snap.ProfileImageURL
				change.Verified = snap.Verified
				change.FollowerCount = snap.FollowersCount
			}
			changes = append(changes, change)
		}

		if len(changes) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			CreateInBatches(changes, 500).Error
	})
}

func eventKey(accountID, changeType, userID, day string) string {
	return fmt.Sprintf("%s:%s:%s:%s", accountID, changeType, userID, day)
}
