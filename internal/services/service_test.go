package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.SocialAccount{}, &models.OAuthToken{}, &models.MetricsSnapshot{}, &models.FollowerChange{},
		&models.Automation{}, &models.AutomationRun{}, &models.Consent{}, &models.ApprovalRequest{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func createTestAccount(t *testing.T, db *gorm.DB, platform string) *models.SocialAccount {
	t.Helper()
	account := &models.SocialAccount{
		Platform:       platform,
		Handle:         "tester",
		PlatformUserID: "pu-1",
		Status:         models.AccountStatusActive,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func seedFollowerChanges(t *testing.T, db *gorm.DB, accountID, changeType string, n int, ts time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		change := &models.FollowerChange{
			SocialAccountID: accountID,
			ChangeType:      changeType,
			UserID:          fmt.Sprintf("u-%s-%d", changeType, i),
			Timestamp:       ts,
			EventKey:        fmt.Sprintf("%s:%s:u-%s-%d:%s", accountID, changeType, changeType, i, ts.Format("20060102150405")),
		}
		if err := db.Create(change).Error; err != nil {
			t.Fatalf("seed change: %v", err)
		}
	}
}
