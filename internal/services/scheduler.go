package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Scheduler runs the periodic ticks: per-automation trigger checks and
// per-account follower syncs, each dispatched onto a bounded worker pool.
// Units of work are independent; a failed unit is logged and left to the next
// tick, there is no retry here.
type Scheduler struct {
	db          *gorm.DB
	logger      *logrus.Logger
	automations *AutomationService
	syncer      *FollowerSyncService

	automationWorkers int
	syncWorkers       int
}

func NewScheduler(db *gorm.DB, logger *logrus.Logger, automations *AutomationService, syncer *FollowerSyncService, automationWorkers, syncWorkers int) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if automationWorkers <= 0 {
		automationWorkers = 4
	}
	if syncWorkers <= 0 {
		syncWorkers = 4
	}
	return &Scheduler{
		db:                db,
		logger:            logger,
		automations:       automations,
		syncer:            syncer,
		automationWorkers: automationWorkers,
		syncWorkers:       syncWorkers,
	}
}

// StartAutomationMonitor 周期性检查所有启用的自动化
func (s *Scheduler) StartAutomationMonitor(ctx context.Context, interval time.Duration) {
	s.logger.Infof("Starting automation monitor (every %s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Automation monitor stopped")
			return
		case <-ticker.C:
			if err := s.CheckAllAutomations(ctx); err != nil {
				s.logger.Errorf("Automation check tick failed: %v", err)
			}
		}
	}
}

// CheckAllAutomations dispatches one trigger check per enabled automation.
func (s *Scheduler) CheckAllAutomations(ctx context.Context) error {
	var automations []models.Automation
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&automations).Error; err != nil {
		return fmt.Errorf("load enabled automations: %w", err)
	}

	now := time.Now().UTC()
	s.dispatch(len(automations), s.automationWorkers, func(i int) {
		automation := automations[i]
		if _, err := s.automations.CheckAndRun(ctx, automation.ID, now); err != nil {
			s.logger.Errorf("automation %s check failed: %v", automation.ID, err)
		}
	})
	return nil
}

// StartFollowerSyncMonitor 周期性同步可同步账号的粉丝列表
func (s *Scheduler) StartFollowerSyncMonitor(ctx context.Context, interval time.Duration) {
	s.logger.Infof("Starting follower sync monitor (every %s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Follower sync monitor stopped")
			return
		case <-ticker.C:
			if err := s.SyncAllAccounts(ctx); err != nil {
				s.logger.Errorf("Follower sync tick failed: %v", err)
			}
		}
	}
}

// SyncAllAccounts dispatches one sync per eligible account.
func (s *Scheduler) SyncAllAccounts(ctx context.Context) error {
	accounts, err := s.syncer.ListSyncableAccounts(ctx)
	if err != nil {
		return fmt.Errorf("load syncable accounts: %w", err)
	}

	s.dispatch(len(accounts), s.syncWorkers, func(i int) {
		account := accounts[i]
		if _, err := s.syncer.Sync(ctx, account.ID); err != nil {
			s.logger.Errorf("account %s sync failed: %v", account.ID, err)
		}
	})
	return nil
}

// dispatch fans n units out over at most workers goroutines and waits.
func (s *Scheduler) dispatch(n, workers int, fn func(i int)) {
	if n == 0 {
		return
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}
