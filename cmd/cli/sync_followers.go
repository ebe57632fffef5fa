package main

import (
	"context"

	"github.com/Lorenzozero/social-automation-hub/internal/platform"
	"github.com/Lorenzozero/social-automation-hub/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var syncAccountID string

var syncFollowersCmd = &cobra.Command{
	Use:   "sync-followers",
	Short: "Run one follower sync cycle and exit",
	Long: `Fetch the current follower list for one account (or every eligible
account when --account is omitted), record the diff and exit.`,
	Run: runSyncFollowers,
}

func init() {
	syncFollowersCmd.Flags().StringVar(&syncAccountID, "account", "", "social account ID to sync (default: all eligible)")
	rootCmd.AddCommand(syncFollowersCmd)
}

func runSyncFollowers(cmd *cobra.Command, args []string) {
	cfg, appLogger, db, err := setup()
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}

	changeCache, err := buildCache(cfg)
	if err != nil {
		appLogger.Fatalf("Failed to init cache: %v", err)
	}
	creds, err := services.NewDBCredentialStore(db, cfg.Encryption.Key)
	if err != nil {
		appLogger.Fatalf("Failed to init credential store: %v", err)
	}

	fetcher := platform.NewXClient(cfg.Platform.X.BaseURL, cfg.Platform.X.Timeout, appLogger)
	syncService := services.NewFollowerSyncService(db, appLogger, changeCache, creds, fetcher, cfg.Sync.MaxPages, cfg.Sync.PageSize)

	ctx := context.Background()

	if syncAccountID != "" {
		result, err := syncService.Sync(ctx, syncAccountID)
		if err != nil {
			appLogger.Fatalf("Sync failed: %v", err)
		}
		appLogger.Infof("Synced account %s: %d fetched, %d new, %d unfollowed",
			result.AccountID, result.FetchedUsers, result.NewFollowers, result.Unfollowers)
		return
	}

	accounts, err := syncService.ListSyncableAccounts(ctx)
	if err != nil {
		appLogger.Fatalf("Failed to list accounts: %v", err)
	}
	if len(accounts) == 0 {
		appLogger.Info("No eligible accounts to sync")
		return
	}
	for _, account := range accounts {
		if _, err := syncService.Sync(ctx, account.ID); err != nil {
			appLogger.Errorf("account %s sync failed: %v", account.ID, err)
		}
	}
	appLogger.Infof("Synced %d accounts", len(accounts))
}
