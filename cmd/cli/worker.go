package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lorenzozero/social-automation-hub/internal/platform"
	"github.com/Lorenzozero/social-automation-hub/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background schedulers without the HTTP API",
	Long: `Run the automation check loop and the follower sync loop as a
standalone process. Useful when the API and the workers are deployed
separately.`,
	Run: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) {
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

	evaluator := services.NewTriggerEvaluator(db, appLogger)
	executor := services.NewActionExecutor(db, appLogger, cfg.Automation.WebhookTimeout, nil)
	automationService := services.NewAutomationService(db, appLogger, evaluator, executor)

	ctx, cancel := context.WithCancel(context.Background())
	scheduler := services.NewScheduler(db, appLogger, automationService, syncService, cfg.Automation.Workers, cfg.Sync.Workers)
	go scheduler.StartAutomationMonitor(ctx, cfg.Automation.CheckInterval)
	go scheduler.StartFollowerSyncMonitor(ctx, cfg.Sync.Interval)

	appLogger.Info("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down worker...")
	cancel()
	appLogger.Info("Worker exited")
}
