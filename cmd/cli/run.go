package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/handlers"
	"github.com/Lorenzozero/social-automation-hub/internal/models"
	"github.com/Lorenzozero/social-automation-hub/internal/platform"
	"github.com/Lorenzozero/social-automation-hub/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the API server with the background schedulers",
	Run:   runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, appLogger, db, err := setup()
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}

	if err := db.AutoMigrate(
		&models.SocialAccount{}, &models.OAuthToken{}, &models.MetricsSnapshot{}, &models.FollowerChange{},
		&models.Automation{}, &models.AutomationRun{}, &models.Consent{}, &models.ApprovalRequest{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
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
	metricsService := services.NewMetricsService(db, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	scheduler := services.NewScheduler(db, appLogger, automationService, syncService, cfg.Automation.Workers, cfg.Sync.Workers)
	go scheduler.StartAutomationMonitor(ctx, cfg.Automation.CheckInterval)
	go scheduler.StartFollowerSyncMonitor(ctx, cfg.Sync.Interval)

	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	handlers.RegisterHealthRoutes(r, handlers.NewHealthHandler(db, appLogger))
	api := r.Group("/api")
	handlers.RegisterAutomationRoutes(api, handlers.NewAutomationHandler(automationService, appLogger))
	handlers.RegisterFollowerRoutes(api, handlers.NewFollowerHandler(syncService, appLogger))
	handlers.RegisterMetricsRoutes(api, handlers.NewMetricsHandler(metricsService, appLogger))

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}
	go func() {
		appLogger.Infof("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}
