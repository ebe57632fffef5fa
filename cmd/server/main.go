package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Lorenzozero/social-automation-hub/internal/cache"
	"github.com/Lorenzozero/social-automation-hub/internal/config"
	"github.com/Lorenzozero/social-automation-hub/internal/handlers"
	"github.com/Lorenzozero/social-automation-hub/internal/models"
	"github.com/Lorenzozero/social-automation-hub/internal/observability"
	"github.com/Lorenzozero/social-automation-hub/internal/platform"
	"github.com/Lorenzozero/social-automation-hub/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	// 读取配置文件（默认 ./config.yml）并初始化日志
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	// 允许通过 flags/env 覆盖数据库连接与监听地址
	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(os.Stdout)
	flagDSN := flagSet.String("dsn", os.Getenv("DB_DSN"), "Postgres DSN, if set overrides other DB settings")
	srvHost := flagSet.String("host", getenvDefault("HUB_HOST", cfg.Server.Host), "server host (listen)")
	srvPort := flagSet.Int("port", 0, "server port (listen), 0 means config value")
	_ = flagSet.Parse(os.Args[1:])

	dsn := *flagDSN
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
			cfg.Database.Port, getenvDefault("DB_SSLMODE", "disable"))
	}

	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	// OpenTelemetry 初始化（可选）
	shutdownOTel, err := observability.SetupTracing(context.Background(), cfg)
	if err != nil {
		appLogger.Warnf("init tracing: %v", err)
	} else {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(
		&models.SocialAccount{}, &models.OAuthToken{}, &models.MetricsSnapshot{}, &models.FollowerChange{},
		&models.Automation{}, &models.AutomationRun{}, &models.Consent{}, &models.ApprovalRequest{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// 变动缓存后端
	var changeCache cache.ChangeCache
	switch cfg.Cache.Driver {
	case "redis":
		redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		rc, err := cache.NewRedisCache(redisAddr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.LocalSize, cfg.Sync.UserCacheTTL)
		if err != nil {
			appLogger.Fatalf("Failed to connect to redis: %v", err)
		}
		changeCache = rc
	default:
		changeCache = cache.NewMemoryCache(cfg.Cache.MemoryEntries, cfg.Sync.UserCacheTTL)
	}

	// 业务服务
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

	// 后台调度
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler := services.NewScheduler(db, appLogger, automationService, syncService, cfg.Automation.Workers, cfg.Sync.Workers)
	go scheduler.StartAutomationMonitor(ctx, cfg.Automation.CheckInterval)
	go scheduler.StartFollowerSyncMonitor(ctx, cfg.Sync.Interval)

	// 初始化 Gin
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddlewareWithConfig(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	// 健康检查
	handlers.RegisterHealthRoutes(r, handlers.NewHealthHandler(db, appLogger))

	// API 路由组
	api := r.Group("/api")
	handlers.RegisterAutomationRoutes(api, handlers.NewAutomationHandler(automationService, appLogger))
	handlers.RegisterFollowerRoutes(api, handlers.NewFollowerHandler(syncService, appLogger))
	handlers.RegisterMetricsRoutes(api, handlers.NewMetricsHandler(metricsService, appLogger))

	// 启动服务器
	host := *srvHost
	if host == "" {
		host = cfg.Server.Host
	}
	port := *srvPort
	if port == 0 {
		port = cfg.Server.Port
	}
	listenAddr := fmt.Sprintf("%s:%d", host, port)

	srv := &http.Server{Addr: listenAddr, Handler: r}
	go func() {
		appLogger.Infof("Starting server on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// corsMiddlewareWithConfig CORS 中间件
func corsMiddlewareWithConfig(cfg *config.Config) gin.HandlerFunc {
	allowedOrigins := "*"
	allowedMethods := "GET, POST, PUT, DELETE, OPTIONS"
	allowedHeaders := "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization"
	if cfg != nil && cfg.Security.CORS.Enabled {
		if len(cfg.Security.CORS.AllowedOrigins) > 0 {
			allowedOrigins = strings.Join(cfg.Security.CORS.AllowedOrigins, ", ")
		}
		if len(cfg.Security.CORS.AllowedMethods) > 0 {
			allowedMethods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
		}
		if len(cfg.Security.CORS.AllowedHeaders) > 0 {
			allowedHeaders = strings.Join(cfg.Security.CORS.AllowedHeaders, ", ")
		}
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigins)
		c.Header("Access-Control-Allow-Methods", allowedMethods)
		c.Header("Access-Control-Allow-Headers", allowedHeaders)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
