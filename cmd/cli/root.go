package main

import (
	"fmt"
	"os"

	"github.com/Lorenzozero/social-automation-hub/internal/cache"
	"github.com/Lorenzozero/social-automation-hub/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "automation-hub",
	Short: "Social automation hub command line tools",
	Long: `Command line tools for the social automation hub:
background workers, one-shot follower syncs and maintenance tasks.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error if it's not explicitly set
		} else {
			fmt.Println("Error reading config file:", err)
		}
	}
}

func main() {
	Execute()
}

// setup 加载配置、初始化日志并连接数据库（各子命令共用）
func setup() (*config.Config, *logrus.Logger, *gorm.DB, error) {
	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, appLogger, db, nil
}

func buildCache(cfg *config.Config) (cache.ChangeCache, error) {
	if cfg.Cache.Driver == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		return cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.LocalSize, cfg.Sync.UserCacheTTL)
	}
	return cache.NewMemoryCache(cfg.Cache.MemoryEntries, cfg.Sync.UserCacheTTL), nil
}
