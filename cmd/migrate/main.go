package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Lorenzozero/social-automation-hub/internal/config"
	"github.com/Lorenzozero/social-automation-hub/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.SocialAccount{},
		&models.OAuthToken{},
		&models.MetricsSnapshot{},
		&models.FollowerChange{},
		&models.Automation{},
		&models.AutomationRun{},
		&models.Consent{},
		&models.ApprovalRequest{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	// 创建复合索引
	log.Println("Creating additional indexes...")

	db.Exec("CREATE INDEX IF NOT EXISTS idx_runs_automation_triggered ON automation_runs(automation_id, triggered_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_runs_status ON automation_runs(status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_accounts_platform_status ON social_accounts(platform, status)")

	log.Println("Additional indexes created successfully!")
	log.Println("Migration process completed!")
}
