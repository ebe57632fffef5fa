package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Sync.MaxPages != 50 {
		t.Errorf("max pages = %d, want 50", cfg.Sync.MaxPages)
	}
	if cfg.Sync.PageSize != 1000 {
		t.Errorf("page size = %d, want 1000", cfg.Sync.PageSize)
	}
	if cfg.Automation.WebhookTimeout != 10*time.Second {
		t.Errorf("webhook timeout = %s, want 10s", cfg.Automation.WebhookTimeout)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("cache driver = %s, want memory", cfg.Cache.Driver)
	}
	if cfg.Platform.X.BaseURL == "" {
		t.Error("X base URL must have a default")
	}
}

func TestLoadFromViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("server.port", 9999)
	viper.Set("cache.driver", "redis")
	viper.Set("sync.maxpages", 7)

	cfg := Load()
	if cfg.Server.Port != 9999 {
		t.Errorf("server port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Cache.Driver != "redis" {
		t.Errorf("cache driver = %s, want redis", cfg.Cache.Driver)
	}
	if cfg.Sync.MaxPages != 7 {
		t.Errorf("max pages = %d, want 7", cfg.Sync.MaxPages)
	}
}
