package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	FeedsFile      string `mapstructure:"feeds_file"`
	PublishersFile string `mapstructure:"publishers_file"`

	RecordsPath string `mapstructure:"records_path"`
	StorageType string `mapstructure:"storage_type"`
	VisitedPath string `mapstructure:"visited_path"`

	MaxPagesPerFeed int `mapstructure:"max_pages_per_feed"`
	MaxTotalItems   int `mapstructure:"max_total_items"`
	WorkerCount     int `mapstructure:"worker_count"`
	BatchSize       int `mapstructure:"batch_size"`

	RetryAttempts         int           `mapstructure:"retry_attempts"`
	RetryDelaySeconds     int64         `mapstructure:"retry_delay_seconds"`
	RetryJitterMinSeconds int64         `mapstructure:"retry_jitter_min_seconds"`
	RetryJitterMaxSeconds int64         `mapstructure:"retry_jitter_max_seconds"`
	RequestTimeoutSeconds int64         `mapstructure:"request_timeout_seconds"`
	PageCooldownSeconds   int64         `mapstructure:"page_cooldown_seconds"`
	RetryDelay            time.Duration `mapstructure:"-"`
	RetryJitterMin        time.Duration `mapstructure:"-"`
	RetryJitterMax        time.Duration `mapstructure:"-"`
	RequestTimeout        time.Duration `mapstructure:"-"`
	PageCooldown          time.Duration `mapstructure:"-"`

	UserAgent string `mapstructure:"user_agent"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "autovista-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("feeds_file", "./configs/feeds.yaml")
	v.SetDefault("publishers_file", "")
	v.SetDefault("records_path", "./data/listings.csv")
	v.SetDefault("storage_type", "file")
	v.SetDefault("visited_path", "./data/visited.log")
	v.SetDefault("max_pages_per_feed", 510)
	v.SetDefault("max_total_items", 20000)
	v.SetDefault("worker_count", 10)
	v.SetDefault("batch_size", 100)
	v.SetDefault("retry_attempts", 20)
	v.SetDefault("retry_delay_seconds", 10)
	v.SetDefault("retry_jitter_min_seconds", 1)
	v.SetDefault("retry_jitter_max_seconds", 10)
	v.SetDefault("request_timeout_seconds", 10)
	v.SetDefault("page_cooldown_seconds", 10)
	v.SetDefault("user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.RetryDelay = time.Duration(cfg.RetryDelaySeconds) * time.Second
	cfg.RetryJitterMin = time.Duration(cfg.RetryJitterMinSeconds) * time.Second
	cfg.RetryJitterMax = time.Duration(cfg.RetryJitterMaxSeconds) * time.Second
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	cfg.PageCooldown = time.Duration(cfg.PageCooldownSeconds) * time.Second

	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.FeedsFile) == "" {
		return fmt.Errorf("feeds_file must not be empty")
	}
	if strings.TrimSpace(c.RecordsPath) == "" {
		return fmt.Errorf("records_path must not be empty")
	}
	if c.MaxPagesPerFeed <= 0 {
		return fmt.Errorf("invalid max_pages_per_feed (must be positive)")
	}
	if c.MaxTotalItems <= 0 {
		return fmt.Errorf("invalid max_total_items (must be positive)")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("invalid worker_count (must be positive)")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid batch_size (must be positive)")
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("invalid retry_attempts (must be positive)")
	}
	if c.RetryDelaySeconds < 0 || c.RetryJitterMinSeconds < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.RetryJitterMaxSeconds < c.RetryJitterMinSeconds {
		return fmt.Errorf("retry_jitter_max_seconds must be >= retry_jitter_min_seconds")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid request_timeout_seconds (must be positive)")
	}
	if c.PageCooldownSeconds <= 0 {
		return fmt.Errorf("invalid page_cooldown_seconds (must be positive)")
	}
	return nil
}
