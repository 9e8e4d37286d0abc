// Package config loads and validates monitor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Retailer    string            `mapstructure:"retailer"`
	Zips        []string          `mapstructure:"zips"`
	Categories  []CategoryConfig  `mapstructure:"categories"`
	Crawl       CrawlConfig       `mapstructure:"crawl"`
	Validation  ValidateConfig    `mapstructure:"validate"`
	Detect      DetectConfig      `mapstructure:"detect"`
	Snapshot    SnapshotConfig    `mapstructure:"snapshot"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	DB          DBConfig          `mapstructure:"db"`
	Server      ServerConfig      `mapstructure:"server"`
	Healthcheck HealthcheckConfig `mapstructure:"healthcheck"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CategoryConfig names one category page to crawl.
type CategoryConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// CrawlConfig governs per-cycle crawl behavior.
type CrawlConfig struct {
	Concurrency       int    `mapstructure:"concurrency"`
	PageCap           int    `mapstructure:"page_cap"`
	IntervalMinutes   int    `mapstructure:"interval_minutes"`
	PauseMinMs        int    `mapstructure:"pause_min_ms"`
	PauseMaxMs        int    `mapstructure:"pause_max_ms"`
	StoreTimeoutSec   int    `mapstructure:"store_timeout_seconds"`
	PageTimeoutSec    int    `mapstructure:"page_timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
	BackoffInitialMs  int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int    `mapstructure:"backoff_max_ms"`
	Headless          bool   `mapstructure:"headless"`
	HeadlessParallel  int    `mapstructure:"headless_max_parallel"`
	UserAgent         string `mapstructure:"user_agent"`
	SettleDelayMs     int    `mapstructure:"settle_delay_ms"`
}

// ValidateConfig bounds acceptable prices and quarantine retention.
type ValidateConfig struct {
	MinPriceCents  int64 `mapstructure:"min_price_cents"`
	MaxPriceCents  int64 `mapstructure:"max_price_cents"`
	QuarantineDays int   `mapstructure:"quarantine_days"`
}

// DetectConfig controls alert trigger thresholds.
type DetectConfig struct {
	PctDropThreshold float64          `mapstructure:"pct_drop_threshold"`
	AbsoluteDrops    map[string]int64 `mapstructure:"absolute_drops_cents"`
}

// SnapshotConfig locates the published CSV and its optional mirror.
type SnapshotConfig struct {
	Path      string `mapstructure:"path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// AlertsConfig selects notification channels. All empty means log-only.
type AlertsConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
	PubSubProject  string `mapstructure:"pubsub_project"`
	PubSubTopic    string `mapstructure:"pubsub_topic"`
}

// DBConfig controls access to Postgres. Empty DSN selects the in-memory store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int    `mapstructure:"max_conns"`
	MinConns     int    `mapstructure:"min_conns"`
	ConnLifetime int    `mapstructure:"conn_lifetime_minutes"`
}

// ServerConfig controls the operational HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// HealthcheckConfig points at a dead-man's-switch URL pinged after ok cycles.
type HealthcheckConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLEARANCEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("retailer", "lowes")
	v.SetDefault("crawl.concurrency", 3)
	v.SetDefault("crawl.page_cap", 20)
	v.SetDefault("crawl.interval_minutes", 60)
	v.SetDefault("crawl.pause_min_ms", 1000)
	v.SetDefault("crawl.pause_max_ms", 4000)
	v.SetDefault("crawl.store_timeout_seconds", 30)
	v.SetDefault("crawl.page_timeout_seconds", 45)
	v.SetDefault("crawl.max_retries", 3)
	v.SetDefault("crawl.backoff_initial_ms", 250)
	v.SetDefault("crawl.backoff_max_ms", 5000)
	v.SetDefault("crawl.headless", true)
	v.SetDefault("crawl.headless_max_parallel", 3)
	v.SetDefault("crawl.user_agent", "clearancewatch/0.1")
	v.SetDefault("crawl.settle_delay_ms", 500)
	v.SetDefault("validate.min_price_cents", 1)
	v.SetDefault("validate.max_price_cents", 10_000_000)
	v.SetDefault("validate.quarantine_days", 14)
	v.SetDefault("detect.pct_drop_threshold", 0.25)
	v.SetDefault("snapshot.path", "data/latest.csv")
	v.SetDefault("snapshot.gcs_prefix", "snapshots")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("healthcheck.timeout_seconds", 10)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Retailer == "" {
		return fmt.Errorf("retailer must be set")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.PageCap <= 0 {
		return fmt.Errorf("crawl.page_cap must be > 0")
	}
	if c.Crawl.PauseMinMs < 0 || c.Crawl.PauseMaxMs < c.Crawl.PauseMinMs {
		return fmt.Errorf("crawl.pause_max_ms must be >= crawl.pause_min_ms >= 0")
	}
	if c.Validation.MinPriceCents <= 0 {
		return fmt.Errorf("validate.min_price_cents must be > 0")
	}
	if c.Validation.MaxPriceCents <= c.Validation.MinPriceCents {
		return fmt.Errorf("validate.max_price_cents must exceed validate.min_price_cents")
	}
	if c.Detect.PctDropThreshold <= 0 || c.Detect.PctDropThreshold >= 1 {
		return fmt.Errorf("detect.pct_drop_threshold must be in (0, 1)")
	}
	if c.Snapshot.Path == "" {
		return fmt.Errorf("snapshot.path must be set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if (c.Alerts.TelegramToken == "") != (c.Alerts.TelegramChatID == "") {
		return fmt.Errorf("alerts.telegram_token and alerts.telegram_chat_id must be set together")
	}
	if (c.Alerts.PubSubProject == "") != (c.Alerts.PubSubTopic == "") {
		return fmt.Errorf("alerts.pubsub_project and alerts.pubsub_topic must be set together")
	}
	return nil
}

// CycleInterval returns the wait between crawl cycles.
func (c Config) CycleInterval() time.Duration {
	return time.Duration(c.Crawl.IntervalMinutes) * time.Minute
}

// QuarantineRetention returns how long quarantine rows are kept.
func (c Config) QuarantineRetention() time.Duration {
	return time.Duration(c.Validation.QuarantineDays) * 24 * time.Hour
}
