package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interval bounds for the monitoring ticker, in seconds.
const (
	MinRefreshInterval     = 5
	MaxRefreshInterval     = 300
	DefaultRefreshInterval = 30
)

// Check strategies. PollCurrentPage keeps a live tab per monitored page and
// polls it in place; OpenHiddenTab is the legacy path that spawns a
// short-lived tab per monitored product on every sweep.
const (
	StrategyPollCurrentPage = "poll-current-page"
	StrategyOpenHiddenTab   = "open-hidden-tab"
)

// Config holds all configuration for the daemon.
type Config struct {
	Site     SiteConfig     `mapstructure:"site"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// SiteConfig pins the storefront's URL conventions. The selectors assume a
// single site's markup; these paths are the URL half of that assumption.
type SiteConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	ProductMarker    string `mapstructure:"product_marker"`
	CollectionMarker string `mapstructure:"collection_marker"`
	CartPath         string `mapstructure:"cart_path"`
	CheckoutPath     string `mapstructure:"checkout_path"`
}

// MonitorConfig controls the polling state machine.
type MonitorConfig struct {
	RefreshInterval int           `mapstructure:"refresh_interval"`
	CheckStrategy   string        `mapstructure:"check_strategy"`
	ReloadDelay     time.Duration `mapstructure:"reload_delay"`
}

// CheckoutConfig holds the settle delays of the automation sequence.
type CheckoutConfig struct {
	CartSettleDelay     time.Duration `mapstructure:"cart_settle_delay"`
	CheckoutSettleDelay time.Duration `mapstructure:"checkout_settle_delay"`
	FallbackNavDelay    time.Duration `mapstructure:"fallback_nav_delay"`
}

// BrowserConfig configures the chromedp sessions.
type BrowserConfig struct {
	Headless  bool          `mapstructure:"headless"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	LoadWait  time.Duration `mapstructure:"load_wait"`
}

// FetchConfig configures the plain HTTP fetcher used for listing pre-scans.
type FetchConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// StorageConfig locates the sqlite database.
type StorageConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ServerConfig configures the control API.
type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// LogConfig configures logrus output. When File is set, logs rotate via
// lumberjack in addition to stderr.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from an optional yaml file and RESTOCK_-prefixed
// environment variables, falling back to defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RESTOCK")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://soorploomclothier.com")
	v.SetDefault("site.product_marker", "/products/")
	v.SetDefault("site.collection_marker", "/collections/")
	v.SetDefault("site.cart_path", "/cart")
	v.SetDefault("site.checkout_path", "/checkout")

	v.SetDefault("monitor.refresh_interval", DefaultRefreshInterval)
	v.SetDefault("monitor.check_strategy", StrategyPollCurrentPage)
	v.SetDefault("monitor.reload_delay", "2s")

	v.SetDefault("checkout.cart_settle_delay", "3500ms")
	v.SetDefault("checkout.checkout_settle_delay", "2s")
	v.SetDefault("checkout.fallback_nav_delay", "5s")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.timeout", "30s")
	v.SetDefault("browser.load_wait", "2s")

	v.SetDefault("fetch.requests_per_second", 1.0)
	v.SetDefault("fetch.burst", 3)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.timeout", "30s")

	v.SetDefault("storage.dsn", "restock.sqlite3")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
}

func validate(cfg *Config) error {
	if cfg.Site.BaseURL == "" {
		return fmt.Errorf("site base URL is required (set RESTOCK_SITE_BASE_URL)")
	}

	if cfg.Monitor.CheckStrategy != StrategyPollCurrentPage && cfg.Monitor.CheckStrategy != StrategyOpenHiddenTab {
		return fmt.Errorf("check strategy must be %q or %q, got: %s",
			StrategyPollCurrentPage, StrategyOpenHiddenTab, cfg.Monitor.CheckStrategy)
	}

	if cfg.Monitor.RefreshInterval < MinRefreshInterval || cfg.Monitor.RefreshInterval > MaxRefreshInterval {
		return fmt.Errorf("refresh interval must be between %d and %d seconds, got: %d",
			MinRefreshInterval, MaxRefreshInterval, cfg.Monitor.RefreshInterval)
	}

	return nil
}

// ClampInterval normalizes a requested refresh interval: values below the
// minimum are rejected in favor of the fallback, values above the maximum
// are capped. A non-positive fallback resolves to the default.
func ClampInterval(seconds, fallback int) int {
	if fallback <= 0 {
		fallback = DefaultRefreshInterval
	}
	if seconds < MinRefreshInterval {
		return fallback
	}
	if seconds > MaxRefreshInterval {
		return MaxRefreshInterval
	}
	return seconds
}
