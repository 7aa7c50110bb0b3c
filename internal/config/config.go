package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Scraper struct {
		Symbols        []string      `yaml:"symbols"`
		CacheTTL       time.Duration `yaml:"cache_ttl"`
		Capacity       int           `yaml:"capacity"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		AlertThreshold float64       `yaml:"alert_threshold"`
		SourceTimeout  time.Duration `yaml:"source_timeout"`
		Deadline       time.Duration `yaml:"deadline"`
		HistoryWindow  int           `yaml:"history_window"`
	} `yaml:"scraper"`
	Sources  []SourceConfig `yaml:"sources"`
	Schedule struct {
		SweepCron    string `yaml:"sweep_cron"`
		SnapshotCron string `yaml:"snapshot_cron"`
		// ReportCron sends a market summary to Telegram. Empty disables it.
		ReportCron string `yaml:"report_cron"`
	} `yaml:"schedule"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr      string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		Channel   string        `yaml:"channel"`
		KeyPrefix string        `yaml:"key_prefix"`
		TickTTL   time.Duration `yaml:"tick_ttl"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// SourceConfig selects one price source. Order in the list is priority order.
type SourceConfig struct {
	Name string `yaml:"name"`
	// Kind is coingecko, binance or http. Empty means Name.
	Kind        string   `yaml:"kind"`
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	FailureRate *float64 `yaml:"failure_rate"`
	Seed        int64    `yaml:"seed"`
}

// EffectiveKind returns Kind, or Name when Kind is empty.
func (s SourceConfig) EffectiveKind() string {
	if s.Kind != "" {
		return strings.ToLower(s.Kind)
	}
	return strings.ToLower(s.Name)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A .env file in the working directory is loaded first when present.
//
// The file is decoded over a Config that already holds the defaults, so a
// key that is absent keeps its default while a key set explicitly, to zero
// included, is kept as written and left to Validate.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	applyDefaults(cfg)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDerived(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SCRAPER_SYMBOLS"); v != "" {
		cfg.Scraper.Symbols = splitList(v)
	}
	if v := os.Getenv("SCRAPER_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SCRAPER_CACHE_TTL: %w", err)
		}
		cfg.Scraper.CacheTTL = d
	}
	if v := os.Getenv("SCRAPER_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SCRAPER_POLL_INTERVAL: %w", err)
		}
		cfg.Scraper.PollInterval = d
	}
	if v := os.Getenv("SCRAPER_ALERT_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SCRAPER_ALERT_THRESHOLD: %w", err)
		}
		cfg.Scraper.AlertThreshold = f
	}
	if v := os.Getenv("SCRAPER_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SCRAPER_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if len(cfg.Scraper.Symbols) == 0 {
		cfg.Scraper.Symbols = []string{"BTC", "ETH", "SOL", "DOGE", "ADA", "MATIC", "AVAX"}
	}
	if cfg.Scraper.CacheTTL == 0 {
		cfg.Scraper.CacheTTL = 5 * time.Second
	}
	if cfg.Scraper.Capacity == 0 {
		cfg.Scraper.Capacity = 1000
	}
	if cfg.Scraper.PollInterval == 0 {
		cfg.Scraper.PollInterval = time.Second
	}
	if cfg.Scraper.AlertThreshold == 0 {
		cfg.Scraper.AlertThreshold = 2
	}
	if cfg.Scraper.SourceTimeout == 0 {
		cfg.Scraper.SourceTimeout = 2 * time.Second
	}
	if cfg.Scraper.Deadline == 0 {
		cfg.Scraper.Deadline = 3 * time.Second
	}
	if cfg.Scraper.HistoryWindow == 0 {
		cfg.Scraper.HistoryWindow = 20
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = []SourceConfig{{Name: "binance"}, {Name: "coingecko"}}
	}
	if cfg.Schedule.SweepCron == "" {
		cfg.Schedule.SweepCron = "*/30 * * * * *"
	}
	if cfg.Schedule.SnapshotCron == "" {
		cfg.Schedule.SnapshotCron = "0 * * * * *"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "market:alerts"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "market:price:"
	}
	if cfg.Redis.TickTTL == 0 {
		cfg.Redis.TickTTL = time.Minute
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "market-alerts"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// applyDerived fills defaults that depend on other settings.
func applyDerived(cfg *Config) {
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "data/market_scraper.db"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if len(c.Scraper.Symbols) == 0 {
		return fmt.Errorf("scraper.symbols is required")
	}
	if c.Scraper.CacheTTL <= 0 {
		return fmt.Errorf("scraper.cache_ttl must be positive")
	}
	if c.Scraper.AlertThreshold <= 0 {
		return fmt.Errorf("scraper.alert_threshold must be positive")
	}
	if c.Scraper.Capacity <= 0 {
		return fmt.Errorf("scraper.capacity must be positive")
	}
	if c.Scraper.PollInterval <= 0 {
		return fmt.Errorf("scraper.poll_interval must be positive")
	}
	if c.Scraper.SourceTimeout <= 0 || c.Scraper.Deadline <= 0 {
		return fmt.Errorf("scraper.source_timeout and scraper.deadline must be positive")
	}
	if c.Scraper.HistoryWindow <= 0 {
		return fmt.Errorf("scraper.history_window must be positive")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("sources must list at least one source")
	}
	for i, s := range c.Sources {
		switch s.EffectiveKind() {
		case "coingecko", "binance":
		case "http":
			if s.BaseURL == "" {
				return fmt.Errorf("sources[%d].base_url is required for http sources", i)
			}
		default:
			return fmt.Errorf("sources[%d]: unknown kind %q", i, s.EffectiveKind())
		}
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or none")
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for postgres")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
