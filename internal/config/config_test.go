package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scraper.CacheTTL != 5*time.Second {
		t.Errorf("expected default ttl 5s, got %v", cfg.Scraper.CacheTTL)
	}
	if cfg.Scraper.Capacity != 1000 {
		t.Errorf("expected default capacity 1000, got %d", cfg.Scraper.Capacity)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].Name != "binance" {
		t.Errorf("unexpected default sources %+v", cfg.Sources)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN == "" {
		t.Errorf("unexpected database defaults %+v", cfg.Database)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
scraper:
  symbols: [BTC, ETH]
  cache_ttl: 2s
  poll_interval: 250ms
  alert_threshold: 1.5
sources:
  - name: primary
    kind: http
    base_url: http://localhost:9000
  - name: coingecko
    failure_rate: 0
database:
  driver: postgres
  dsn: postgres://localhost/market
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Scraper.Symbols) != 2 {
		t.Errorf("expected 2 symbols, got %v", cfg.Scraper.Symbols)
	}
	if cfg.Scraper.CacheTTL != 2*time.Second || cfg.Scraper.PollInterval != 250*time.Millisecond {
		t.Errorf("unexpected durations %v / %v", cfg.Scraper.CacheTTL, cfg.Scraper.PollInterval)
	}
	if cfg.Sources[0].EffectiveKind() != "http" || cfg.Sources[1].EffectiveKind() != "coingecko" {
		t.Errorf("unexpected source kinds %+v", cfg.Sources)
	}
	if cfg.Sources[1].FailureRate == nil || *cfg.Sources[1].FailureRate != 0 {
		t.Error("expected explicit zero failure rate to be kept")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "scraper:\n  symbols: [BTC]\n")
	t.Setenv("SCRAPER_SYMBOLS", "sol, doge")
	t.Setenv("SCRAPER_CACHE_TTL", "750ms")
	t.Setenv("SCRAPER_ALERT_THRESHOLD", "3.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Scraper.Symbols) != 2 || cfg.Scraper.Symbols[1] != "doge" {
		t.Errorf("expected env symbols, got %v", cfg.Scraper.Symbols)
	}
	if cfg.Scraper.CacheTTL != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %v", cfg.Scraper.CacheTTL)
	}
	if cfg.Scraper.AlertThreshold != 3.5 {
		t.Errorf("expected 3.5, got %v", cfg.Scraper.AlertThreshold)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("expected 2 brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Log.Level)
	}
}

func TestLoad_ExplicitZeroIsRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"threshold", "scraper:\n  alert_threshold: 0\n"},
		{"cache ttl", "scraper:\n  cache_ttl: 0s\n"},
		{"capacity", "scraper:\n  capacity: 0\n"},
		{"no sources", "sources: []\n"},
	}
	for _, tt := range tests {
		cfg, err := Load(writeConfig(t, tt.body))
		if err != nil {
			t.Fatalf("%s: unexpected load error: %v", tt.name, err)
		}
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: explicit zero was accepted (threshold=%v ttl=%v capacity=%d)",
				tt.name, cfg.Scraper.AlertThreshold, cfg.Scraper.CacheTTL, cfg.Scraper.Capacity)
		}
	}

	t.Setenv("SCRAPER_ALERT_THRESHOLD", "0")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("explicit zero threshold from env was accepted")
	}
}

func TestLoad_PartialSectionKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "scraper:\n  symbols: [BTC]\ndatabase:\n  driver: postgres\n  dsn: postgres://db/market\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scraper.AlertThreshold != 2 || cfg.Scraper.CacheTTL != 5*time.Second {
		t.Errorf("absent keys lost their defaults: threshold=%v ttl=%v", cfg.Scraper.AlertThreshold, cfg.Scraper.CacheTTL)
	}
	if cfg.Database.DSN != "postgres://db/market" {
		t.Errorf("unexpected dsn %q", cfg.Database.DSN)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Setenv("SCRAPER_POLL_INTERVAL", "soon")
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected error for unparsable duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Sources = []SourceConfig{{Name: "kraken"}} }},
		{"http without url", func(c *Config) { c.Sources = []SourceConfig{{Name: "rest", Kind: "http"}} }},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }},
		{"negative threshold", func(c *Config) { c.Scraper.AlertThreshold = -1 }},
		{"zero capacity", func(c *Config) { c.Scraper.Capacity = 0 }},
		{"zero poll interval", func(c *Config) { c.Scraper.PollInterval = 0 }},
	}
	for _, tt := range tests {
		cfg := &Config{}
		applyDefaults(cfg)
		applyDerived(cfg)
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}
