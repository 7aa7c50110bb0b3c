package scraper

import (
	"time"

	"go.uber.org/zap"

	"MarketScraper/internal/cache"
	"MarketScraper/internal/model"
	"MarketScraper/internal/source"
	"MarketScraper/internal/stream"
)

// Config describes a Scraper. Zero Capacity and PollInterval take defaults;
// everything else listed in Validate must be set.
type Config struct {
	Symbols        []string
	CacheTTL       time.Duration
	Capacity       int
	PollInterval   time.Duration
	AlertThreshold float64
	// Sources in priority order.
	Sources       []source.Source
	SourceTimeout time.Duration
	Deadline      time.Duration
	HistoryWindow int
	Logger        *zap.Logger
}

// Validate rejects configurations the scraper cannot run with. Errors are
// *model.ConfigError and match model.ErrConfiguration.
func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return &model.ConfigError{Field: "symbols", Reason: "must not be empty"}
	}
	for _, s := range c.Symbols {
		if model.NormalizeSymbol(s) == "" {
			return &model.ConfigError{Field: "symbols", Reason: "must not contain blank entries"}
		}
	}
	if c.CacheTTL <= 0 {
		return &model.ConfigError{Field: "cache_ttl", Reason: "must be positive"}
	}
	if c.Capacity < 0 {
		return &model.ConfigError{Field: "capacity", Reason: "must not be negative"}
	}
	if c.PollInterval < 0 {
		return &model.ConfigError{Field: "poll_interval", Reason: "must not be negative"}
	}
	if c.AlertThreshold <= 0 {
		return &model.ConfigError{Field: "alert_threshold", Reason: "must be positive"}
	}
	if len(c.Sources) == 0 {
		return &model.ConfigError{Field: "sources", Reason: "need at least one source"}
	}
	names := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		if s == nil {
			return &model.ConfigError{Field: "sources", Reason: "must not contain nil"}
		}
		if _, dup := names[s.Name()]; dup {
			return &model.ConfigError{Field: "sources", Reason: "duplicate source " + s.Name()}
		}
		names[s.Name()] = struct{}{}
	}
	if c.SourceTimeout < 0 || c.Deadline < 0 {
		return &model.ConfigError{Field: "timeouts", Reason: "must not be negative"}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Capacity == 0 {
		c.Capacity = cache.DefaultCapacity
	}
	if c.PollInterval == 0 {
		c.PollInterval = stream.DefaultInterval
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
