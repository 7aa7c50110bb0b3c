package scraper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"MarketScraper/internal/aggregator"
	"MarketScraper/internal/cache"
	"MarketScraper/internal/detector"
	"MarketScraper/internal/model"
	"MarketScraper/internal/stream"
)

// Scraper owns one cache, aggregator, detector and stream and exposes them
// as a single market data service.
type Scraper struct {
	cfg    Config
	log    *zap.Logger
	cache  *cache.TTLCache
	agg    *aggregator.Aggregator
	det    *detector.Detector
	stream *stream.Stream
}

// New validates cfg and wires the components.
func New(cfg Config) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	c := cache.New(cfg.CacheTTL, cfg.Capacity)
	agg := aggregator.New(cfg.Sources, c, aggregator.Options{
		SourceTimeout: cfg.SourceTimeout,
		Deadline:      cfg.Deadline,
		Logger:        cfg.Logger,
	})
	det := detector.New(cfg.AlertThreshold, detector.WithWindow(cfg.HistoryWindow))
	st := stream.New(agg, det, stream.Options{
		Symbols:  cfg.Symbols,
		Interval: cfg.PollInterval,
		Logger:   cfg.Logger,
	})

	cfg.Logger.Info("scraper ready",
		zap.Strings("symbols", st.Symbols()),
		zap.Strings("sources", agg.Sources()),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Float64("alert_threshold", cfg.AlertThreshold))

	return &Scraper{cfg: cfg, log: cfg.Logger, cache: c, agg: agg, det: det, stream: st}, nil
}

// GetPrices returns the best available tick for each symbol. Symbols no
// source could price and with nothing cached are absent from the map.
func (s *Scraper) GetPrices(ctx context.Context, symbols []string) map[string]model.PriceTick {
	return s.agg.Resolve(ctx, symbols).Ticks
}

// Resolve is GetPrices with the per-symbol failures attached.
func (s *Scraper) Resolve(ctx context.Context, symbols []string) aggregator.Resolution {
	return s.agg.Resolve(ctx, symbols)
}

// GetPrice resolves a single symbol.
func (s *Scraper) GetPrice(ctx context.Context, symbol string) (model.PriceTick, error) {
	sym := model.NormalizeSymbol(symbol)
	res := s.agg.Resolve(ctx, []string{sym})
	tick, ok := res.Ticks[sym]
	if !ok {
		if err, failed := res.Failed[sym]; failed {
			return model.PriceTick{}, err
		}
		return model.PriceTick{}, model.ErrAllSourcesFailed
	}
	return tick, nil
}

// CompareSources returns the current quote of every responding source.
func (s *Scraper) CompareSources(ctx context.Context, symbol string) map[string]model.PriceTick {
	return s.agg.CompareSources(ctx, symbol)
}

func (s *Scraper) Subscribe(h stream.AlertHandler) (string, error) {
	return s.stream.Subscribe(h)
}

func (s *Scraper) SubscribeTicks(h stream.TickHandler) (string, error) {
	return s.stream.SubscribeTicks(h)
}

func (s *Scraper) Unsubscribe(id string) bool {
	return s.stream.Unsubscribe(id)
}

func (s *Scraper) StartStreaming() { s.stream.Start() }

func (s *Scraper) StopStreaming() { s.stream.Stop() }

func (s *Scraper) Streaming() bool { return s.stream.Running() }

// Latest returns the most recent streamed tick for symbol.
func (s *Scraper) Latest(symbol string) (model.PriceTick, bool) {
	return s.stream.Latest(symbol)
}

// LatestAll returns every streamed tick seen so far.
func (s *Scraper) LatestAll() map[string]model.PriceTick {
	return s.stream.LatestAll()
}

// SweepCache drops expired cache entries.
func (s *Scraper) SweepCache() int {
	return s.cache.Sweep()
}

// Symbols is the configured symbol universe.
func (s *Scraper) Symbols() []string {
	return s.stream.Symbols()
}

// Close stops streaming and drops all subscriptions.
func (s *Scraper) Close() {
	s.stream.Stop()
	s.stream.UnsubscribeAll()
}

// Metrics is a combined snapshot of source, cache and stream counters.
type Metrics struct {
	Sources []aggregator.SourceMetrics `json:"sources"`
	Cache   cache.Stats                `json:"cache"`
	Stream  stream.Stats               `json:"stream"`
	TakenAt time.Time                  `json:"taken_at"`
}

func (s *Scraper) Metrics() Metrics {
	return Metrics{
		Sources: s.agg.Metrics(),
		Cache:   s.cache.Stats(),
		Stream:  s.stream.Stats(),
		TakenAt: time.Now(),
	}
}
