package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"MarketScraper/internal/model"
)

// DefaultBasePrices seeds the random walk of the simulated venues.
var DefaultBasePrices = map[string]float64{
	"BTC":   98000,
	"ETH":   3400,
	"SOL":   190,
	"DOGE":  0.32,
	"SHIB":  0.000022,
	"ADA":   0.9,
	"MATIC": 0.45,
	"AVAX":  38,
	"XRP":   2.2,
	"DOT":   7,
	"LINK":  22,
	"UNI":   13,
	"LTC":   100,
	"ATOM":  6.5,
	"NEAR":  5,
	"APT":   9,
}

// Profile describes how a simulated venue behaves.
type Profile struct {
	Name string
	// SymbolMap maps a ticker to the venue's own identifier. Unmapped symbols
	// are reported unavailable.
	SymbolMap   map[string]string
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64
	// Step is the largest relative move of one random-walk step.
	Step float64
	// Decorate fills the venue specific fields of a tick. Called with the
	// source lock held, so rng is safe to use.
	Decorate func(tick *model.PriceTick, price float64, rng *rand.Rand)
}

// SimOption adjusts a simulated source.
type SimOption func(*Simulated)

// WithSeed makes the random walk reproducible.
func WithSeed(seed int64) SimOption {
	return func(s *Simulated) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithName overrides the venue name reported on ticks and errors, so two
// sources of the same kind can run side by side.
func WithName(name string) SimOption {
	return func(s *Simulated) {
		if name != "" {
			s.profile.Name = name
		}
	}
}

// WithFailureRate overrides the per-symbol failure probability.
func WithFailureRate(p float64) SimOption {
	return func(s *Simulated) { s.profile.FailureRate = p }
}

// WithLatency overrides the latency distribution.
func WithLatency(lo, hi time.Duration) SimOption {
	return func(s *Simulated) {
		s.profile.MinLatency = lo
		s.profile.MaxLatency = hi
	}
}

// WithBasePrices replaces the starting prices.
func WithBasePrices(prices map[string]float64) SimOption {
	return func(s *Simulated) {
		s.prices = make(map[string]float64, len(prices))
		for k, v := range prices {
			s.prices[model.NormalizeSymbol(k)] = v
		}
	}
}

// Simulated is a synthetic venue: every Fetch waits a random latency and then
// walks each requested price a small random step.
type Simulated struct {
	profile Profile

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	floor  map[string]float64
	now    func() time.Time
}

// NewSimulated builds a source from a profile.
func NewSimulated(p Profile, opts ...SimOption) *Simulated {
	s := &Simulated{
		profile: p,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
	WithBasePrices(DefaultBasePrices)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.floor = make(map[string]float64, len(s.prices))
	for k, v := range s.prices {
		s.floor[k] = v * 0.01
	}
	return s
}

func (s *Simulated) Name() string { return s.profile.Name }

func (s *Simulated) Fetch(ctx context.Context, symbols []string) map[string]model.SourceResult {
	latency := s.latency()
	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return FailAll(s.profile.Name, symbols, ctxErr(s.profile.Name, ctx))
	case <-timer.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make(map[string]model.SourceResult, len(symbols))
	for _, raw := range symbols {
		sym := model.NormalizeSymbol(raw)
		venueID, mapped := s.profile.SymbolMap[sym]
		base, priced := s.prices[sym]
		if !mapped || !priced {
			out[sym] = model.Failure(s.profile.Name, sym,
				fmt.Errorf("%w: %s does not list %s", model.ErrSourceUnavailable, s.profile.Name, sym))
			continue
		}
		if s.rng.Float64() < s.profile.FailureRate {
			out[sym] = model.Failure(s.profile.Name, sym,
				fmt.Errorf("%w: %s request for %s failed", model.ErrSourceUnavailable, s.profile.Name, venueID))
			continue
		}

		price := base * (1 + (s.rng.Float64()*2-1)*s.profile.Step)
		if price < s.floor[sym] {
			price = s.floor[sym]
		}
		s.prices[sym] = price

		tick := model.PriceTick{
			Symbol:    sym,
			Price:     decimal.NewFromFloat(price),
			Timestamp: now,
			Source:    s.profile.Name,
		}
		if s.profile.Decorate != nil {
			s.profile.Decorate(&tick, price, s.rng)
		}
		out[sym] = model.Success(tick)
	}
	return out
}

func (s *Simulated) latency() time.Duration {
	lo, hi := s.profile.MinLatency, s.profile.MaxLatency
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + time.Duration(s.rng.Int63n(int64(hi-lo)))
}
