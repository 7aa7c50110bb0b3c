package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"MarketScraper/internal/model"
)

// Static returns controllable fixed prices for development and testing.
type Static struct {
	name string

	mu     sync.Mutex
	prices map[string]decimal.Decimal
	delay  time.Duration
	err    error
	calls  [][]string
}

// NewStatic creates a static source with the given prices.
func NewStatic(name string, prices map[string]float64) *Static {
	s := &Static{name: name, prices: make(map[string]decimal.Decimal, len(prices))}
	for sym, p := range prices {
		s.prices[model.NormalizeSymbol(sym)] = decimal.NewFromFloat(p)
	}
	return s
}

func (s *Static) Name() string {
	if s.name == "" {
		return "static"
	}
	return s.name
}

// SetPrice changes (or adds) the quote for symbol.
func (s *Static) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	s.prices[model.NormalizeSymbol(symbol)] = decimal.NewFromFloat(price)
	s.mu.Unlock()
}

// SetDelay makes every Fetch wait before answering.
func (s *Static) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// SetError makes every symbol fail with err. nil restores normal answers.
func (s *Static) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Calls returns the symbol batches seen so far, one entry per Fetch.
func (s *Static) Calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}

func (s *Static) Fetch(ctx context.Context, symbols []string) map[string]model.SourceResult {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), symbols...))
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return FailAll(s.Name(), symbols, ctxErr(s.Name(), ctx))
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return FailAll(s.Name(), symbols, s.err)
	}
	now := time.Now()
	out := make(map[string]model.SourceResult, len(symbols))
	for _, raw := range symbols {
		sym := model.NormalizeSymbol(raw)
		price, ok := s.prices[sym]
		if !ok {
			out[sym] = model.Failure(s.Name(), sym, fmt.Errorf("%w: no quote for %s", model.ErrSourceUnavailable, sym))
			continue
		}
		out[sym] = model.Success(model.PriceTick{
			Symbol:    sym,
			Price:     price,
			Timestamp: now,
			Source:    s.Name(),
		})
	}
	return out
}
