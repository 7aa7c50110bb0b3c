package scraper

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SymbolSummary is one row of MarketSummary.
type SymbolSummary struct {
	Symbol        string              `json:"symbol"`
	Price         decimal.Decimal     `json:"price"`
	Change24h     decimal.NullDecimal `json:"change_24h"`
	Volume24h     decimal.NullDecimal `json:"volume_24h"`
	Source        string              `json:"source"`
	Age           time.Duration       `json:"age"`
	Stale         bool                `json:"stale"`
	MovingAverage *float64            `json:"moving_average,omitempty"`
	Volatility    *float64            `json:"volatility,omitempty"`
	RSI           *float64            `json:"rsi,omitempty"`
	// RangePosition is where Price sits in the window's low..high, 0 to 1.
	RangePosition *float64 `json:"range_position,omitempty"`
}

// MarketSummary prices every configured symbol and attaches the detector's
// window statistics where enough history exists.
func (s *Scraper) MarketSummary(ctx context.Context) []SymbolSummary {
	symbols := s.stream.Symbols()
	ticks := s.agg.Resolve(ctx, symbols).Ticks
	now := time.Now()

	out := make([]SymbolSummary, 0, len(symbols))
	for _, sym := range symbols {
		tick, ok := ticks[sym]
		if !ok {
			continue
		}
		row := SymbolSummary{
			Symbol:    sym,
			Price:     tick.Price,
			Change24h: tick.Change24h,
			Volume24h: tick.Volume24h,
			Source:    tick.Source,
			Age:       tick.Age(now),
			Stale:     tick.Stale,
		}
		if ma, err := s.det.MovingAverage(sym, 0); err == nil {
			row.MovingAverage = &ma
		}
		if vol, err := s.det.Volatility(sym); err == nil {
			row.Volatility = &vol
		}
		if rsi, err := s.det.RSI(sym, 14); err == nil {
			row.RSI = &rsi
		}
		if pos, err := s.det.Position(sym, tick.Price.InexactFloat64()); err == nil {
			row.RangePosition = &pos
		}
		out = append(out, row)
	}
	return out
}
