package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is one priced observation of a symbol. Ticks are values: a newer
// tick replaces an older one, nothing mutates a tick after creation.
type PriceTick struct {
	Symbol    string              `json:"symbol"`
	Price     decimal.Decimal     `json:"price"`
	Bid       decimal.NullDecimal `json:"bid"`
	Ask       decimal.NullDecimal `json:"ask"`
	Volume24h decimal.NullDecimal `json:"volume_24h"`
	Change24h decimal.NullDecimal `json:"change_24h"`
	Timestamp time.Time           `json:"timestamp"`
	Source    string              `json:"source"`
	// Stale marks a tick served past its TTL because no source answered.
	Stale bool `json:"stale"`
}

// NormalizeSymbol returns the canonical upper-case form of a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Validate reports whether the tick may leave a component.
func (t PriceTick) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("tick: empty symbol")
	}
	if !t.Price.IsPositive() {
		return fmt.Errorf("tick %s: price must be positive, got %s", t.Symbol, t.Price)
	}
	return nil
}

// Age returns how old the tick is relative to now.
func (t PriceTick) Age(now time.Time) time.Duration {
	return now.Sub(t.Timestamp)
}

// Spread returns ask - bid when both sides are quoted.
func (t PriceTick) Spread() (decimal.Decimal, bool) {
	if !t.Bid.Valid || !t.Ask.Valid {
		return decimal.Zero, false
	}
	return t.Ask.Decimal.Sub(t.Bid.Decimal), true
}

// WithStale returns a copy tagged as degraded-mode data.
func (t PriceTick) WithStale() PriceTick {
	t.Stale = true
	return t
}

// SourceResult is the outcome of one source for one symbol in one round.
type SourceResult struct {
	Symbol string
	Source string
	Tick   PriceTick
	Err    error
}

// OK reports whether the result carries a usable tick.
func (r SourceResult) OK() bool { return r.Err == nil }

// Success wraps a tick as a successful result.
func Success(tick PriceTick) SourceResult {
	return SourceResult{Symbol: tick.Symbol, Source: tick.Source, Tick: tick}
}

// Failure builds a failed result for symbol.
func Failure(source, symbol string, err error) SourceResult {
	return SourceResult{Symbol: symbol, Source: source, Err: err}
}
