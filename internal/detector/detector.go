package detector

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"MarketScraper/internal/calculator"
	"MarketScraper/internal/model"
)

const DefaultWindow = 20

var hundred = decimal.NewFromInt(100)

// ErrNoHistory is returned by the statistics helpers for unseen symbols.
var ErrNoHistory = errors.New("no price history for symbol")

// Option tweaks a Detector.
type Option func(*Detector)

// WithWindow sets how many recent prices are kept per symbol.
func WithWindow(n int) Option {
	return func(d *Detector) {
		if n > 1 {
			d.window = n
		}
	}
}

// Detector turns a stream of ticks into threshold alerts. Alerts are edge
// triggered: each one moves the symbol's baseline to the alerting price, so a
// sustained move alerts once rather than on every tick.
type Detector struct {
	threshold decimal.Decimal
	window    int

	mu        sync.Mutex
	baselines map[string]model.PriceTick
	history   map[string][]float64
}

// New creates a detector alerting on moves of at least thresholdPercent.
func New(thresholdPercent float64, opts ...Option) *Detector {
	d := &Detector{
		threshold: decimal.NewFromFloat(thresholdPercent),
		window:    DefaultWindow,
		baselines: make(map[string]model.PriceTick),
		history:   make(map[string][]float64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Observe feeds one tick. The first tick of a symbol only sets its baseline.
func (d *Detector) Observe(tick model.PriceTick) (model.Alert, bool) {
	if tick.Validate() != nil {
		return model.Alert{}, false
	}
	sym := model.NormalizeSymbol(tick.Symbol)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.push(sym, tick.Price.InexactFloat64())

	base, ok := d.baselines[sym]
	if !ok {
		d.baselines[sym] = tick
		return model.Alert{}, false
	}

	change := tick.Price.Sub(base.Price).Div(base.Price).Mul(hundred)
	if change.Abs().LessThan(d.threshold) {
		return model.Alert{}, false
	}

	d.baselines[sym] = tick
	dir := model.DirectionUp
	if change.IsNegative() {
		dir = model.DirectionDown
	}
	return model.Alert{
		Symbol:        sym,
		PreviousPrice: base.Price,
		CurrentPrice:  tick.Price,
		ChangePercent: change.Round(4).InexactFloat64(),
		Direction:     dir,
		Source:        tick.Source,
		Timestamp:     tick.Timestamp,
	}, true
}

func (d *Detector) push(sym string, price float64) {
	h := append(d.history[sym], price)
	if len(h) > d.window {
		h = h[len(h)-d.window:]
	}
	d.history[sym] = h
}

// Baseline returns the price the next change is measured against.
func (d *Detector) Baseline(symbol string) (decimal.Decimal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.baselines[model.NormalizeSymbol(symbol)]
	return t.Price, ok
}

// History returns a copy of the recent price window, oldest first.
func (d *Detector) History(symbol string) []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.history[model.NormalizeSymbol(symbol)]...)
}

// MovingAverage is the SMA of the last period prices. period <= 0 means the
// whole window.
func (d *Detector) MovingAverage(symbol string, period int) (float64, error) {
	h := d.History(symbol)
	if len(h) == 0 {
		return 0, ErrNoHistory
	}
	if period <= 0 || period > len(h) {
		period = len(h)
	}
	return calculator.CalculateSMA(h, period)
}

// Volatility is the standard deviation of period returns over the window, in percent.
func (d *Detector) Volatility(symbol string) (float64, error) {
	h := d.History(symbol)
	if len(h) == 0 {
		return 0, ErrNoHistory
	}
	return calculator.CalculateVolatility(h)
}

// Position places price within the window's low..high range, 0 at the low
// and 1 at the high. Prices outside the range are clamped.
func (d *Detector) Position(symbol string, price float64) (float64, error) {
	high, low, err := d.Range(symbol)
	if err != nil {
		return 0, err
	}
	return calculator.CalculatePosition(price, high, low)
}

// RSI is the relative strength index of the window over period observations.
// A non-positive period uses the whole window.
func (d *Detector) RSI(symbol string, period int) (float64, error) {
	h := d.History(symbol)
	if len(h) < 2 {
		return 0, ErrNoHistory
	}
	if period <= 0 || period >= len(h) {
		period = len(h) - 1
	}
	return calculator.CalculateRSI(h, period)
}

// Range returns the window high and low.
func (d *Detector) Range(symbol string) (high, low float64, err error) {
	h := d.History(symbol)
	if len(h) == 0 {
		return 0, 0, ErrNoHistory
	}
	return calculator.CalculateRange(h)
}

// Reset forgets a symbol's baseline and history.
func (d *Detector) Reset(symbol string) {
	sym := model.NormalizeSymbol(symbol)
	d.mu.Lock()
	delete(d.baselines, sym)
	delete(d.history, sym)
	d.mu.Unlock()
}
