package source

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"MarketScraper/internal/model"
)

var binancePairs = map[string]string{
	"BTC":   "BTCUSDT",
	"ETH":   "ETHUSDT",
	"DOGE":  "DOGEUSDT",
	"SHIB":  "SHIBUSDT",
	"ADA":   "ADAUSDT",
	"SOL":   "SOLUSDT",
	"MATIC": "MATICUSDT",
	"AVAX":  "AVAXUSDT",
	"XRP":   "XRPUSDT",
	"DOT":   "DOTUSDT",
	"LINK":  "LINKUSDT",
	"UNI":   "UNIUSDT",
	"LTC":   "LTCUSDT",
	"ATOM":  "ATOMUSDT",
	"NEAR":  "NEARUSDT",
	"APT":   "APTUSDT",
}

var two = decimal.NewFromInt(2)

// NewBinance simulates an exchange book ticker: fast, quotes bid and ask and
// prices at the mid.
func NewBinance(opts ...SimOption) *Simulated {
	return NewSimulated(Profile{
		Name:        "binance",
		SymbolMap:   binancePairs,
		MinLatency:  20 * time.Millisecond,
		MaxLatency:  80 * time.Millisecond,
		FailureRate: 0.02,
		Step:        0.003,
		Decorate: func(tick *model.PriceTick, price float64, rng *rand.Rand) {
			half := price * (0.0001 + rng.Float64()*0.0004)
			bid := decimal.NewFromFloat(price - half)
			ask := decimal.NewFromFloat(price + half)
			if !bid.IsPositive() {
				bid = tick.Price
			}
			tick.Bid = decimal.NewNullDecimal(bid)
			tick.Ask = decimal.NewNullDecimal(ask)
			tick.Price = bid.Add(ask).Div(two)
		},
	}, opts...)
}
