package source

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"MarketScraper/internal/model"
)

var coinGeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"DOGE":  "dogecoin",
	"SHIB":  "shiba-inu",
	"ADA":   "cardano",
	"SOL":   "solana",
	"MATIC": "matic-network",
	"AVAX":  "avalanche-2",
	"XRP":   "ripple",
	"DOT":   "polkadot",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"LTC":   "litecoin",
	"ATOM":  "cosmos",
	"NEAR":  "near",
	"APT":   "aptos",
}

// NewCoinGecko simulates an aggregator-style venue: slower, but quotes carry
// 24h volume and 24h change.
func NewCoinGecko(opts ...SimOption) *Simulated {
	return NewSimulated(Profile{
		Name:        "coingecko",
		SymbolMap:   coinGeckoIDs,
		MinLatency:  120 * time.Millisecond,
		MaxLatency:  350 * time.Millisecond,
		FailureRate: 0.05,
		Step:        0.004,
		Decorate: func(tick *model.PriceTick, price float64, rng *rand.Rand) {
			units := 1e5 + rng.Float64()*9.9e6
			tick.Volume24h = decimal.NewNullDecimal(decimal.NewFromFloat(price * units).Round(2))
			tick.Change24h = decimal.NewNullDecimal(decimal.NewFromFloat(rng.Float64()*16 - 8).Round(4))
		},
	}, opts...)
}
