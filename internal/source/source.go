package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"MarketScraper/internal/model"
)

// Source fetches current prices for a batch of symbols from one venue.
//
// Fetch must return within the ctx deadline. A source that runs out of time
// reports model.ErrSourceTimeout for every requested symbol; a failure on one
// symbol never holds back the others. Results are keyed by normalized symbol.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) map[string]model.SourceResult
}

// FailAll builds a result map in which every symbol failed with err.
func FailAll(source string, symbols []string, err error) map[string]model.SourceResult {
	out := make(map[string]model.SourceResult, len(symbols))
	for _, s := range symbols {
		sym := model.NormalizeSymbol(s)
		out[sym] = model.Failure(source, sym, err)
	}
	return out
}

// ctxErr maps a finished context onto the source error taxonomy.
func ctxErr(source string, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", model.ErrSourceTimeout, source)
	}
	return fmt.Errorf("%w: %s: %v", model.ErrSourceUnavailable, source, ctx.Err())
}

// New returns a bundled simulated source by name.
func New(name string, opts ...SimOption) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "coingecko":
		return NewCoinGecko(opts...), nil
	case "binance":
		return NewBinance(opts...), nil
	default:
		return nil, fmt.Errorf("unknown source %q", name)
	}
}
