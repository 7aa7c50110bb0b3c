package source_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"MarketScraper/internal/model"
	"MarketScraper/internal/source"
)

func TestSimulated_FetchBatch(t *testing.T) {
	src := source.NewBinance(source.WithSeed(1), source.WithFailureRate(0), source.WithLatency(0, 0))

	res := src.Fetch(context.Background(), []string{"btc", "ETH", "NOPE"})
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	for _, sym := range []string{"BTC", "ETH"} {
		r := res[sym]
		if !r.OK() {
			t.Fatalf("%s: unexpected error %v", sym, r.Err)
		}
		if err := r.Tick.Validate(); err != nil {
			t.Errorf("%s: invalid tick: %v", sym, err)
		}
		if !r.Tick.Bid.Valid || !r.Tick.Ask.Valid {
			t.Errorf("%s: expected bid/ask from binance", sym)
		}
		if r.Tick.Source != "binance" {
			t.Errorf("%s: expected source binance, got %s", sym, r.Tick.Source)
		}
	}
	if !errors.Is(res["NOPE"].Err, model.ErrSourceUnavailable) {
		t.Errorf("expected unknown symbol to be unavailable, got %v", res["NOPE"].Err)
	}
}

func TestSimulated_CoinGeckoFields(t *testing.T) {
	src := source.NewCoinGecko(source.WithSeed(7), source.WithFailureRate(0), source.WithLatency(0, 0))
	r := src.Fetch(context.Background(), []string{"SOL"})["SOL"]
	if !r.OK() {
		t.Fatalf("unexpected error %v", r.Err)
	}
	if !r.Tick.Volume24h.Valid || !r.Tick.Change24h.Valid {
		t.Error("expected 24h volume and change from coingecko")
	}
	if r.Tick.Bid.Valid {
		t.Error("coingecko does not quote bid")
	}
}

func TestSimulated_PricesStayPositive(t *testing.T) {
	src := source.NewCoinGecko(source.WithSeed(3), source.WithFailureRate(0), source.WithLatency(0, 0),
		source.WithBasePrices(map[string]float64{"SHIB": 0.000022}))
	for i := 0; i < 500; i++ {
		r := src.Fetch(context.Background(), []string{"SHIB"})["SHIB"]
		if !r.OK() || !r.Tick.Price.IsPositive() {
			t.Fatalf("iteration %d: bad result %+v", i, r)
		}
	}
}

func TestSimulated_AlwaysFailing(t *testing.T) {
	src := source.NewBinance(source.WithFailureRate(1), source.WithLatency(0, 0))
	res := src.Fetch(context.Background(), []string{"BTC", "ETH"})
	for sym, r := range res {
		if !errors.Is(r.Err, model.ErrSourceUnavailable) {
			t.Errorf("%s: expected unavailable, got %v", sym, r.Err)
		}
	}
}

func TestSimulated_Timeout(t *testing.T) {
	src := source.NewCoinGecko(source.WithLatency(2*time.Second, 3*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := src.Fetch(ctx, []string{"BTC", "ETH"})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("fetch blocked past its deadline: %v", elapsed)
	}
	for sym, r := range res {
		if !errors.Is(r.Err, model.ErrSourceTimeout) {
			t.Errorf("%s: expected timeout, got %v", sym, r.Err)
		}
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"coingecko", "Binance"} {
		if _, err := source.New(name); err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
	if _, err := source.New("kraken"); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestWithName(t *testing.T) {
	src := source.NewBinance(source.WithName("binance-eu"), source.WithFailureRate(0), source.WithLatency(0, 0))
	if src.Name() != "binance-eu" {
		t.Fatalf("expected binance-eu, got %s", src.Name())
	}
	res := src.Fetch(context.Background(), []string{"BTC"})
	if r := res["BTC"]; !r.OK() || r.Tick.Source != "binance-eu" {
		t.Errorf("expected tick from binance-eu, got %+v", r)
	}
	if got := source.NewBinance(source.WithName("")).Name(); got != "binance" {
		t.Errorf("empty name should keep the default, got %s", got)
	}
}

func TestStatic(t *testing.T) {
	src := source.NewStatic("primary", map[string]float64{"BTC": 50000})
	res := src.Fetch(context.Background(), []string{"BTC", "ETH"})
	if !res["BTC"].Tick.Price.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("expected 50000, got %s", res["BTC"].Tick.Price)
	}
	if res["ETH"].OK() {
		t.Error("expected ETH to be missing")
	}

	src.SetError(model.ErrSourceUnavailable)
	if src.Fetch(context.Background(), []string{"BTC"})["BTC"].OK() {
		t.Error("expected forced error")
	}
	if got := len(src.Calls()); got != 2 {
		t.Errorf("expected 2 calls, got %d", got)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/quotes" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"symbol":"BTC","price":"50000.5","bid":"50000","ask":"50001","timestamp":1700000000},
			{"symbol":"ETH","price":0}
		]`))
	}))
	defer srv.Close()

	src := source.NewHTTPSource("rest", srv.URL, "k", "")
	res := src.Fetch(context.Background(), []string{"BTC", "ETH", "SOL"})

	btc := res["BTC"]
	if !btc.OK() {
		t.Fatalf("unexpected BTC error: %v", btc.Err)
	}
	if !btc.Tick.Price.Equal(decimal.RequireFromString("50000.5")) {
		t.Errorf("expected 50000.5, got %s", btc.Tick.Price)
	}
	if spread, ok := btc.Tick.Spread(); !ok || !spread.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected spread 1, got %s (%v)", spread, ok)
	}
	if !btc.Tick.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected timestamp %v", btc.Tick.Timestamp)
	}
	if !errors.Is(res["ETH"].Err, model.ErrSourceUnavailable) {
		t.Errorf("expected zero price rejected, got %v", res["ETH"].Err)
	}
	if !errors.Is(res["SOL"].Err, model.ErrSourceUnavailable) {
		t.Errorf("expected missing quote unavailable, got %v", res["SOL"].Err)
	}
}

func TestHTTPSource_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := source.NewHTTPSource("rest", srv.URL, "", "").Fetch(context.Background(), []string{"BTC"})
	if !errors.Is(res["BTC"].Err, model.ErrSourceUnavailable) {
		t.Errorf("expected unavailable, got %v", res["BTC"].Err)
	}
}

func TestHTTPSource_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res := source.NewHTTPSource("rest", srv.URL, "", "").Fetch(ctx, []string{"BTC"})
	if !errors.Is(res["BTC"].Err, model.ErrSourceTimeout) {
		t.Errorf("expected timeout, got %v", res["BTC"].Err)
	}
}
