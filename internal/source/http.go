package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"MarketScraper/internal/model"
)

// HTTPSource reads quotes from a REST endpoint of the shape
// GET {BaseURL}/api/v1/quotes?symbols=BTC,ETH.
type HTTPSource struct {
	SourceName string
	BaseURL    string
	APIKey     string
	Client     *http.Client
}

// NewHTTPSource creates a source with optional proxy support.
func NewHTTPSource(name, baseURL, apiKey, proxyURL string) *HTTPSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &HTTPSource{
		SourceName: name,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *HTTPSource) Name() string {
	if f.SourceName == "" {
		return "http"
	}
	return f.SourceName
}

// quote is the expected JSON shape of one entry.
type quote struct {
	Symbol    string              `json:"symbol"`
	Price     decimal.Decimal     `json:"price"`
	Bid       decimal.NullDecimal `json:"bid"`
	Ask       decimal.NullDecimal `json:"ask"`
	Volume24h decimal.NullDecimal `json:"volume_24h"`
	Change24h decimal.NullDecimal `json:"change_24h"`
	Timestamp int64               `json:"timestamp"`
}

func (f *HTTPSource) Fetch(ctx context.Context, symbols []string) map[string]model.SourceResult {
	quotes, err := f.fetchQuotes(ctx, symbols)
	if err != nil {
		if ctx.Err() != nil {
			return FailAll(f.Name(), symbols, ctxErr(f.Name(), ctx))
		}
		return FailAll(f.Name(), symbols, fmt.Errorf("%w: %s: %v", model.ErrSourceUnavailable, f.Name(), err))
	}

	bySymbol := make(map[string]quote, len(quotes))
	for _, q := range quotes {
		bySymbol[model.NormalizeSymbol(q.Symbol)] = q
	}

	now := time.Now()
	out := make(map[string]model.SourceResult, len(symbols))
	for _, raw := range symbols {
		sym := model.NormalizeSymbol(raw)
		q, ok := bySymbol[sym]
		if !ok {
			out[sym] = model.Failure(f.Name(), sym, fmt.Errorf("%w: %s returned no quote for %s", model.ErrSourceUnavailable, f.Name(), sym))
			continue
		}
		ts := now
		if q.Timestamp > 0 {
			ts = time.Unix(q.Timestamp, 0)
		}
		tick := model.PriceTick{
			Symbol:    sym,
			Price:     q.Price,
			Bid:       q.Bid,
			Ask:       q.Ask,
			Volume24h: q.Volume24h,
			Change24h: q.Change24h,
			Timestamp: ts,
			Source:    f.Name(),
		}
		if err := tick.Validate(); err != nil {
			out[sym] = model.Failure(f.Name(), sym, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err))
			continue
		}
		out[sym] = model.Success(tick)
	}
	return out
}

func (f *HTTPSource) fetchQuotes(ctx context.Context, symbols []string) ([]quote, error) {
	norm := make([]string, len(symbols))
	for i, s := range symbols {
		norm[i] = model.NormalizeSymbol(s)
	}
	endpoint := fmt.Sprintf("%s/api/v1/quotes?symbols=%s", f.BaseURL, url.QueryEscape(strings.Join(norm, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch quotes: status %d, body: %s", resp.StatusCode, string(body))
	}
	var quotes []quote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, fmt.Errorf("decode quotes: %w", err)
	}
	if quotes == nil {
		return nil, errors.New("empty quote list")
	}
	return quotes, nil
}
