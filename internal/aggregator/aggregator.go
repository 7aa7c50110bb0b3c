package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"MarketScraper/internal/cache"
	"MarketScraper/internal/model"
	"MarketScraper/internal/source"
)

const (
	DefaultSourceTimeout = 2 * time.Second
	DefaultDeadline      = 3 * time.Second

	latencyAlpha = 0.1
)

// Options configures an Aggregator. Zero values take defaults.
type Options struct {
	SourceTimeout time.Duration
	Deadline      time.Duration
	Logger        *zap.Logger
}

// Resolution is the outcome of one Resolve call. A symbol in Ticks may also
// appear in Failed when its tick is a stale fallback.
type Resolution struct {
	Ticks  map[string]model.PriceTick
	Failed map[string]error
}

// Err joins every per-symbol failure, or nil.
func (r Resolution) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for sym, err := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", sym, err))
	}
	return errors.Join(errs...)
}

// Aggregator merges prices from an ordered list of sources through a shared cache.
type Aggregator struct {
	sources       []source.Source
	cache         *cache.TTLCache
	sourceTimeout time.Duration
	deadline      time.Duration
	log           *zap.Logger

	mu    sync.Mutex
	stats map[string]*sourceStats
}

// New creates an aggregator. Sources are tried in the given order.
func New(sources []source.Source, c *cache.TTLCache, opts Options) *Aggregator {
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	a := &Aggregator{
		sources:       sources,
		cache:         c,
		sourceTimeout: opts.SourceTimeout,
		deadline:      opts.Deadline,
		log:           opts.Logger.Named("aggregator"),
		stats:         make(map[string]*sourceStats, len(sources)),
	}
	for _, s := range sources {
		a.stats[s.Name()] = &sourceStats{}
	}
	return a
}

// Sources returns the configured source names in priority order.
func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the best available tick for every symbol. Fresh cache
// entries are served directly; the rest are fetched from all sources at once
// and merged by source priority. Symbols no source could price fall back to
// the last cached value tagged stale, or are left out.
func (a *Aggregator) Resolve(ctx context.Context, symbols []string) Resolution {
	res := Resolution{
		Ticks:  make(map[string]model.PriceTick, len(symbols)),
		Failed: make(map[string]error),
	}

	var misses []string
	seen := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		sym := model.NormalizeSymbol(raw)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		if tick, ok := a.cache.Get(sym); ok {
			res.Ticks[sym] = tick
			continue
		}
		misses = append(misses, sym)
	}
	if len(misses) == 0 {
		return res
	}

	replies, answered := a.fetchAll(ctx, misses)

	for _, sym := range misses {
		var errs []error
		resolved := false
		for i, src := range a.sources {
			r, ok := replies[i][sym]
			switch {
			case !answered[i]:
				errs = append(errs, fmt.Errorf("%w: %s", model.ErrSourceTimeout, src.Name()))
			case !ok:
				errs = append(errs, fmt.Errorf("%w: %s returned nothing", model.ErrSourceUnavailable, src.Name()))
			case r.Err != nil:
				errs = append(errs, r.Err)
			default:
				if err := r.Tick.Validate(); err != nil {
					errs = append(errs, fmt.Errorf("%w: %s: %v", model.ErrSourceUnavailable, src.Name(), err))
					continue
				}
				tick := r.Tick
				tick.Symbol = sym
				a.cache.Put(tick)
				res.Ticks[sym] = tick
				resolved = true
			}
			if resolved {
				break
			}
		}
		if resolved {
			continue
		}

		if tick, fresh, ok := a.cache.Peek(sym); ok {
			if fresh {
				// another caller refreshed it meanwhile
				res.Ticks[sym] = tick
				continue
			}
			res.Ticks[sym] = tick.WithStale()
			a.log.Warn("serving stale price", zap.String("symbol", sym), zap.Time("as_of", tick.Timestamp))
		}
		res.Failed[sym] = errors.Join(append([]error{model.ErrAllSourcesFailed}, errs...)...)
	}
	return res
}

type reply struct {
	idx     int
	results map[string]model.SourceResult
	latency time.Duration
}

// fetchAll sends the batch to every source concurrently and collects whatever
// arrives before the deadline. answered[i] is false when source i did not
// answer in time; a source that answered may still have left symbols out.
func (a *Aggregator) fetchAll(ctx context.Context, symbols []string) (out []map[string]model.SourceResult, answered []bool) {
	ctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	// buffered so late senders never block after we stop listening
	ch := make(chan reply, len(a.sources))
	for i, src := range a.sources {
		go func(i int, src source.Source) {
			sctx, scancel := context.WithTimeout(ctx, a.sourceTimeout)
			defer scancel()
			start := time.Now()
			results := src.Fetch(sctx, symbols)
			ch <- reply{idx: i, results: results, latency: time.Since(start)}
		}(i, src)
	}

	out = make([]map[string]model.SourceResult, len(a.sources))
	answered = make([]bool, len(a.sources))
	pending := len(a.sources)
collect:
	for pending > 0 {
		select {
		case r := <-ch:
			out[r.idx] = r.results
			answered[r.idx] = true
			a.record(a.sources[r.idx].Name(), symbols, r.results, r.latency)
			pending--
		case <-ctx.Done():
			break collect
		}
	}
	for i, src := range a.sources {
		if !answered[i] {
			a.recordTimeout(src.Name())
			a.log.Warn("source missed deadline", zap.String("source", src.Name()), zap.Int("symbols", len(symbols)))
		}
	}
	return out, answered
}

// CompareSources asks every source for symbol, bypassing the cache, and
// returns one tick per source that answered successfully, keyed by source name.
func (a *Aggregator) CompareSources(ctx context.Context, symbol string) map[string]model.PriceTick {
	sym := model.NormalizeSymbol(symbol)
	replies, _ := a.fetchAll(ctx, []string{sym})
	out := make(map[string]model.PriceTick, len(a.sources))
	for i, src := range a.sources {
		r, ok := replies[i][sym]
		if !ok || r.Err != nil || r.Tick.Validate() != nil {
			continue
		}
		out[src.Name()] = r.Tick
	}
	return out
}
