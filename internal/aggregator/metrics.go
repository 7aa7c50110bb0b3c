package aggregator

import (
	"errors"
	"time"

	"MarketScraper/internal/cache"
	"MarketScraper/internal/model"
)

// SourceMetrics is a snapshot of one source's counters.
type SourceMetrics struct {
	Source       string  `json:"source"`
	Requests     uint64  `json:"requests"`
	Errors       uint64  `json:"errors"`
	Timeouts     uint64  `json:"timeouts"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

type sourceStats struct {
	requests   uint64
	errors     uint64
	timeouts   uint64
	avgLatency float64
	sampled    bool
}

func (a *Aggregator) record(name string, symbols []string, results map[string]model.SourceResult, latency time.Duration) {
	var failed, timedOut bool
	for _, sym := range symbols {
		r, ok := results[sym]
		switch {
		case !ok:
			failed = true
		case r.Err == nil:
		case errors.Is(r.Err, model.ErrSourceTimeout):
			timedOut = true
		default:
			failed = true
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.statsFor(name)
	st.requests++
	if failed {
		st.errors++
	}
	if timedOut {
		st.timeouts++
		return
	}
	ms := float64(latency) / float64(time.Millisecond)
	if !st.sampled {
		st.avgLatency = ms
		st.sampled = true
	} else {
		st.avgLatency = latencyAlpha*ms + (1-latencyAlpha)*st.avgLatency
	}
}

func (a *Aggregator) recordTimeout(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.statsFor(name)
	st.requests++
	st.timeouts++
}

func (a *Aggregator) statsFor(name string) *sourceStats {
	st, ok := a.stats[name]
	if !ok {
		st = &sourceStats{}
		a.stats[name] = st
	}
	return st
}

// Metrics returns per-source counters in priority order.
func (a *Aggregator) Metrics() []SourceMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]SourceMetrics, 0, len(a.sources))
	for _, s := range a.sources {
		st := a.statsFor(s.Name())
		out = append(out, SourceMetrics{
			Source:       s.Name(),
			Requests:     st.requests,
			Errors:       st.errors,
			Timeouts:     st.timeouts,
			AvgLatencyMs: st.avgLatency,
		})
	}
	return out
}

// CacheStats exposes the shared cache counters.
func (a *Aggregator) CacheStats() cache.Stats { return a.cache.Stats() }
