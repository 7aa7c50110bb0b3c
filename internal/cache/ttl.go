package cache

import (
	"container/list"
	"sync"
	"time"

	"MarketScraper/internal/model"
)

const (
	DefaultCapacity = 1000
	DefaultTTL      = 5 * time.Second
)

type entry struct {
	symbol    string
	tick      model.PriceTick
	expiresAt time.Time
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
}

// Option tweaks a TTLCache at construction.
type Option func(*TTLCache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *TTLCache) {
		if now != nil {
			c.now = now
		}
	}
}

// TTLCache is a bounded symbol -> tick store with per-entry expiry and
// least-recently-used eviction. The list front is the most recently used entry.
//
// Expired entries are not served by Get but stay resident until Sweep or
// eviction removes them, so Peek can still return the last known value.
type TTLCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time

	hits, misses, evictions, expirations uint64
}

// New builds a cache. Non-positive ttl or capacity fall back to defaults.
func New(ttl time.Duration, capacity int, opts ...Option) *TTLCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &TTLCache{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the tick for symbol if present and not yet expired.
// A hit marks the entry as most recently used.
func (c *TTLCache) Get(symbol string) (model.PriceTick, bool) {
	symbol = model.NormalizeSymbol(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[symbol]
	if !ok {
		c.misses++
		return model.PriceTick{}, false
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.misses++
		return model.PriceTick{}, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return e.tick, true
}

// Peek returns the stored tick regardless of expiry and without touching
// recency or counters. The bool reports whether the entry is still fresh.
func (c *TTLCache) Peek(symbol string) (tick model.PriceTick, fresh bool, ok bool) {
	symbol = model.NormalizeSymbol(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[symbol]
	if !found {
		return model.PriceTick{}, false, false
	}
	e := el.Value.(*entry)
	return e.tick, c.now().Before(e.expiresAt), true
}

// Put stores tick under its symbol with a fresh TTL. Inserting a new symbol
// into a full cache evicts the least recently used entry first.
func (c *TTLCache) Put(tick model.PriceTick) {
	symbol := model.NormalizeSymbol(tick.Symbol)
	tick.Symbol = symbol
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[symbol]; ok {
		e := el.Value.(*entry)
		e.tick = tick
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}
	for c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.items[symbol] = c.order.PushFront(&entry{symbol: symbol, tick: tick, expiresAt: expiresAt})
}

func (c *TTLCache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).symbol)
	c.evictions++
}

// Invalidate drops a single symbol. It reports whether anything was removed.
func (c *TTLCache) Invalidate(symbol string) bool {
	symbol = model.NormalizeSymbol(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[symbol]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, symbol)
	return true
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *TTLCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if !now.Before(e.expiresAt) {
			c.order.Remove(el)
			delete(c.items, e.symbol)
			removed++
		}
		el = prev
	}
	c.expirations += uint64(removed)
	return removed
}

// Clear empties the cache. Counters are kept.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.capacity)
}

// Len is the number of resident entries, expired ones included.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats snapshots the counters.
func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Size:        c.order.Len(),
		Capacity:    c.capacity,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
