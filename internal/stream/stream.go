package stream

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"MarketScraper/internal/aggregator"
	"MarketScraper/internal/detector"
	"MarketScraper/internal/model"
)

const DefaultInterval = time.Second

var ErrNilHandler = errors.New("stream: nil handler")

// AlertHandler receives threshold alerts. ctx is cancelled when the stream
// stops; Stop waits for the handler to return.
type AlertHandler func(ctx context.Context, a model.Alert) error

// TickHandler receives ticks whose price changed since the previous cycle.
// It follows the same ctx contract as AlertHandler.
type TickHandler func(ctx context.Context, t model.PriceTick) error

// Resolver is the part of the aggregator the stream polls.
type Resolver interface {
	Resolve(ctx context.Context, symbols []string) aggregator.Resolution
}

// Options configures a Stream.
type Options struct {
	Symbols  []string
	Interval time.Duration
	Logger   *zap.Logger
}

type subscriber struct {
	id      string
	onAlert AlertHandler
	onTick  TickHandler
	busy    atomic.Bool
	removed atomic.Bool
}

// Stats counts stream activity since construction.
type Stats struct {
	Running       bool   `json:"running"`
	Subscribers   int    `json:"subscribers"`
	Cycles        uint64 `json:"cycles"`
	Alerts        uint64 `json:"alerts"`
	Dropped       uint64 `json:"dropped"`
	HandlerErrors uint64 `json:"handler_errors"`
}

// Stream polls the resolver on a fixed interval, runs every fresh tick
// through the detector and pushes the results to subscribers.
//
// Each subscriber is delivered to on its own goroutine. A subscriber still
// busy with the previous cycle skips the current one, so a slow handler
// never delays the loop or its peers.
type Stream struct {
	resolver Resolver
	detector *detector.Detector
	symbols  []string
	interval time.Duration
	log      *zap.Logger

	subMu sync.RWMutex
	subs  map[string]*subscriber

	latestMu sync.RWMutex
	latest   map[string]model.PriceTick

	runMu    sync.Mutex
	running  atomic.Bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	inflight *sync.WaitGroup

	cycles, alerts, dropped, handlerErrors atomic.Uint64
}

// New creates a stopped stream.
func New(resolver Resolver, det *detector.Detector, opts Options) *Stream {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	symbols := make([]string, 0, len(opts.Symbols))
	seen := make(map[string]struct{}, len(opts.Symbols))
	for _, s := range opts.Symbols {
		sym := model.NormalizeSymbol(s)
		if _, dup := seen[sym]; dup || sym == "" {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}
	return &Stream{
		resolver: resolver,
		detector: det,
		symbols:  symbols,
		interval: opts.Interval,
		log:      opts.Logger.Named("stream"),
		subs:     make(map[string]*subscriber),
		latest:   make(map[string]model.PriceTick),
	}
}

// Subscribe registers an alert handler and returns its subscription id.
func (s *Stream) Subscribe(h AlertHandler) (string, error) {
	if h == nil {
		return "", ErrNilHandler
	}
	return s.add(&subscriber{onAlert: h}), nil
}

// SubscribeTicks registers a handler for changed ticks.
func (s *Stream) SubscribeTicks(h TickHandler) (string, error) {
	if h == nil {
		return "", ErrNilHandler
	}
	return s.add(&subscriber{onTick: h}), nil
}

func (s *Stream) add(sub *subscriber) string {
	sub.id = uuid.NewString()
	s.subMu.Lock()
	s.subs[sub.id] = sub
	s.subMu.Unlock()
	s.log.Debug("subscriber added", zap.String("subscription", sub.id))
	return sub.id
}

// Unsubscribe removes a subscription. It reports whether the id was known.
// Later cycles never reach the handler. A delivery already dispatched may
// still make the one call whose check raced with Unsubscribe.
func (s *Stream) Unsubscribe(id string) bool {
	s.subMu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.subMu.Unlock()
	if ok {
		sub.removed.Store(true)
		s.log.Debug("subscriber removed", zap.String("subscription", id))
	}
	return ok
}

// UnsubscribeAll drops every subscription.
func (s *Stream) UnsubscribeAll() {
	s.subMu.Lock()
	for id, sub := range s.subs {
		sub.removed.Store(true)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
}

// Start launches the polling loop. Calling Start on a running stream is a no-op.
func (s *Stream) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running.Load() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.inflight = &sync.WaitGroup{}
	s.running.Store(true)
	go s.loop(ctx, s.inflight, s.loopDone)
	s.log.Info("stream started", zap.Strings("symbols", s.symbols), zap.Duration("interval", s.interval))
}

// Stop halts the loop and returns once the current cycle has finished and
// every handler call has returned. The resolve step of that cycle runs to
// completion; handlers see their ctx cancelled and deliveries not yet begun
// are skipped. Calling Stop on a stopped stream is a no-op.
func (s *Stream) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running.Load() {
		return
	}
	s.cancel()
	<-s.loopDone
	s.inflight.Wait()
	s.running.Store(false)
	s.log.Info("stream stopped")
}

// Running reports whether the loop is active.
func (s *Stream) Running() bool {
	return s.running.Load()
}

func (s *Stream) loop(ctx context.Context, wg *sync.WaitGroup, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx, wg)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx, wg)
		}
	}
}

func (s *Stream) cycle(ctx context.Context, wg *sync.WaitGroup) {
	if ctx.Err() != nil {
		return
	}
	s.cycles.Add(1)

	// detached so an in-flight resolve still writes the cache after Stop
	res := s.resolver.Resolve(context.WithoutCancel(ctx), s.symbols)
	for sym, err := range res.Failed {
		s.log.Debug("resolve failed", zap.String("symbol", sym), zap.Error(err))
	}

	var (
		changed []model.PriceTick
		alerts  []model.Alert
	)
	s.latestMu.Lock()
	for _, sym := range s.symbols {
		tick, ok := res.Ticks[sym]
		if !ok {
			continue
		}
		prev, seen := s.latest[sym]
		s.latest[sym] = tick
		if tick.Stale {
			continue
		}
		if !seen || !prev.Price.Equal(tick.Price) {
			changed = append(changed, tick)
		}
		if s.detector == nil {
			continue
		}
		if alert, ok := s.detector.Observe(tick); ok {
			alerts = append(alerts, alert)
		}
	}
	s.latestMu.Unlock()
	s.alerts.Add(uint64(len(alerts)))

	if ctx.Err() != nil || (len(alerts) == 0 && len(changed) == 0) {
		return
	}

	s.subMu.RLock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.RUnlock()

	for _, sub := range subs {
		if sub.onAlert != nil && len(alerts) == 0 {
			continue
		}
		if sub.onTick != nil && len(changed) == 0 {
			continue
		}
		if !sub.busy.CompareAndSwap(false, true) {
			s.dropped.Add(1)
			s.log.Warn("subscriber still busy, skipping cycle", zap.String("subscription", sub.id))
			continue
		}
		wg.Add(1)
		go s.deliver(ctx, wg, sub, alerts, changed)
	}
}

func (s *Stream) deliver(ctx context.Context, wg *sync.WaitGroup, sub *subscriber, alerts []model.Alert, ticks []model.PriceTick) {
	defer wg.Done()
	defer sub.busy.Store(false)

	if sub.onAlert != nil {
		for _, a := range alerts {
			if ctx.Err() != nil || sub.removed.Load() {
				return
			}
			s.invoke(sub, func() error { return sub.onAlert(ctx, a) })
		}
	}
	if sub.onTick != nil {
		for _, t := range ticks {
			if ctx.Err() != nil || sub.removed.Load() {
				return
			}
			s.invoke(sub, func() error { return sub.onTick(ctx, t) })
		}
	}
}

func (s *Stream) invoke(sub *subscriber, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.handlerErrors.Add(1)
			s.log.Error("subscriber panicked",
				zap.String("subscription", sub.id),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	if err := fn(); err != nil {
		s.handlerErrors.Add(1)
		s.log.Warn("subscriber failed", zap.String("subscription", sub.id), zap.Error(err))
	}
}

// Latest returns the most recent tick the stream saw for symbol.
func (s *Stream) Latest(symbol string) (model.PriceTick, bool) {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	t, ok := s.latest[model.NormalizeSymbol(symbol)]
	return t, ok
}

// LatestAll returns a copy of every latest tick.
func (s *Stream) LatestAll() map[string]model.PriceTick {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	out := make(map[string]model.PriceTick, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// Symbols returns the polled symbols.
func (s *Stream) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// Stats snapshots the counters.
func (s *Stream) Stats() Stats {
	s.subMu.RLock()
	n := len(s.subs)
	s.subMu.RUnlock()
	return Stats{
		Running:       s.Running(),
		Subscribers:   n,
		Cycles:        s.cycles.Load(),
		Alerts:        s.alerts.Load(),
		Dropped:       s.dropped.Load(),
		HandlerErrors: s.handlerErrors.Load(),
	}
}
