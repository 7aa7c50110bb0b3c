package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"MarketScraper/internal/notifier"
	"MarketScraper/internal/recorder"
	"MarketScraper/internal/scraper"
)

// Sender delivers a text report.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron     *cron.Cron
	Scraper  *scraper.Scraper
	Notifier Sender
	Recorder recorder.Recorder
	Ctx      context.Context
	log      *zap.Logger
}

// NewScheduler creates a new Scheduler. tn may be nil when no chat is configured.
func NewScheduler(ctx context.Context, sc *scraper.Scraper, tn Sender, rec recorder.Recorder, logger *zap.Logger) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Scraper:  sc,
		Notifier: tn,
		Recorder: rec,
		Ctx:      ctx,
		log:      logger.Named("scheduler"),
	}
}

// RegisterAll registers the sweep, snapshot and optional report tasks.
func (s *Scheduler) RegisterAll(sweepCron, snapshotCron, reportCron string) error {
	if _, err := s.Cron.AddFunc(sweepCron, s.sweepTask); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	if _, err := s.Cron.AddFunc(snapshotCron, s.snapshotTask); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	if reportCron != "" {
		if _, err := s.Cron.AddFunc(reportCron, s.reportTask); err != nil {
			return fmt.Errorf("register report task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunSweepNow runs the cache sweep immediately and returns how many entries expired.
func (s *Scheduler) RunSweepNow() int {
	return s.sweep()
}

// RunSnapshotNow records a metrics snapshot immediately.
func (s *Scheduler) RunSnapshotNow() error {
	return s.snapshot()
}

func (s *Scheduler) sweepTask() { s.sweep() }

func (s *Scheduler) sweep() int {
	n := s.Scraper.SweepCache()
	s.log.Debug("cache swept", zap.Int("expired", n))
	return n
}

func (s *Scheduler) snapshotTask() {
	if err := s.snapshot(); err != nil {
		s.log.Error("record metrics", zap.Error(err))
	}
}

func (s *Scheduler) snapshot() error {
	m := s.Scraper.Metrics()
	s.log.Info("metrics",
		zap.Int("cache_size", m.Cache.Size),
		zap.Float64("hit_rate", m.Cache.HitRate),
		zap.Uint64("cycles", m.Stream.Cycles),
		zap.Uint64("alerts", m.Stream.Alerts),
		zap.Uint64("dropped", m.Stream.Dropped))
	return s.Recorder.RecordMetrics(Snapshot(m))
}

func (s *Scheduler) reportTask() {
	s.log.Info("running report task")
	s.trySend(notifier.FormatSummary(s.Scraper.MarketSummary(s.Ctx)))
}

// Snapshot converts facade metrics into a recorder row.
func Snapshot(m scraper.Metrics) *recorder.MetricsSnapshot {
	snap := &recorder.MetricsSnapshot{
		TakenAt:        m.TakenAt,
		CacheHits:      m.Cache.Hits,
		CacheMisses:    m.Cache.Misses,
		CacheEvictions: m.Cache.Evictions,
		CacheSize:      m.Cache.Size,
		HitRate:        m.Cache.HitRate,
		Cycles:         m.Stream.Cycles,
		Alerts:         m.Stream.Alerts,
		Dropped:        m.Stream.Dropped,
	}
	for _, src := range m.Sources {
		snap.Sources = append(snap.Sources, recorder.SourceSnapshot{
			Source:       src.Source,
			Requests:     src.Requests,
			Errors:       src.Errors,
			Timeouts:     src.Timeouts,
			AvgLatencyMs: src.AvgLatencyMs,
		})
	}
	return snap
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	args := fields[1:]
	switch fields[0] {
	case "/price", "查看价格":
		if len(args) == 0 {
			args = s.Scraper.Symbols()
		}
		return notifier.FormatPrices(s.Scraper.GetPrices(s.Ctx, args))
	case "/summary", "市场概览":
		return notifier.FormatSummary(s.Scraper.MarketSummary(s.Ctx))
	case "/metrics", "运行状态":
		return notifier.FormatMetrics(s.Scraper.Metrics())
	case "/compare", "比较来源":
		if len(args) == 0 {
			return "用法: /compare BTC"
		}
		return notifier.FormatPrices(s.Scraper.CompareSources(s.Ctx, args[0]))
	case "/alerts", "最近告警":
		symbol := ""
		if len(args) > 0 {
			symbol = args[0]
		}
		rows, err := s.Recorder.RecentAlerts(symbol, 10)
		if err != nil {
			return fmt.Sprintf("❌ 查询告警失败: %v", err)
		}
		return formatAlertRows(rows)
	default:
		return "可用命令:\n• /price [代码...]\n• /summary\n• /metrics\n• /compare 代码\n• /alerts [代码]"
	}
}

func formatAlertRows(rows []recorder.AlertRow) string {
	if len(rows) == 0 {
		return "暂无告警记录"
	}
	var b strings.Builder
	b.WriteString("🔔 <b>最近告警</b>\n\n")
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("%s %s %+.2f%% %s → %s\n",
			r.Symbol, r.Direction, r.ChangePercent, r.PreviousPrice, r.CurrentPrice))
	}
	return b.String()
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.Error("send notification", zap.Error(err))
	}
}
