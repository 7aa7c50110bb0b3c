package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"MarketScraper/internal/model"
	"MarketScraper/internal/recorder"
	"MarketScraper/internal/scraper"
	"MarketScraper/internal/source"
)

type fakeRecorder struct {
	recorder.NoopRecorder
	mu        sync.Mutex
	snapshots []*recorder.MetricsSnapshot
	alerts    []recorder.AlertRow
}

func (f *fakeRecorder) RecordMetrics(snap *recorder.MetricsSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeRecorder) RecentAlerts(_ string, _ int) ([]recorder.AlertRow, error) {
	return f.alerts, nil
}

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) SendWithRetry(_ context.Context, text string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func newTestScraper(t *testing.T, ttl time.Duration) *scraper.Scraper {
	t.Helper()
	sc, err := scraper.New(scraper.Config{
		Symbols:        []string{"BTC", "ETH"},
		CacheTTL:       ttl,
		AlertThreshold: 5,
		Sources: []source.Source{
			source.NewStatic("a", map[string]float64{"BTC": 50000, "ETH": 3000}),
			source.NewStatic("b", map[string]float64{"BTC": 50050}),
		},
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	return sc
}

func TestRegisterAll(t *testing.T) {
	s := NewScheduler(context.Background(), newTestScraper(t, time.Second), nil, nil, zap.NewNop())
	if err := s.RegisterAll("*/30 * * * * *", "0 * * * * *", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(s.Cron.Entries()); got != 2 {
		t.Errorf("expected 2 jobs without report cron, got %d", got)
	}

	bad := NewScheduler(context.Background(), newTestScraper(t, time.Second), nil, nil, nil)
	if err := bad.RegisterAll("not a cron", "0 * * * * *", ""); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}

func TestRunSweepNow(t *testing.T) {
	sc := newTestScraper(t, 10*time.Millisecond)
	s := NewScheduler(context.Background(), sc, nil, nil, nil)

	sc.GetPrices(context.Background(), []string{"BTC", "ETH"})
	time.Sleep(30 * time.Millisecond)

	if n := s.RunSweepNow(); n != 2 {
		t.Errorf("expected 2 expired entries, got %d", n)
	}
	if n := s.RunSweepNow(); n != 0 {
		t.Errorf("expected nothing left to sweep, got %d", n)
	}
}

func TestRunSnapshotNow(t *testing.T) {
	sc := newTestScraper(t, time.Second)
	rec := &fakeRecorder{}
	s := NewScheduler(context.Background(), sc, nil, rec, nil)

	sc.GetPrices(context.Background(), []string{"BTC"})
	sc.GetPrices(context.Background(), []string{"BTC"})

	if err := s.RunSnapshotNow(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(rec.snapshots) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(rec.snapshots))
	}
	snap := rec.snapshots[0]
	if snap.CacheHits != 1 || len(snap.Sources) != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Sources[0].Source != "a" || snap.Sources[0].Requests != 1 {
		t.Errorf("unexpected source row %+v", snap.Sources[0])
	}
}

func TestHandleCommand(t *testing.T) {
	rec := &fakeRecorder{alerts: []recorder.AlertRow{
		{Symbol: "BTC", Direction: string(model.DirectionUp), ChangePercent: 6, PreviousPrice: "100", CurrentPrice: "106"},
	}}
	s := NewScheduler(context.Background(), newTestScraper(t, time.Second), nil, rec, nil)

	tests := []struct {
		command string
		want    string
	}{
		{"/price", "BTC: 50000 (a)"},
		{"/price eth", "ETH: 3000 (a)"},
		{"/summary", "市场概览"},
		{"/metrics", "缓存"},
		{"/compare BTC", "b: 50050"},
		{"/compare", "用法"},
		{"/alerts", "BTC UP +6.00% 100 → 106"},
		{"/unknown", "可用命令"},
	}
	for _, tt := range tests {
		got := s.HandleCommand(tt.command)
		if !strings.Contains(got, tt.want) {
			t.Errorf("%s: expected reply containing %q, got %q", tt.command, tt.want, got)
		}
	}
	if s.HandleCommand("   ") != "" {
		t.Error("expected empty reply for blank command")
	}
}

func TestReportTask(t *testing.T) {
	sender := &fakeSender{}
	s := NewScheduler(context.Background(), newTestScraper(t, time.Second), sender, nil, nil)
	s.reportTask()
	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0], "BTC") {
		t.Errorf("expected summary report, got %v", sender.texts)
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(context.Background(), newTestScraper(t, time.Second), nil, nil, nil)
	if err := s.RegisterAll("* * * * * *", "0 0 * * * *", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Start()
	time.Sleep(1100 * time.Millisecond)
	s.Stop()
}
