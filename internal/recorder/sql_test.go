package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"MarketScraper/internal/model"
)

func openTestRecorder(t *testing.T) *SQLRecorder {
	t.Helper()
	r, err := NewSQLRecorder("sqlite", filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open recorder: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordAlert(t *testing.T) {
	r := openTestRecorder(t)

	alerts := []model.Alert{
		{Symbol: "BTC", PreviousPrice: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(106),
			ChangePercent: 6, Direction: model.DirectionUp, Source: "binance", Timestamp: time.Unix(1700000000, 0)},
		{Symbol: "ETH", PreviousPrice: decimal.NewFromInt(10), CurrentPrice: decimal.RequireFromString("9.4"),
			ChangePercent: -6, Direction: model.DirectionDown, Source: "coingecko", Timestamp: time.Unix(1700000060, 0)},
		{Symbol: "BTC", PreviousPrice: decimal.NewFromInt(106), CurrentPrice: decimal.NewFromInt(100),
			ChangePercent: -5.66, Direction: model.DirectionDown, Source: "binance", Timestamp: time.Unix(1700000120, 0)},
	}
	for _, a := range alerts {
		if err := r.RecordAlert(a); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	all, err := r.RecentAlerts("", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(all))
	}

	btc, err := r.RecentAlerts("btc", 1)
	if err != nil {
		t.Fatalf("recent btc: %v", err)
	}
	if len(btc) != 1 {
		t.Fatalf("expected limit 1, got %d", len(btc))
	}
	if btc[0].Direction != "DOWN" || btc[0].CurrentPrice != "100" {
		t.Errorf("expected newest BTC alert first, got %+v", btc[0])
	}

	eth, _ := r.RecentAlerts("ETH", 10)
	if len(eth) != 1 || eth[0].CurrentPrice != "9.4" {
		t.Errorf("expected exact decimal text, got %+v", eth)
	}
}

func TestRecordMetrics(t *testing.T) {
	r := openTestRecorder(t)

	snap := &MetricsSnapshot{
		TakenAt:   time.Unix(1700000000, 0),
		CacheHits: 10, CacheMisses: 2, CacheSize: 4, HitRate: 0.83,
		Cycles: 7, Alerts: 1,
		Sources: []SourceSnapshot{
			{Source: "binance", Requests: 7, AvgLatencyMs: 42},
			{Source: "coingecko", Requests: 7, Errors: 1, Timeouts: 1, AvgLatencyMs: 210},
		},
	}
	if err := r.RecordMetrics(snap); err != nil {
		t.Fatalf("record metrics: %v", err)
	}

	var snapshots, sources int
	if err := r.db.Get(&snapshots, "SELECT COUNT(*) FROM metric_snapshots"); err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if err := r.db.Get(&sources, "SELECT COUNT(*) FROM source_snapshots"); err != nil {
		t.Fatalf("count sources: %v", err)
	}
	if snapshots != 1 || sources != 2 {
		t.Errorf("expected 1 snapshot and 2 source rows, got %d/%d", snapshots, sources)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	r, err := NewSQLRecorder("sqlite", path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r.RecordAlert(model.Alert{Symbol: "SOL", PreviousPrice: decimal.NewFromInt(1), CurrentPrice: decimal.NewFromInt(2)})
	r.Close()

	r, err = NewSQLRecorder("sqlite", path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r.Close()
	rows, err := r.RecentAlerts("SOL", 5)
	if err != nil || len(rows) != 1 {
		t.Errorf("expected persisted alert, got %v (%v)", rows, err)
	}
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	if err := r.RecordAlert(model.Alert{}); err != nil {
		t.Error(err)
	}
	if err := r.RecordMetrics(&MetricsSnapshot{}); err != nil {
		t.Error(err)
	}
}
