package recorder

import (
	"time"

	"MarketScraper/internal/model"
)

// SourceSnapshot is one source's counters at snapshot time.
type SourceSnapshot struct {
	Source       string
	Requests     uint64
	Errors       uint64
	Timeouts     uint64
	AvgLatencyMs float64
}

// MetricsSnapshot is a periodic record of cache, stream and source health.
type MetricsSnapshot struct {
	TakenAt        time.Time
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64
	CacheSize      int
	HitRate        float64
	Cycles         uint64
	Alerts         uint64
	Dropped        uint64
	Sources        []SourceSnapshot
}

// AlertRow is a stored alert as read back from the database.
type AlertRow struct {
	ID            int64   `db:"id"`
	Timestamp     int64   `db:"timestamp"`
	Symbol        string  `db:"symbol"`
	PreviousPrice string  `db:"previous_price"`
	CurrentPrice  string  `db:"current_price"`
	ChangePercent float64 `db:"change_percent"`
	Direction     string  `db:"direction"`
	Source        string  `db:"source"`
}

// Recorder persists alerts and metric snapshots for later analysis.
type Recorder interface {
	RecordAlert(a model.Alert) error
	RecordMetrics(snap *MetricsSnapshot) error
	RecentAlerts(symbol string, limit int) ([]AlertRow, error)
	Close() error
}
