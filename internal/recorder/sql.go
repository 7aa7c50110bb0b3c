package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"MarketScraper/internal/model"
)

// SQLRecorder persists alerts and metrics through database/sql. The sqlite
// driver is used for local files, postgres for shared deployments.
type SQLRecorder struct {
	db     *sqlx.DB
	driver string
	mu     sync.Mutex
	log    *zap.Logger
}

// NewSQLRecorder opens (or creates) the database and runs migrations.
func NewSQLRecorder(driver, dsn string, logger *zap.Logger) (*SQLRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if driver == "sqlite" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// WAL lets dashboards read while the scraper writes.
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	} else if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	r := &SQLRecorder{db: db, driver: driver, log: logger.Named("recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info("recorder opened", zap.String("driver", driver))
	return r, nil
}

func (r *SQLRecorder) migrate() error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if r.driver == "postgres" {
		pk = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id             ` + pk + `,
			timestamp      BIGINT NOT NULL,
			symbol         TEXT NOT NULL,
			previous_price TEXT,
			current_price  TEXT,
			change_percent REAL,
			direction      TEXT,
			source         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_symbol_ts ON alerts(symbol, timestamp)`,

		`CREATE TABLE IF NOT EXISTS metric_snapshots (
			id              ` + pk + `,
			timestamp       BIGINT NOT NULL,
			cache_hits      BIGINT,
			cache_misses    BIGINT,
			cache_evictions BIGINT,
			cache_size      INTEGER,
			hit_rate        REAL,
			cycles          BIGINT,
			alerts          BIGINT,
			dropped         BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metric_snapshots(timestamp)`,

		`CREATE TABLE IF NOT EXISTS source_snapshots (
			id             ` + pk + `,
			timestamp      BIGINT NOT NULL,
			source         TEXT NOT NULL,
			requests       BIGINT,
			errors         BIGINT,
			timeouts       BIGINT,
			avg_latency_ms REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_source_ts ON source_snapshots(source, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", strings.TrimSpace(s)[:40], err)
		}
	}
	return nil
}

func (r *SQLRecorder) RecordAlert(a model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.Exec(r.db.Rebind(`INSERT INTO alerts
		(timestamp, symbol, previous_price, current_price, change_percent, direction, source)
		VALUES (?,?,?,?,?,?,?)`),
		ts.Unix(), a.Symbol, a.PreviousPrice.String(), a.CurrentPrice.String(),
		a.ChangePercent, string(a.Direction), a.Source,
	)
	if err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	return nil
}

func (r *SQLRecorder) RecordMetrics(snap *MetricsSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := snap.TakenAt
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(tx.Rebind(`INSERT INTO metric_snapshots
		(timestamp, cache_hits, cache_misses, cache_evictions, cache_size, hit_rate, cycles, alerts, dropped)
		VALUES (?,?,?,?,?,?,?,?,?)`),
		ts.Unix(), snap.CacheHits, snap.CacheMisses, snap.CacheEvictions,
		snap.CacheSize, snap.HitRate, snap.Cycles, snap.Alerts, snap.Dropped,
	); err != nil {
		return fmt.Errorf("record metrics: %w", err)
	}

	for _, s := range snap.Sources {
		if _, err := tx.Exec(tx.Rebind(`INSERT INTO source_snapshots
			(timestamp, source, requests, errors, timeouts, avg_latency_ms)
			VALUES (?,?,?,?,?,?)`),
			ts.Unix(), s.Source, s.Requests, s.Errors, s.Timeouts, s.AvgLatencyMs,
		); err != nil {
			return fmt.Errorf("record source %s: %w", s.Source, err)
		}
	}
	return tx.Commit()
}

// RecentAlerts returns the newest alerts first. An empty symbol matches all.
func (r *SQLRecorder) RecentAlerts(symbol string, limit int) ([]AlertRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows []AlertRow
		err  error
	)
	if symbol == "" {
		err = r.db.Select(&rows, r.db.Rebind(`SELECT id, timestamp, symbol, previous_price, current_price,
			change_percent, direction, source FROM alerts ORDER BY id DESC LIMIT ?`), limit)
	} else {
		err = r.db.Select(&rows, r.db.Rebind(`SELECT id, timestamp, symbol, previous_price, current_price,
			change_percent, direction, source FROM alerts WHERE symbol = ? ORDER BY id DESC LIMIT ?`),
			model.NormalizeSymbol(symbol), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	return rows, nil
}

func (r *SQLRecorder) Close() error {
	r.log.Info("closing recorder")
	return r.db.Close()
}
