package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"MarketScraper/internal/config"
	"MarketScraper/internal/model"
	"MarketScraper/internal/notifier"
	"MarketScraper/internal/recorder"
	"MarketScraper/internal/scheduler"
	"MarketScraper/internal/scraper"
	"MarketScraper/internal/source"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config validation", zap.Error(err))
	}
	logger.Info("MarketScraper starting", zap.Strings("symbols", cfg.Scraper.Symbols))

	sources, err := buildSources(cfg)
	if err != nil {
		logger.Fatal("build sources", zap.Error(err))
	}

	sc, err := scraper.New(scraper.Config{
		Symbols:        cfg.Scraper.Symbols,
		CacheTTL:       cfg.Scraper.CacheTTL,
		Capacity:       cfg.Scraper.Capacity,
		PollInterval:   cfg.Scraper.PollInterval,
		AlertThreshold: cfg.Scraper.AlertThreshold,
		Sources:        sources,
		SourceTimeout:  cfg.Scraper.SourceTimeout,
		Deadline:       cfg.Scraper.Deadline,
		HistoryWindow:  cfg.Scraper.HistoryWindow,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("init scraper", zap.Error(err))
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.Driver != "none" {
		sr, err := recorder.NewSQLRecorder(cfg.Database.Driver, cfg.Database.DSN, logger)
		if err != nil {
			logger.Warn("init sql recorder failed, using noop", zap.Error(err))
		} else {
			rec = sr
		}
	}
	defer rec.Close()
	mustSubscribe(logger, "recorder", func() (string, error) {
		return sc.Subscribe(func(_ context.Context, a model.Alert) error { return rec.RecordAlert(a) })
	})

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rp := notifier.NewRedisPublisher(client, cfg.Redis.Channel, cfg.Redis.KeyPrefix, cfg.Redis.TickTTL, logger)
		defer rp.Close()
		mustSubscribe(logger, "redis", func() (string, error) { return sc.Subscribe(rp.HandleAlert) })
		mustSubscribe(logger, "redis ticks", func() (string, error) { return sc.SubscribeTicks(rp.HandleTick) })
		logger.Info("redis publisher enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kp := notifier.NewKafkaPublisher(notifier.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		defer kp.Close()
		mustSubscribe(logger, "kafka", func() (string, error) { return sc.Subscribe(kp.HandleAlert) })
		logger.Info("kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	hub := notifier.NewHub(logger)
	defer hub.Close()
	mustSubscribe(logger, "hub", func() (string, error) { return sc.Subscribe(hub.HandleAlert) })
	mustSubscribe(logger, "hub ticks", func() (string, error) { return sc.SubscribeTicks(hub.HandleTick) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A nil *TelegramNotifier must not reach the scheduler as a non-nil Sender.
	var tn *notifier.TelegramNotifier
	var sender scheduler.Sender
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		sender = tn
		mustSubscribe(logger, "telegram", func() (string, error) { return sc.Subscribe(tn.HandleAlert) })
	}

	sched := scheduler.NewScheduler(ctx, sc, sender, rec, logger)
	if err := sched.RegisterAll(cfg.Schedule.SweepCron, cfg.Schedule.SnapshotCron, cfg.Schedule.ReportCron); err != nil {
		logger.Fatal("register cron tasks", zap.Error(err))
	}
	sched.Start()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("telegram polling started")
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
		}
	}()
	logger.Info("websocket hub listening", zap.String("addr", cfg.HTTP.Addr))

	sc.StartStreaming()
	logger.Info("MarketScraper is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping...")
	cancel()
	// returns once every sink handler has finished, the deferred Close calls run after
	sc.Close()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("MarketScraper stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}

func buildSources(cfg *config.Config) ([]source.Source, error) {
	out := make([]source.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		kind := sc.EffectiveKind()
		if kind == "http" {
			out = append(out, source.NewHTTPSource(sc.Name, sc.BaseURL, sc.APIKey, cfg.Proxy))
			continue
		}
		opts := []source.SimOption{source.WithName(sc.Name)}
		if sc.Seed != 0 {
			opts = append(opts, source.WithSeed(sc.Seed))
		}
		if sc.FailureRate != nil {
			opts = append(opts, source.WithFailureRate(*sc.FailureRate))
		}
		src, err := source.New(kind, opts...)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.Name, err)
		}
		out = append(out, src)
	}
	return out, nil
}

func mustSubscribe(logger *zap.Logger, name string, fn func() (string, error)) {
	id, err := fn()
	if err != nil {
		logger.Fatal("subscribe", zap.String("sink", name), zap.Error(err))
	}
	logger.Debug("sink subscribed", zap.String("sink", name), zap.String("id", id))
}
