package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"MarketScraper/internal/model"
)

// RedisPublisher mirrors the latest tick per symbol into Redis keys and
// publishes alerts on a pub/sub channel for downstream consumers.
type RedisPublisher struct {
	client    *redis.Client
	channel   string
	keyPrefix string
	tickTTL   time.Duration
	timeout   time.Duration
	log       *zap.Logger
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(client *redis.Client, channel, keyPrefix string, tickTTL time.Duration, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{
		client:    client,
		channel:   channel,
		keyPrefix: keyPrefix,
		tickTTL:   tickTTL,
		timeout:   2 * time.Second,
		log:       logger.Named("redis"),
	}
}

// PublishAlert sends the alert as JSON on the alert channel.
func (p *RedisPublisher) PublishAlert(ctx context.Context, a model.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.Symbol, err)
	}
	return nil
}

// PublishTick stores the tick under its symbol key and announces it on
// the per-symbol channel in a single pipeline.
func (p *RedisPublisher) PublishTick(ctx context.Context, t model.PriceTick) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}
	key := p.keyPrefix + t.Symbol
	pipe := p.client.Pipeline()
	pipe.Set(ctx, key, payload, p.tickTTL)
	pipe.Publish(ctx, key, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish tick %s: %w", t.Symbol, err)
	}
	return nil
}

// LatestTick reads back the stored tick for symbol.
func (p *RedisPublisher) LatestTick(ctx context.Context, symbol string) (model.PriceTick, error) {
	var t model.PriceTick
	raw, err := p.client.Get(ctx, p.keyPrefix+model.NormalizeSymbol(symbol)).Bytes()
	if err != nil {
		return t, fmt.Errorf("get tick %s: %w", symbol, err)
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("decode tick %s: %w", symbol, err)
	}
	return t, nil
}

// HandleAlert matches the stream's alert handler.
func (p *RedisPublisher) HandleAlert(ctx context.Context, a model.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.PublishAlert(ctx, a)
}

// HandleTick matches the stream's tick handler.
func (p *RedisPublisher) HandleTick(ctx context.Context, t model.PriceTick) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.PublishTick(ctx, t)
}

func (p *RedisPublisher) Close() error {
	p.log.Info("closing redis publisher")
	return p.client.Close()
}
