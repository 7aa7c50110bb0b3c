package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"MarketScraper/internal/model"
)

// KafkaWriter is the subset of *kafka.Writer the publisher needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes alerts to a topic keyed by symbol, so all alerts of
// one symbol land on the same partition in order.
type KafkaPublisher struct {
	writer  KafkaWriter
	timeout time.Duration
	log     *zap.Logger
}

// NewKafkaWriter builds a synchronous hash-balanced writer.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(w KafkaWriter, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second, log: logger.Named("kafka")}
}

func (p *KafkaPublisher) PublishAlert(ctx context.Context, a model.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(a.Symbol),
		Value: payload,
		Time:  a.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("alert")},
			{Key: "direction", Value: []byte(a.Direction)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write alert %s: %w", a.Symbol, err)
	}
	p.log.Debug("alert written", zap.String("symbol", a.Symbol))
	return nil
}

// HandleAlert matches the stream's alert handler.
func (p *KafkaPublisher) HandleAlert(ctx context.Context, a model.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.PublishAlert(ctx, a)
}

func (p *KafkaPublisher) Close() error {
	p.log.Info("closing kafka writer")
	return p.writer.Close()
}
