package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/marko911/chainkit/internal/platform/outcome"
)

// ProducerConfig configures the outcome producer.
type ProducerConfig struct {
	Brokers string
	Topic   string
	// EnsureTopic creates the topic on startup when missing.
	EnsureTopic bool
}

// Producer writes outcome records keyed by subject, so every session for
// the same transaction or execution lands on one partition.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

func NewProducer(ctx context.Context, cfg ProducerConfig, logger *slog.Logger) (*Producer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultOutcomeTopic
	}

	if cfg.EnsureTopic {
		tm, err := NewTopicManager(cfg.Brokers)
		if err != nil {
			return nil, err
		}
		err = tm.EnsureTopics(ctx, DefaultOutcomeTopicConfig(cfg.Topic))
		tm.Close()
		if err != nil {
			return nil, fmt.Errorf("ensure outcome topic: %w", err)
		}
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(SplitBrokers(cfg.Brokers)...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("outcome producer connected to kafka", "brokers", cfg.Brokers, "topic", cfg.Topic)

	return &Producer{
		client: client,
		topic:  cfg.Topic,
		logger: logger.With("component", "kafka-outcome-producer"),
	}, nil
}

// Publish writes rec keyed by subject and waits for the broker ack.
func (p *Producer) Publish(ctx context.Context, rec outcome.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(rec.Subject),
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: "session_id", Value: []byte(rec.SessionID)},
			{Key: "kind", Value: []byte(rec.Kind)},
			{Key: "outcome", Value: []byte(rec.Outcome)},
		},
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce outcome: %w", err)
	}

	p.logger.Debug("published outcome", "session_id", rec.SessionID, "subject", rec.Subject, "outcome", rec.Outcome)
	return nil
}

// Close flushes and closes the client.
func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

var _ outcome.Publisher = (*Producer)(nil)
