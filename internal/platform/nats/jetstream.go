package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/marko911/chainkit/internal/platform/outcome"
)

// StreamConfig holds JetStream stream configuration.
type StreamConfig struct {
	Name        string
	Subjects    []string
	Retention   jetstream.RetentionPolicy
	MaxAge      time.Duration // 0 = unlimited
	MaxBytes    int64         // 0 = unlimited
	Replicas    int
	Description string
}

func DefaultOutcomeStreamConfig() StreamConfig {
	return StreamConfig{
		Name:        "WATCH_OUTCOMES",
		Subjects:    []string{"outcomes.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      72 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024,
		Replicas:    1,
		Description: "Finished transaction and cross-chain execution watches",
	}
}

// EnsureStream creates or updates the stream. Safe to call repeatedly.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Name,
		Subjects:    cfg.Subjects,
		Retention:   cfg.Retention,
		MaxAge:      cfg.MaxAge,
		MaxBytes:    cfg.MaxBytes,
		Replicas:    cfg.Replicas,
		Description: cfg.Description,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// SubjectForOutcome returns outcomes.<kind>.<outcome>.
func SubjectForOutcome(kind, result string) string {
	return fmt.Sprintf("outcomes.%s.%s", kind, result)
}

// Publisher sends outcome records to JetStream. The session id is used as
// the message id so retried publishes are deduplicated by the server.
type Publisher struct {
	client *Client
}

// NewPublisher ensures the outcome stream exists.
func NewPublisher(ctx context.Context, client *Client, cfg StreamConfig) (*Publisher, error) {
	if _, err := EnsureStream(ctx, client.JetStream(), cfg); err != nil {
		return nil, err
	}
	return &Publisher{client: client}, nil
}

// Publish sends rec with its session id as the dedup id.
func (p *Publisher) Publish(ctx context.Context, rec outcome.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	subject := SubjectForOutcome(rec.Kind, rec.Outcome)
	ack, err := p.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(rec.SessionID))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.client.logger.Debug("published outcome",
		"subject", subject,
		"session_id", rec.SessionID,
		"stream", ack.Stream,
		"seq", ack.Sequence,
		"duplicate", ack.Duplicate,
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ outcome.Publisher = (*Publisher)(nil)
