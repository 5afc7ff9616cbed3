// Package kafka publishes watch outcomes to a Kafka or Redpanda topic and
// manages the topic itself.
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

const DefaultOutcomeTopic = "watch-outcomes"

// TopicConfig holds configuration for a Kafka topic.
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	RetentionMs       int64
	CleanupPolicy     string
}

func DefaultOutcomeTopicConfig(name string) TopicConfig {
	if name == "" {
		name = DefaultOutcomeTopic
	}
	return TopicConfig{
		Name:              name,
		Partitions:        6,
		ReplicationFactor: 1,
		RetentionMs:       3 * 24 * 60 * 60 * 1000, // 3 days
		CleanupPolicy:     "delete",
	}
}

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(brokers string) []string {
	list := strings.Split(brokers, ",")
	out := list[:0]
	for _, b := range list {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// TopicManager creates topics through the admin API.
type TopicManager struct {
	admin *kadm.Client
}

// NewTopicManager connects to the comma separated brokers.
func NewTopicManager(brokers string) (*TopicManager, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(SplitBrokers(brokers)...))
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &TopicManager{admin: kadm.NewClient(client)}, nil
}

// EnsureTopics creates the topics that do not exist yet.
func (m *TopicManager) EnsureTopics(ctx context.Context, configs ...TopicConfig) error {
	existing, err := m.admin.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	for _, cfg := range configs {
		if existing.Has(cfg.Name) {
			continue
		}
		if err := m.CreateTopic(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	resp, err := m.admin.CreateTopics(ctx, cfg.Partitions, cfg.ReplicationFactor,
		map[string]*string{
			"retention.ms":   stringPtr(fmt.Sprintf("%d", cfg.RetentionMs)),
			"cleanup.policy": stringPtr(cfg.CleanupPolicy),
		},
		cfg.Name,
	)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", cfg.Name, err)
	}

	for _, r := range resp {
		if r.Err != nil {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// WaitForTopic polls metadata until topic is visible or timeout elapses.
func (m *TopicManager) WaitForTopic(ctx context.Context, topic string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		topics, err := m.admin.ListTopics(ctx, topic)
		if err == nil && topics.Has(topic) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("timeout waiting for topic %s", topic)
}

// Close closes the admin client.
func (m *TopicManager) Close() {
	m.admin.Close()
}

func stringPtr(s string) *string {
	return &s
}
