// Package relayfeed is a cross-chain adapter reading execution records that
// a relayer maintains in Redis. Updates are announced on a pub/sub channel
// named after the record key.
package relayfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/crosschain"
)

const (
	Name = "relay-feed"

	keyExecution = "exec:"
)

// Metadata describes the relay-feed adapter for registration.
func Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:        Name,
		Module:      adapter.ModuleCrossChain,
		AdapterType: "redis",
		Constructor: New,
		Requirements: []adapter.Requirement{
			{Path: "options.redisAddr", Type: adapter.TypeString},
			{Path: "options.password", Type: adapter.TypeString, AllowUndefined: true},
			{Path: "options.db", Type: adapter.TypeNumber, AllowUndefined: true},
			{Path: "options.keyPrefix", Type: adapter.TypeString, AllowUndefined: true},
		},
		Environment: adapter.ServerOnly("needs a direct TCP connection to Redis"),
		ErrorMap: map[string]string{
			"connection refused": "UPSTREAM_UNAVAILABLE",
			"i/o timeout":        "UPSTREAM_UNAVAILABLE",
			"decode record":      "BAD_RECORD",
		},
		Features: []string{"status", "push-status"},
	}
}

// Bridge reads execution records a relayer keeps in Redis and follows their
// updates over pub/sub.
type Bridge struct {
	client    *redis.Client
	keyPrefix string
	logger    *slog.Logger
}

// New is the adapter constructor. It does not dial; Initialize does.
func New(ctx context.Context, opts adapter.Options) (any, error) {
	db, _ := opts.Uint64("db")
	client := redis.NewClient(&redis.Options{
		Addr:     opts.String("redisAddr"),
		Password: opts.String("password"),
		DB:       int(db),
	})
	return NewWithClient(client, opts.String("keyPrefix")), nil
}

// NewWithClient returns a bridge over an existing client.
func NewWithClient(client *redis.Client, keyPrefix string) *Bridge {
	return &Bridge{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    slog.Default().With("component", "relay-feed-bridge"),
	}
}

// Initialize verifies Redis is reachable.
func (b *Bridge) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Disconnect closes the Redis client.
func (b *Bridge) Disconnect(ctx context.Context) error {
	return b.client.Close()
}

func (b *Bridge) Connect(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Capabilities advertises push updates; pub/sub is always available.
func (b *Bridge) Capabilities() []adapter.Capability {
	return []adapter.Capability{adapter.CapPushUpdates}
}

func (b *Bridge) key(executionID string) string {
	return b.keyPrefix + keyExecution + executionID
}

// record is what the relayer writes.
type record struct {
	Status    string `json:"status"`
	Substatus string `json:"substatus,omitempty"`
	SourceTx  string `json:"sourceTx,omitempty"`
	DestTx    string `json:"destTx,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

func decode(executionID string, data []byte) (crosschain.Status, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return crosschain.Status{}, fmt.Errorf("decode record %s: %w", executionID, err)
	}
	st := crosschain.Status{
		ExecutionID: executionID,
		State:       crosschain.ParseState(r.Status),
		Substatus:   r.Substatus,
		SourceTx:    r.SourceTx,
		DestTx:      r.DestTx,
	}
	if r.UpdatedAt > 0 {
		st.UpdatedAt = time.Unix(r.UpdatedAt, 0).UTC()
	}
	return st, nil
}

// GetStatus reads the execution record. A missing record is PENDING.
func (b *Bridge) GetStatus(ctx context.Context, executionID string) (crosschain.Status, error) {
	data, err := b.client.Get(ctx, b.key(executionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return crosschain.Status{ExecutionID: executionID, State: crosschain.StatePending}, nil
	}
	if err != nil {
		return crosschain.Status{}, fmt.Errorf("get record: %w", err)
	}
	return decode(executionID, data)
}

// WaitForStatus subscribes to the record channel, then reads the record once
// so an update published before the subscription is not missed.
func (b *Bridge) WaitForStatus(ctx context.Context, executionID string) (crosschain.Status, error) {
	channel := b.key(executionID)
	pubsub := b.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return crosschain.Status{}, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	current, err := b.GetStatus(ctx, executionID)
	if err != nil {
		return crosschain.Status{}, err
	}
	if current.State.IsTerminal() {
		return current, nil
	}

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return crosschain.Status{}, ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return crosschain.Status{}, fmt.Errorf("subscription %s closed", channel)
			}
			st, err := decode(executionID, []byte(msg.Payload))
			if err != nil {
				b.logger.Warn("skipping malformed update", "execution_id", executionID, "error", err)
				continue
			}
			if st.State.IsTerminal() {
				return st, nil
			}
		}
	}
}

// Publish writes a record and announces it. Relayers and tests use it.
func (b *Bridge) Publish(ctx context.Context, st crosschain.Status) error {
	r := record{
		Status:    string(st.State),
		Substatus: st.Substatus,
		SourceTx:  st.SourceTx,
		DestTx:    st.DestTx,
	}
	if !st.UpdatedAt.IsZero() {
		r.UpdatedAt = st.UpdatedAt.Unix()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	key := b.key(st.ExecutionID)
	if err := b.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := b.client.Publish(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("announce record: %w", err)
	}
	return nil
}

var (
	_ crosschain.Bridge   = (*Bridge)(nil)
	_ adapter.Initializer = (*Bridge)(nil)
)
