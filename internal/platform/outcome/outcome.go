// Package outcome defines the record a finished watch session publishes and
// the sink interface the NATS and Kafka publishers implement.
package outcome

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/marko911/chainkit/internal/watcher"
)

// Record is one finished watch session.
type Record struct {
	SessionID  string          `json:"sessionId"`
	Kind       string          `json:"kind"`
	Subject    string          `json:"subject"`
	Outcome    string          `json:"outcome"`
	Value      json.RawMessage `json:"value,omitempty"`
	Attempts   int             `json:"attempts"`
	ViaPush    bool            `json:"viaPush"`
	ElapsedMs  int64           `json:"elapsedMs"`
	ObservedAt time.Time       `json:"observedAt"`
}

// FromResult builds a record from a watch result. Value is encoded only
// when the watch found a terminal value.
func FromResult[T any](kind string, res watcher.Result[T]) (Record, error) {
	rec := Record{
		SessionID:  res.SessionID,
		Kind:       kind,
		Subject:    res.Subject,
		Outcome:    res.Outcome.String(),
		Attempts:   res.Attempts,
		ViaPush:    res.ViaPush,
		ElapsedMs:  res.Elapsed.Milliseconds(),
		ObservedAt: time.Now().UTC(),
	}
	if res.Found() {
		data, err := json.Marshal(res.Value)
		if err != nil {
			return Record{}, fmt.Errorf("encode value: %w", err)
		}
		rec.Value = data
	}
	return rec, nil
}

// Publisher delivers records to a downstream system.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// Discard logs records at debug level and drops them.
type Discard struct {
	Logger *slog.Logger
}

// Publish logs rec at debug level and drops it.
func (d Discard) Publish(ctx context.Context, rec Record) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("discarding outcome", "session_id", rec.SessionID, "kind", rec.Kind, "outcome", rec.Outcome)
	return nil
}

func (d Discard) Close() error { return nil }

var _ Publisher = Discard{}
