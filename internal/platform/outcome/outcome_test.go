package outcome

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/marko911/chainkit/internal/watcher"
)

type receipt struct {
	Block uint64 `json:"block"`
}

func TestFromResult(t *testing.T) {
	res := watcher.Result[receipt]{
		SessionID: "s-1",
		Subject:   "0xabc",
		Value:     receipt{Block: 99},
		Outcome:   watcher.Found,
		Attempts:  3,
		Elapsed:   1500 * time.Millisecond,
	}

	rec, err := FromResult("receipt", res)
	if err != nil {
		t.Fatalf("FromResult() error = %v", err)
	}
	if rec.Outcome != "found" || rec.Kind != "receipt" || rec.ElapsedMs != 1500 || rec.Attempts != 3 {
		t.Errorf("unexpected record %+v", rec)
	}

	var got receipt
	if err := json.Unmarshal(rec.Value, &got); err != nil || got.Block != 99 {
		t.Errorf("Value = %s, err %v", rec.Value, err)
	}
	if rec.ObservedAt.IsZero() {
		t.Error("ObservedAt not set")
	}
}

func TestFromResultNotFound(t *testing.T) {
	for _, o := range []watcher.Outcome{watcher.TimedOut, watcher.Cancelled} {
		rec, err := FromResult("execution", watcher.Result[receipt]{Outcome: o, Value: receipt{Block: 1}})
		if err != nil {
			t.Fatalf("FromResult() error = %v", err)
		}
		if rec.Value != nil {
			t.Errorf("%s: value should be omitted, got %s", o, rec.Value)
		}
		if rec.Outcome != o.String() {
			t.Errorf("Outcome = %s, want %s", rec.Outcome, o)
		}
	}
}

func TestFromResultEncodeError(t *testing.T) {
	res := watcher.Result[chan int]{Outcome: watcher.Found, Value: make(chan int)}
	if _, err := FromResult("bad", res); err == nil {
		t.Error("expected encode error")
	}
}

func TestDiscard(t *testing.T) {
	var p Publisher = Discard{}
	if err := p.Publish(context.Background(), Record{SessionID: "s"}); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
