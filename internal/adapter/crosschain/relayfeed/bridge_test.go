package relayfeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/crosschain"
	"github.com/marko911/chainkit/internal/watcher"
)

func newTestBridge(t *testing.T) (*Bridge, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	b := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
	t.Cleanup(func() { b.Disconnect(context.Background()) })
	return b, mr
}

func TestBridge_GetStatus(t *testing.T) {
	b, mr := newTestBridge(t)
	ctx := context.Background()

	st, err := b.GetStatus(ctx, "abc")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if st.State != crosschain.StatePending || st.ExecutionID != "abc" {
		t.Errorf("missing record should be pending, got %+v", st)
	}

	mr.Set("test:exec:abc", `{"status":"COMPLETED","destTx":"0xdead","updatedAt":1700000000}`)
	st, err = b.GetStatus(ctx, "abc")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if st.State != crosschain.StateDone || st.DestTx != "0xdead" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.UpdatedAt.Unix() != 1700000000 {
		t.Errorf("UpdatedAt = %v", st.UpdatedAt)
	}

	mr.Set("test:exec:bad", "{not json")
	if _, err := b.GetStatus(ctx, "bad"); err == nil {
		t.Error("expected decode error")
	}
}

func TestBridge_PublishRoundTrip(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx := context.Background()

	want := crosschain.Status{ExecutionID: "x1", State: crosschain.StateFailed, Substatus: "REFUNDED"}
	if err := b.Publish(ctx, want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got, err := b.GetStatus(ctx, "x1")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if got.State != want.State || got.Substatus != want.Substatus {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func waitSubscribed(t *testing.T, mr *miniredis.Miniredis, channel string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mr.PubSubNumSub(channel)[channel] > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber on %s", channel)
}

func TestBridge_WaitForStatus(t *testing.T) {
	b, mr := newTestBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		st  crosschain.Status
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := b.WaitForStatus(ctx, "x2")
		done <- result{st, err}
	}()

	waitSubscribed(t, mr, "test:exec:x2")

	b.Publish(ctx, crosschain.Status{ExecutionID: "x2", State: crosschain.StateInProgress})
	mr.Publish("test:exec:x2", "garbage")
	b.Publish(ctx, crosschain.Status{ExecutionID: "x2", State: crosschain.StateDone, DestTx: "0xbeef"})

	r := <-done
	if r.err != nil {
		t.Fatalf("WaitForStatus failed: %v", r.err)
	}
	if r.st.State != crosschain.StateDone || r.st.DestTx != "0xbeef" {
		t.Errorf("unexpected status %+v", r.st)
	}
}

func TestBridge_WaitForStatusAlreadyTerminal(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b.Publish(ctx, crosschain.Status{ExecutionID: "x3", State: crosschain.StateDone})

	st, err := b.WaitForStatus(ctx, "x3")
	if err != nil {
		t.Fatalf("WaitForStatus failed: %v", err)
	}
	if st.State != crosschain.StateDone {
		t.Errorf("State = %s", st.State)
	}
}

func TestBridge_WatchExecution(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx := context.Background()

	if !adapter.Has(b, adapter.CapPushUpdates) {
		t.Fatal("relay feed should advertise push updates")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Publish(ctx, crosschain.Status{ExecutionID: "x4", State: crosschain.StateDone})
	}()

	res := crosschain.WatchExecution(ctx, b, "x4", watcher.Options{
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	if !res.Found() || res.Value.State != crosschain.StateDone {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestBridge_InitializeUnreachable(t *testing.T) {
	b := NewWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond}), "")
	defer b.Disconnect(context.Background())

	if err := b.Initialize(context.Background()); err == nil {
		t.Fatal("expected ping failure")
	}
}

func TestBridge_FactoryRequiresAddr(t *testing.T) {
	reg := adapter.NewRegistry()
	reg.DefineModule(adapter.ModuleCrossChain, crosschain.Wrap)
	if err := reg.Register(adapter.ModuleCrossChain, Metadata()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	f := adapter.NewFactory(reg, adapter.EnvServer)

	_, err := crosschain.New(context.Background(), f, Name, adapter.Options{}, nil)
	if !errors.Is(err, adapter.ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}

	_, err = adapter.NewFactory(reg, adapter.EnvBrowser).Create(context.Background(), adapter.ModuleCrossChain, Name, adapter.Options{"redisAddr": "x"}, nil)
	if !errors.Is(err, adapter.ErrEnvironmentUnsupported) {
		t.Fatalf("expected ErrEnvironmentUnsupported, got %v", err)
	}
}
