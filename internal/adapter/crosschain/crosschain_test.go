package crosschain

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/watcher"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		in   string
		want ExecutionState
	}{
		{"DONE", StateDone},
		{"completed", StateDone},
		{" failed ", StateFailed},
		{"INVALID", StateFailed},
		{"NOT_FOUND", StatePending},
		{"IN_PROGRESS", StateInProgress},
		{"ACTION_REQUIRED", StateActionRequired},
		{"teleporting", StateUnknown},
	}

	for _, tt := range tests {
		if got := ParseState(tt.in); got != tt.want {
			t.Errorf("ParseState(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if StateActionRequired.IsTerminal() || !StateFailed.IsTerminal() || StateFailed.IsSuccess() {
		t.Error("terminal classification is wrong")
	}
}

// scriptedBridge walks through states, one per GetStatus call.
type scriptedBridge struct {
	states []ExecutionState
	calls  atomic.Int32
	push   bool
	pushed atomic.Int32
}

func (b *scriptedBridge) GetStatus(ctx context.Context, id string) (Status, error) {
	i := int(b.calls.Add(1)) - 1
	if i >= len(b.states) {
		i = len(b.states) - 1
	}
	return Status{ExecutionID: id, State: b.states[i]}, nil
}

func (b *scriptedBridge) WaitForStatus(ctx context.Context, id string) (Status, error) {
	b.pushed.Add(1)
	return Status{ExecutionID: id, State: StateDone, Substatus: "pushed"}, nil
}

func (b *scriptedBridge) Capabilities() []adapter.Capability {
	if b.push {
		return []adapter.Capability{adapter.CapPushUpdates}
	}
	return nil
}

func TestWatchExecutionPolls(t *testing.T) {
	b := &scriptedBridge{states: []ExecutionState{StatePending, StateInProgress, StateActionRequired, StateDone}}

	res := WatchExecution(context.Background(), b, "e1", watcher.Options{
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
	})

	if !res.Found() || res.Value.State != StateDone {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", res.Attempts)
	}
	if b.pushed.Load() != 0 {
		t.Error("push must not be attempted without the capability")
	}
}

func TestWatchExecutionPush(t *testing.T) {
	b := &scriptedBridge{states: []ExecutionState{StatePending}, push: true}

	res := WatchExecution(context.Background(), b, "e2", watcher.Options{Timeout: time.Second})

	if !res.Found() || !res.ViaPush || res.Value.Substatus != "pushed" {
		t.Fatalf("unexpected result %+v", res)
	}
	if b.calls.Load() != 0 {
		t.Errorf("push hit should skip polling, got %d fetches", b.calls.Load())
	}
}

func TestWatchExecutionThroughWrapper(t *testing.T) {
	reg := adapter.NewRegistry()
	reg.DefineModule(adapter.ModuleCrossChain, Wrap)
	reg.Register(adapter.ModuleCrossChain, adapter.Metadata{
		Name: "scripted",
		Constructor: func(ctx context.Context, o adapter.Options) (any, error) {
			return &scriptedBridge{states: []ExecutionState{StateFailed}, push: true}, nil
		},
	})
	f := adapter.NewFactory(reg, adapter.EnvServer)

	br, err := New(context.Background(), f, "scripted", nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !adapter.Has(br, adapter.CapPushUpdates) {
		t.Fatal("wrapper hides the push capability")
	}

	res := WatchExecution(context.Background(), br, "e3", watcher.Options{Timeout: time.Second})
	if !res.ViaPush {
		t.Errorf("expected push through the wrapper, got %+v", res)
	}
}

type failingBridge struct{}

func (failingBridge) GetStatus(ctx context.Context, id string) (Status, error) {
	return Status{}, errors.New("status 503")
}

func (failingBridge) WaitForStatus(ctx context.Context, id string) (Status, error) {
	return Status{}, ErrPushUnsupported
}

func TestWrapNormalizesErrors(t *testing.T) {
	g := adapter.NewGuard(adapter.Metadata{
		Name:     "failing",
		Module:   adapter.ModuleCrossChain,
		ErrorMap: map[string]string{"status 5": "UPSTREAM_UNAVAILABLE"},
	}, nil, nil)
	inst, err := Wrap(failingBridge{}, g)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	br := inst.(Bridge)

	_, err = br.GetStatus(context.Background(), "e4")
	if !errors.Is(err, adapter.ErrAdapterMethod) {
		t.Fatalf("expected ErrAdapterMethod, got %v", err)
	}
	if !strings.Contains(err.Error(), "GetStatus") || !strings.Contains(err.Error(), "status 503") {
		t.Errorf("message %q must contain method and cause", err)
	}

	_, err = br.WaitForStatus(context.Background(), "e4")
	if !errors.Is(err, ErrPushUnsupported) {
		t.Errorf("sentinel should stay reachable, got %v", err)
	}

	if _, err := Wrap(struct{}{}, g); err == nil {
		t.Error("expected Wrap to reject a non-bridge")
	}
}

func TestWatchExecutionTimesOut(t *testing.T) {
	res := WatchExecution(context.Background(), failingBridge{}, "e5", watcher.Options{
		Timeout:      30 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
	if res.Outcome != watcher.TimedOut {
		t.Errorf("expected timed out, got %s", res.Outcome)
	}
	if res.Attempts == 0 {
		t.Error("expected poll attempts")
	}
}
