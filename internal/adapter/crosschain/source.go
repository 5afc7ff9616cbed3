package crosschain

import (
	"context"
	"time"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/watcher"
)

// StatusSource exposes a bridge to the outcome watcher. The push path is
// offered only when the bridge advertises CapPushUpdates.
type StatusSource struct {
	bridge Bridge
	push   bool
}

// NewStatusSource probes b for push support once.
func NewStatusSource(b Bridge) *StatusSource {
	return &StatusSource{bridge: b, push: adapter.Has(b, adapter.CapPushUpdates)}
}

// Fetch reads the current status; DONE and FAILED are terminal.
func (s *StatusSource) Fetch(ctx context.Context, executionID string) (Status, bool, error) {
	st, err := s.bridge.GetStatus(ctx, executionID)
	if err != nil {
		return Status{}, false, err
	}
	return st, st.State.IsTerminal(), nil
}

func (s *StatusSource) WaitFor(ctx context.Context, executionID string) (Status, error) {
	if !s.push {
		return Status{}, ErrPushUnsupported
	}
	return s.bridge.WaitForStatus(ctx, executionID)
}

// WatchExecution waits for executionID to reach DONE or FAILED.
func WatchExecution(ctx context.Context, b Bridge, executionID string, opts watcher.Options) watcher.Result[Status] {
	if opts.Kind == "" {
		opts.Kind = "execution"
	}
	return watcher.Watch[Status](ctx, NewStatusSource(b), executionID, opts)
}

// DefaultWatchOptions mirrors the usual bridge finality window.
func DefaultWatchOptions() watcher.Options {
	return watcher.Options{Timeout: 30 * time.Minute, PollInterval: 5 * time.Second, Kind: "execution"}
}

var (
	_ watcher.Source[Status] = (*StatusSource)(nil)
	_ watcher.Waiter[Status] = (*StatusSource)(nil)
)
