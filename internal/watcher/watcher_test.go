package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// countingSource reports terminal on the readyAt-th fetch. readyAt 0 never
// becomes terminal.
type countingSource struct {
	readyAt int
	calls   atomic.Int32
	failOn  int
	panicOn int
}

func (s *countingSource) Fetch(ctx context.Context, subject string) (string, bool, error) {
	n := int(s.calls.Add(1))
	if n == s.panicOn {
		panic("decoder blew up")
	}
	if n == s.failOn {
		return "", false, errors.New("connection reset")
	}
	if s.readyAt > 0 && n >= s.readyAt {
		return "done:" + subject, true, nil
	}
	return "", false, nil
}

type pushSource struct {
	countingSource
	value   string
	err     error
	block   bool
	waited  atomic.Int32
	panicky bool
}

func (s *pushSource) WaitFor(ctx context.Context, subject string) (string, error) {
	s.waited.Add(1)
	if s.panicky {
		panic("subscription closed")
	}
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.value, s.err
}

func TestWatchFoundAfterPolls(t *testing.T) {
	const interval = 20 * time.Millisecond
	src := &countingSource{readyAt: 4}
	var polled []int

	res := Watch[string](context.Background(), src, "0xabc", Options{
		PollInterval: interval,
		OnPoll:       func(n int) { polled = append(polled, n) },
	})

	if !res.Found() {
		t.Fatalf("expected found, got %s", res.Outcome)
	}
	if res.Value != "done:0xabc" {
		t.Errorf("Value = %q", res.Value)
	}
	if res.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", res.Attempts)
	}
	if len(polled) != 3 || polled[0] != 1 || polled[2] != 3 {
		t.Errorf("OnPoll calls = %v, want [1 2 3]", polled)
	}
	// Three non-terminal attempts means three full sleeps.
	if res.Elapsed < 3*interval {
		t.Errorf("Elapsed = %v, want at least %v", res.Elapsed, 3*interval)
	}
	if res.ViaPush {
		t.Error("plain source must not report push")
	}
	if res.SessionID == "" || res.Subject != "0xabc" {
		t.Errorf("session not stamped: %+v", res)
	}
}

func TestWatchTimeout(t *testing.T) {
	const (
		timeout  = 100 * time.Millisecond
		interval = 20 * time.Millisecond
		slack    = 15 * time.Millisecond
	)
	src := &countingSource{}
	start := time.Now()

	res := Watch[string](context.Background(), src, "never", Options{
		Timeout:      timeout,
		PollInterval: interval,
	})

	if res.Outcome != TimedOut {
		t.Fatalf("expected timed out, got %s", res.Outcome)
	}
	elapsed := time.Since(start)
	if elapsed < timeout {
		t.Errorf("returned before timeout: %v", elapsed)
	}
	if elapsed > timeout+interval+slack {
		t.Errorf("returned %v after the deadline, more than one poll interval", elapsed-timeout)
	}
	if res.Attempts < 5 {
		t.Errorf("expected several attempts, got %d", res.Attempts)
	}
	if res.Value != "" {
		t.Errorf("Value on timeout = %q", res.Value)
	}
}

func TestWatchCancelledBeforeStart(t *testing.T) {
	src := &pushSource{value: "x"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	polled := 0
	res := Watch[string](ctx, src, "s", Options{OnPoll: func(int) { polled++ }})

	if res.Outcome != Cancelled {
		t.Fatalf("expected cancelled, got %s", res.Outcome)
	}
	if src.calls.Load() != 0 || src.waited.Load() != 0 || polled != 0 {
		t.Errorf("work done after cancel: fetch=%d wait=%d poll=%d", src.calls.Load(), src.waited.Load(), polled)
	}
}

func TestWatchCancelledWhilePolling(t *testing.T) {
	src := &countingSource{}
	ctx, cancel := context.WithCancel(context.Background())

	res := Watch[string](ctx, src, "s", Options{
		PollInterval: time.Hour,
		OnPoll:       func(int) { cancel() },
	})

	if res.Outcome != Cancelled {
		t.Fatalf("expected cancelled, got %s", res.Outcome)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
}

func TestWatchZeroTimeoutIsUnbounded(t *testing.T) {
	src := &countingSource{}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	res := Watch[string](ctx, src, "s", Options{PollInterval: 5 * time.Millisecond})

	if res.Outcome != Cancelled {
		t.Fatalf("expected cancelled by ctx, got %s", res.Outcome)
	}
}

func TestWatchSwallowsFailures(t *testing.T) {
	src := &countingSource{readyAt: 4, failOn: 1, panicOn: 2}

	res := Watch[string](context.Background(), src, "s", Options{
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
		OnPoll: func(n int) {
			if n == 3 {
				panic("observer bug")
			}
		},
	})

	if !res.Found() || res.Attempts != 4 {
		t.Errorf("expected found on attempt 4, got %s after %d", res.Outcome, res.Attempts)
	}
}

func TestWatchPush(t *testing.T) {
	src := &pushSource{value: "pushed"}

	res := Watch[string](context.Background(), src, "s", Options{Timeout: time.Second})

	if !res.Found() || !res.ViaPush || res.Value != "pushed" {
		t.Errorf("expected push result, got %+v", res)
	}
	if res.Attempts != 0 || src.calls.Load() != 0 {
		t.Errorf("push hit should not poll: attempts=%d fetches=%d", res.Attempts, src.calls.Load())
	}
}

func TestWatchPushFallback(t *testing.T) {
	tests := []struct {
		name string
		src  *pushSource
	}{
		{"error", &pushSource{err: errors.New("push unsupported")}},
		{"panic", &pushSource{panicky: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.src.readyAt = 2
			res := Watch[string](context.Background(), tt.src, "s", Options{
				Timeout:      time.Second,
				PollInterval: time.Millisecond,
			})
			if !res.Found() || res.ViaPush {
				t.Fatalf("expected poll result, got %+v", res)
			}
			if res.Attempts != 2 {
				t.Errorf("Attempts = %d, want 2", res.Attempts)
			}
		})
	}
}

func TestWatchPushBoundedByTimeout(t *testing.T) {
	src := &pushSource{block: true}

	res := Watch[string](context.Background(), src, "s", Options{
		Timeout:      30 * time.Millisecond,
		PollInterval: time.Millisecond,
	})

	if res.Outcome != TimedOut {
		t.Fatalf("expected timed out, got %s", res.Outcome)
	}
	if res.Attempts != 1 {
		t.Errorf("expected a single poll after the push window, got %d", res.Attempts)
	}
}

func TestWatchSessionsAreIndependent(t *testing.T) {
	a := Watch[string](context.Background(), &countingSource{readyAt: 1}, "a", Options{})
	b := Watch[string](context.Background(), &countingSource{readyAt: 1}, "b", Options{})

	if a.SessionID == b.SessionID {
		t.Error("sessions share an id")
	}
	if a.Value != "done:a" || b.Value != "done:b" {
		t.Errorf("values crossed: %q %q", a.Value, b.Value)
	}
}

func TestWatchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	Watch[string](context.Background(), &countingSource{readyAt: 3}, "s", Options{
		PollInterval: time.Millisecond,
		Kind:         "receipt",
		Metrics:      m,
	})

	if got := testutil.ToFloat64(m.polls.WithLabelValues("receipt")); got != 3 {
		t.Errorf("polls = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.sessions.WithLabelValues("receipt", "found")); got != 1 {
		t.Errorf("sessions = %v, want 1", got)
	}
}
