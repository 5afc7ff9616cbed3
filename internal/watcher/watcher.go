// Package watcher waits for a subject (a transaction hash or a cross-chain
// execution id) to reach a terminal state. It tries a push channel first
// when the source has one and falls back to polling.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const DefaultPollInterval = time.Second

// Source fetches the current state of subject. done reports whether the
// returned value is terminal.
type Source[T any] interface {
	Fetch(ctx context.Context, subject string) (value T, done bool, err error)
}

// Waiter is the optional push fast path of a Source. It returns a terminal
// value or an error; any error means "poll instead".
type Waiter[T any] interface {
	WaitFor(ctx context.Context, subject string) (T, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context, subject string) (T, bool, error)

func (f SourceFunc[T]) Fetch(ctx context.Context, subject string) (T, bool, error) {
	return f(ctx, subject)
}

// Outcome is how a watch session ended.
type Outcome int

const (
	Found Outcome = iota + 1
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Options configures one watch session.
type Options struct {
	// Timeout is a wall clock bound from the start of the watch. Zero means
	// unbounded; the watch then ends only on a terminal value or ctx.
	Timeout time.Duration
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// OnPoll is called after every non-terminal attempt. Panics are
	// swallowed.
	OnPoll func(attempt int)

	// Kind labels logs and metrics, e.g. "receipt" or "execution".
	Kind    string
	Logger  *slog.Logger
	Metrics *Metrics
}

// Result is the end of one watch session. Value is only meaningful when
// Outcome is Found.
type Result[T any] struct {
	SessionID string
	Subject   string
	Value     T
	Outcome   Outcome
	// Attempts counts poll fetches; a push hit has zero.
	Attempts int
	ViaPush  bool
	Elapsed  time.Duration
}

// Found reports whether a terminal value was observed.
func (r Result[T]) Found() bool {
	return r.Outcome == Found
}

// Watch runs one watch session. It never returns an error: fetch failures
// are retried on the next attempt, and only a terminal value, the timeout or
// ctx cancellation end the session. Independent calls share no state.
func Watch[T any](ctx context.Context, src Source[T], subject string, opts Options) Result[T] {
	s := newSession[T](subject, opts)
	res := s.run(ctx, src)
	s.finish(&res)
	return res
}

type session[T any] struct {
	id      string
	subject string
	opts    Options
	logger  *slog.Logger
	start   time.Time
}

func newSession[T any](subject string, opts Options) *session[T] {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Kind == "" {
		opts.Kind = "generic"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &session[T]{
		id:      id,
		subject: subject,
		opts:    opts,
		logger:  logger.With("component", "watcher", "kind", opts.Kind, "session_id", id, "subject", subject),
		start:   time.Now(),
	}
}

func (s *session[T]) result(outcome Outcome) Result[T] {
	return Result[T]{SessionID: s.id, Subject: s.subject, Outcome: outcome}
}

func (s *session[T]) run(ctx context.Context, src Source[T]) Result[T] {
	if ctx.Err() != nil {
		return s.result(Cancelled)
	}

	var deadline time.Time
	if s.opts.Timeout > 0 {
		deadline = s.start.Add(s.opts.Timeout)
	}

	if w, ok := src.(Waiter[T]); ok {
		if v, ok := s.push(ctx, w, deadline); ok {
			res := s.result(Found)
			res.Value = v
			res.ViaPush = true
			return res
		}
	}

	attempts := 0
	for {
		if ctx.Err() != nil {
			res := s.result(Cancelled)
			res.Attempts = attempts
			return res
		}

		attempts++
		s.opts.Metrics.poll(s.opts.Kind)
		v, done, err := s.fetch(ctx, src)
		if err == nil && done {
			res := s.result(Found)
			res.Value = v
			res.Attempts = attempts
			return res
		}
		if err != nil {
			s.logger.Debug("fetch failed", "attempt", attempts, "error", err)
		}

		s.notify(attempts)

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			res := s.result(TimedOut)
			res.Attempts = attempts
			return res
		}

		timer := time.NewTimer(s.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			res := s.result(Cancelled)
			res.Attempts = attempts
			return res
		case <-timer.C:
		}
	}
}

// push tries the fast path bounded by deadline. Any failure falls through
// to polling.
func (s *session[T]) push(ctx context.Context, w Waiter[T], deadline time.Time) (T, bool) {
	pushCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		pushCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	v, err := func() (v T, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return w.WaitFor(pushCtx, s.subject)
	}()
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("push wait unavailable, polling", "error", err)
		}
		var zero T
		return zero, false
	}
	return v, true
}

func (s *session[T]) fetch(ctx context.Context, src Source[T]) (v T, done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return src.Fetch(ctx, s.subject)
}

func (s *session[T]) notify(attempt int) {
	if s.opts.OnPoll == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("poll observer panicked", "attempt", attempt, "panic", r)
		}
	}()
	s.opts.OnPoll(attempt)
}

func (s *session[T]) finish(res *Result[T]) {
	res.Elapsed = time.Since(s.start)
	s.opts.Metrics.observe(s.opts.Kind, res.Outcome, res.Elapsed)
	s.logger.Info("watch finished",
		"outcome", res.Outcome.String(),
		"attempts", res.Attempts,
		"via_push", res.ViaPush,
		"elapsed", res.Elapsed,
	)
}
