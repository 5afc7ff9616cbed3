// Package crosschain defines the cross-chain module contract, its execution
// states and the error-wrapping decorator.
package crosschain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marko911/chainkit/internal/adapter"
)

// ErrPushUnsupported is returned by WaitForStatus when the adapter has no
// push channel; callers fall back to polling.
var ErrPushUnsupported = errors.New("push status updates not supported")

// ExecutionState is the lifecycle state of a cross-chain execution.
type ExecutionState string

const (
	StatePending        ExecutionState = "PENDING"
	StateInProgress     ExecutionState = "IN_PROGRESS"
	StateActionRequired ExecutionState = "ACTION_REQUIRED"
	StateDone           ExecutionState = "DONE"
	StateFailed         ExecutionState = "FAILED"
	StateUnknown        ExecutionState = "UNKNOWN"
)

// ParseState normalizes the state strings used by bridge status APIs.
// COMPLETED is an alias of DONE.
func ParseState(s string) ExecutionState {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING", "NOT_FOUND":
		return StatePending
	case "IN_PROGRESS":
		return StateInProgress
	case "ACTION_REQUIRED":
		return StateActionRequired
	case "DONE", "COMPLETED":
		return StateDone
	case "FAILED", "INVALID":
		return StateFailed
	default:
		return StateUnknown
	}
}

// IsTerminal reports whether no further transition can happen.
func (s ExecutionState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// IsSuccess reports whether the execution completed on the destination.
func (s ExecutionState) IsSuccess() bool {
	return s == StateDone
}

// Status is a snapshot of one cross-chain execution.
type Status struct {
	ExecutionID string         `json:"executionId"`
	State       ExecutionState `json:"state"`
	Substatus   string         `json:"substatus,omitempty"`
	SourceTx    string         `json:"sourceTx,omitempty"`
	DestTx      string         `json:"destTx,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Bridge is the capability contract every cross-chain adapter implements.
type Bridge interface {
	GetStatus(ctx context.Context, executionID string) (Status, error)
	// WaitForStatus blocks until a terminal status is pushed, ctx ends, or
	// the push channel fails.
	WaitForStatus(ctx context.Context, executionID string) (Status, error)
}

type guarded struct {
	inner Bridge
	g     *adapter.Guard
}

// Wrap is the cross-chain module's adapter.WrapFunc.
func Wrap(instance any, g *adapter.Guard) (any, error) {
	b, ok := instance.(Bridge)
	if !ok {
		return nil, fmt.Errorf("%T is not a cross-chain bridge", instance)
	}
	return &guarded{inner: b, g: g}, nil
}

func (b *guarded) Unwrap() any { return b.inner }

func (b *guarded) GetStatus(ctx context.Context, executionID string) (Status, error) {
	return adapter.Invoke(b.g, "GetStatus", func() (Status, error) {
		return b.inner.GetStatus(ctx, executionID)
	})
}

func (b *guarded) WaitForStatus(ctx context.Context, executionID string) (Status, error) {
	return adapter.Invoke(b.g, "WaitForStatus", func() (Status, error) {
		return b.inner.WaitForStatus(ctx, executionID)
	})
}

// New creates the cross-chain adapter registered as name.
func New(ctx context.Context, f *adapter.Factory, name string, opts adapter.Options, provider *adapter.ProviderContext) (Bridge, error) {
	return adapter.Create[Bridge](ctx, f, adapter.ModuleCrossChain, name, opts, provider)
}
