package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Guard is the interception point shared by every method of a wrapped
// adapter. Failures are logged with the method name and returned as
// *Error{Kind: KindAdapterMethod}.
type Guard struct {
	module   ModuleKind
	adapter  string
	errorMap map[string]string
	logger   *slog.Logger
	metrics  *Metrics
}

// NewGuard builds the guard for one adapter instance described by md.
func NewGuard(md Metadata, logger *slog.Logger, metrics *Metrics) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		module:   md.Module,
		adapter:  md.Name,
		errorMap: md.ErrorMap,
		logger:   logger.With("module", string(md.Module), "adapter", md.Name),
		metrics:  metrics,
	}
}

// Module returns the module kind of the guarded adapter.
func (g *Guard) Module() ModuleKind { return g.module }

// Adapter returns the registered name of the guarded adapter.
func (g *Guard) Adapter() string { return g.adapter }

// Call runs fn as method and normalizes its failure.
func (g *Guard) Call(method string, fn func() error) error {
	_, err := Invoke(g, method, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Invoke runs fn as method. A returned value passes through unchanged; a
// returned error or a panic becomes an AdapterMethodError.
func Invoke[T any](g *Guard, method string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = g.fail(method, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err = fn()
	if err != nil {
		var zero T
		return zero, g.fail(method, err)
	}
	return result, nil
}

func (g *Guard) fail(method string, cause error) error {
	// Already normalized by an inner guard.
	var ae *Error
	if errors.As(cause, &ae) && ae.Kind == KindAdapterMethod {
		return cause
	}

	code := g.code(cause)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		// The caller ended the call; not an adapter fault.
		g.logger.Debug("adapter method interrupted", "method", method, "error", cause)
	} else {
		g.logger.Error("adapter method failed",
			"method", method,
			"code", code,
			"error", cause,
		)
		g.metrics.methodFailed(g.module, g.adapter, method)
	}

	return &Error{
		Kind:    KindAdapterMethod,
		Module:  g.module,
		Adapter: g.adapter,
		Method:  method,
		Code:    code,
		Err:     cause,
	}
}

func (g *Guard) code(err error) string {
	// Longest matching signature wins.
	msg := err.Error()
	best, code := "", ""
	for signature, c := range g.errorMap {
		if !strings.Contains(msg, signature) {
			continue
		}
		if len(signature) > len(best) || (len(signature) == len(best) && signature < best) {
			best, code = signature, c
		}
	}
	return code
}

// Opaque wraps instances of module kinds that have no dedicated decorator.
// Callers reach the instance only through Do, so failures are still
// normalized.
type Opaque struct {
	inner any
	guard *Guard
}

func wrapOpaque(instance any, g *Guard) (any, error) {
	return &Opaque{inner: instance, guard: g}, nil
}

// Unwrap returns the raw instance for capability probing.
func (o *Opaque) Unwrap() any { return o.inner }

// Do calls fn with the raw instance under the guard.
func (o *Opaque) Do(method string, fn func(instance any) error) error {
	return o.guard.Call(method, func() error {
		return fn(o.inner)
	})
}
