// Package contract defines the contract handler module contract and its
// error-wrapping decorator.
package contract

import (
	"context"
	"fmt"

	"github.com/marko911/chainkit/internal/adapter"
)

// Contract is a loaded, callable contract definition.
type Contract struct {
	Name     string
	Methods  []string
	Events   []string
	Bytecode []byte
}

// Handler is the capability contract every contract handler implements.
type Handler interface {
	LoadContract(ctx context.Context, name string) (*Contract, error)
	EncodeCall(ctx context.Context, name, method string, args ...any) ([]byte, error)
	Call(ctx context.Context, name, address, method string, args ...any) ([]any, error)
	DeployData(ctx context.Context, name string, args ...any) ([]byte, error)
}

type guarded struct {
	inner Handler
	g     *adapter.Guard
}

// Wrap is the contract handler module's adapter.WrapFunc.
func Wrap(instance any, g *adapter.Guard) (any, error) {
	h, ok := instance.(Handler)
	if !ok {
		return nil, fmt.Errorf("%T is not a contract handler", instance)
	}
	return &guarded{inner: h, g: g}, nil
}

func (h *guarded) Unwrap() any { return h.inner }

func (h *guarded) LoadContract(ctx context.Context, name string) (*Contract, error) {
	return adapter.Invoke(h.g, "LoadContract", func() (*Contract, error) {
		return h.inner.LoadContract(ctx, name)
	})
}

func (h *guarded) EncodeCall(ctx context.Context, name, method string, args ...any) ([]byte, error) {
	return adapter.Invoke(h.g, "EncodeCall", func() ([]byte, error) {
		return h.inner.EncodeCall(ctx, name, method, args...)
	})
}

func (h *guarded) Call(ctx context.Context, name, address, method string, args ...any) ([]any, error) {
	return adapter.Invoke(h.g, "Call", func() ([]any, error) {
		return h.inner.Call(ctx, name, address, method, args...)
	})
}

func (h *guarded) DeployData(ctx context.Context, name string, args ...any) ([]byte, error) {
	return adapter.Invoke(h.g, "DeployData", func() ([]byte, error) {
		return h.inner.DeployData(ctx, name, args...)
	})
}

// New creates the contract handler registered as name.
func New(ctx context.Context, f *adapter.Factory, name string, opts adapter.Options, provider *adapter.ProviderContext) (Handler, error) {
	return adapter.Create[Handler](ctx, f, adapter.ModuleContractHandler, name, opts, provider)
}
