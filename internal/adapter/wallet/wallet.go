// Package wallet defines the wallet module contract and its error-wrapping
// decorator.
package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/marko911/chainkit/internal/adapter"
)

// TxRequest is a chain agnostic value transfer or contract call.
type TxRequest struct {
	// To is empty for contract creation.
	To    string
	Value *big.Int
	Data  []byte
	// Gas overrides estimation when non-zero.
	Gas uint64
}

// Wallet is the capability contract every wallet adapter implements.
type Wallet interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GetAccounts(ctx context.Context) ([]string, error)
	GetBalance(ctx context.Context, account string) (*big.Int, error)
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	SendTransaction(ctx context.Context, tx TxRequest) (string, error)
}

type guarded struct {
	inner Wallet
	g     *adapter.Guard
}

// Wrap is the wallet module's adapter.WrapFunc.
func Wrap(instance any, g *adapter.Guard) (any, error) {
	w, ok := instance.(Wallet)
	if !ok {
		return nil, fmt.Errorf("%T is not a wallet", instance)
	}
	return &guarded{inner: w, g: g}, nil
}

func (w *guarded) Unwrap() any { return w.inner }

func (w *guarded) Connect(ctx context.Context) error {
	return w.g.Call("Connect", func() error { return w.inner.Connect(ctx) })
}

func (w *guarded) Disconnect(ctx context.Context) error {
	return w.g.Call("Disconnect", func() error { return w.inner.Disconnect(ctx) })
}

func (w *guarded) GetAccounts(ctx context.Context) ([]string, error) {
	return adapter.Invoke(w.g, "GetAccounts", func() ([]string, error) {
		return w.inner.GetAccounts(ctx)
	})
}

func (w *guarded) GetBalance(ctx context.Context, account string) (*big.Int, error) {
	return adapter.Invoke(w.g, "GetBalance", func() (*big.Int, error) {
		return w.inner.GetBalance(ctx, account)
	})
}

func (w *guarded) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return adapter.Invoke(w.g, "SignMessage", func() ([]byte, error) {
		return w.inner.SignMessage(ctx, message)
	})
}

func (w *guarded) SendTransaction(ctx context.Context, tx TxRequest) (string, error) {
	return adapter.Invoke(w.g, "SendTransaction", func() (string, error) {
		return w.inner.SendTransaction(ctx, tx)
	})
}

// New creates the wallet adapter registered as name.
func New(ctx context.Context, f *adapter.Factory, name string, opts adapter.Options, provider *adapter.ProviderContext) (Wallet, error) {
	return adapter.Create[Wallet](ctx, f, adapter.ModuleWallet, name, opts, provider)
}
