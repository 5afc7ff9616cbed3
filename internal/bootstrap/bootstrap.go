// Package bootstrap wires the built-in module kinds and adapters into a
// registry. Registration is explicit and ordered; adapter packages have no
// init side effects.
package bootstrap

import (
	"fmt"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/contract"
	"github.com/marko911/chainkit/internal/adapter/contract/evmabi"
	"github.com/marko911/chainkit/internal/adapter/crosschain"
	"github.com/marko911/chainkit/internal/adapter/crosschain/relayfeed"
	"github.com/marko911/chainkit/internal/adapter/crosschain/statusapi"
	"github.com/marko911/chainkit/internal/adapter/wallet"
	"github.com/marko911/chainkit/internal/adapter/wallet/evmkey"
	"github.com/marko911/chainkit/internal/adapter/wallet/solkey"
)

// Modules returns the built-in module kinds with their decorators.
func Modules() map[adapter.ModuleKind]adapter.WrapFunc {
	return map[adapter.ModuleKind]adapter.WrapFunc{
		adapter.ModuleWallet:          wallet.Wrap,
		adapter.ModuleContractHandler: contract.Wrap,
		adapter.ModuleCrossChain:      crosschain.Wrap,
	}
}

// Adapters returns the built-in adapters in registration order.
func Adapters() []adapter.Metadata {
	return []adapter.Metadata{
		evmkey.Metadata(),
		solkey.Metadata(),
		evmabi.Metadata(),
		statusapi.Metadata(),
		relayfeed.Metadata(),
	}
}

// Register defines every built-in module kind on reg, then registers every
// built-in adapter.
func Register(reg *adapter.Registry) error {
	for _, kind := range []adapter.ModuleKind{adapter.ModuleWallet, adapter.ModuleContractHandler, adapter.ModuleCrossChain} {
		reg.DefineModule(kind, Modules()[kind])
	}

	for _, md := range Adapters() {
		if err := reg.Register(md.Module, md); err != nil {
			return fmt.Errorf("register %s/%s: %w", md.Module, md.Name, err)
		}
	}
	return nil
}
