// Package adapter is the registry, capability matching and lifecycle core
// that resolves named wallet, contract handler and cross-chain adapters.
package adapter

import (
	"context"
	"sort"
)

// ModuleKind is the category of pluggable capability an adapter provides.
type ModuleKind string

const (
	ModuleWallet          ModuleKind = "wallet"
	ModuleContractHandler ModuleKind = "contractHandler"
	ModuleCrossChain      ModuleKind = "crosschain"
)

// Options is the caller supplied options object handed to an adapter's
// constructor after validation.
type Options map[string]any

// String returns the string value at key, or "" when absent or not a string.
func (o Options) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Object returns the nested options object at key.
func (o Options) Object(key string) Options {
	switch v := o[key].(type) {
	case Options:
		return v
	case map[string]any:
		return Options(v)
	default:
		return nil
	}
}

// Uint64 returns the numeric value at key converted to uint64.
func (o Options) Uint64(key string) (uint64, bool) {
	switch v := o[key].(type) {
	case int:
		return uint64(v), v >= 0
	case int64:
		return uint64(v), v >= 0
	case uint64:
		return v, true
	case float64:
		return uint64(v), v >= 0
	default:
		return 0, false
	}
}

// ProviderContext describes the network an adapter should talk to when the
// caller wants to override what the options configured.
type ProviderContext struct {
	Network string
	ChainID uint64
	RPCURL  string
}

// Initializer is implemented by adapters that need asynchronous setup after
// construction.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// ProviderSetter is implemented by adapters that can be pointed at a network.
type ProviderSetter interface {
	SetProvider(ctx context.Context, provider ProviderContext) error
}

// Connector is implemented by adapters with an explicit connection lifecycle.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Unwrapper is implemented by error-wrapping decorators.
type Unwrapper interface {
	Unwrap() any
}

// Capability names an optional behavior an adapter instance may expose.
type Capability string

const (
	CapInitialize  Capability = "initialize"
	CapProvider    Capability = "provider"
	CapConnect     Capability = "connect"
	CapPushUpdates Capability = "push-updates"
)

// CapabilitySet is the set of optional capabilities an instance exposes.
type CapabilitySet map[Capability]bool

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	return s[c]
}

// List returns the capabilities in sorted order.
func (s CapabilitySet) List() []string {
	out := make([]string, 0, len(s))
	for c, ok := range s {
		if ok {
			out = append(out, string(c))
		}
	}
	sort.Strings(out)
	return out
}

// capabilityProber lets an adapter add capabilities that are not expressed
// as a Go interface.
type capabilityProber interface {
	Capabilities() []Capability
}

// Unwrap strips every decorator layer from v.
func Unwrap(v any) any {
	for {
		u, ok := v.(Unwrapper)
		if !ok {
			return v
		}
		v = u.Unwrap()
	}
}

// Capabilities reports the optional capabilities of v. Decorators are
// looked through so a wrapped instance answers the same as the raw one.
func Capabilities(v any) CapabilitySet {
	raw := Unwrap(v)
	set := CapabilitySet{}
	if _, ok := raw.(Initializer); ok {
		set[CapInitialize] = true
	}
	if _, ok := raw.(ProviderSetter); ok {
		set[CapProvider] = true
	}
	if _, ok := raw.(Connector); ok {
		set[CapConnect] = true
	}
	if p, ok := raw.(capabilityProber); ok {
		for _, c := range p.Capabilities() {
			set[c] = true
		}
	}
	return set
}

// Has reports whether v exposes capability c.
func Has(v any, c Capability) bool {
	return Capabilities(v).Has(c)
}
