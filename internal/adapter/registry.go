package adapter

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Constructor is an adapter's own creation entry point. The factory hands it
// validated options; the adapter decides how to build itself.
type Constructor func(ctx context.Context, opts Options) (any, error)

// WrapFunc decorates a constructed instance of a module kind so every method
// call goes through g.
type WrapFunc func(instance any, g *Guard) (any, error)

// Metadata is the identity and contract of one adapter.
type Metadata struct {
	Name        string
	Module      ModuleKind
	AdapterType string

	Constructor Constructor

	Requirements []Requirement
	Environment  *EnvironmentRequirements

	// ErrorMap maps a raw error substring to a normalized error code.
	ErrorMap map[string]string
	Features []string
}

func (m Metadata) clone() Metadata {
	m.Requirements = slices.Clone(m.Requirements)
	m.ErrorMap = maps.Clone(m.ErrorMap)
	m.Features = slices.Clone(m.Features)
	if m.Environment != nil {
		env := *m.Environment
		env.SupportedEnvironments = slices.Clone(env.SupportedEnvironments)
		env.Limitations = slices.Clone(env.Limitations)
		m.Environment = &env
	}
	return m
}

// HasFeature reports whether the adapter advertises feature tag f.
func (m Metadata) HasFeature(f string) bool {
	return slices.Contains(m.Features, f)
}

// DuplicatePolicy decides what Register does with an already used key.
type DuplicatePolicy int

const (
	DuplicateReject DuplicatePolicy = iota
	DuplicateReplace
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDuplicatePolicy sets how Register treats a name already in use.
// The default is DuplicateReject.
func WithDuplicatePolicy(p DuplicatePolicy) RegistryOption {
	return func(r *Registry) {
		r.policy = p
	}
}

type moduleEntry struct {
	wrap     WrapFunc
	order    []string
	adapters map[string]Metadata
}

// Registry maps (module, name) to adapter metadata. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	policy  DuplicatePolicy
	modules map[ModuleKind]*moduleEntry
	kinds   []ModuleKind
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		modules: make(map[ModuleKind]*moduleEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) entry(kind ModuleKind) *moduleEntry {
	e, ok := r.modules[kind]
	if !ok {
		e = &moduleEntry{adapters: make(map[string]Metadata)}
		r.modules[kind] = e
		r.kinds = append(r.kinds, kind)
	}
	return e
}

// DefineModule records the decorator used to wrap instances of kind.
func (r *Registry) DefineModule(kind ModuleKind, wrap WrapFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(kind).wrap = wrap
}

// Register stores md under (kind, md.Name).
func (r *Registry) Register(kind ModuleKind, md Metadata) error {
	if kind == "" {
		return fmt.Errorf("register adapter %q: module kind is empty", md.Name)
	}
	if md.Name == "" {
		return fmt.Errorf("register adapter in %s: name is empty", kind)
	}
	if md.Constructor == nil {
		return fmt.Errorf("register adapter %s/%s: constructor is nil", kind, md.Name)
	}

	md = md.clone()
	md.Module = kind

	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(kind)
	if _, exists := e.adapters[md.Name]; exists {
		if r.policy == DuplicateReject {
			return &Error{
				Kind:    KindDuplicateRegistration,
				Module:  kind,
				Adapter: md.Name,
				Err:     fmt.Errorf("adapter %s already registered", md.Name),
			}
		}
		e.adapters[md.Name] = md
		return nil
	}

	e.adapters[md.Name] = md
	e.order = append(e.order, md.Name)
	return nil
}

// Lookup returns a copy of the metadata registered under (kind, name).
func (r *Registry) Lookup(kind ModuleKind, name string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.modules[kind]
	if !ok {
		return Metadata{}, false
	}
	md, ok := e.adapters[name]
	if !ok {
		return Metadata{}, false
	}
	return md.clone(), true
}

// List returns the adapters of kind in registration order.
func (r *Registry) List(kind ModuleKind) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.modules[kind]
	if !ok {
		return nil
	}
	out := make([]Metadata, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.adapters[name].clone())
	}
	return out
}

// Modules returns every module kind known to the registry, in first seen order.
func (r *Registry) Modules() []ModuleKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.kinds)
}

func (r *Registry) wrapper(kind ModuleKind) WrapFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.modules[kind]; ok {
		return e.wrap
	}
	return nil
}

// Reset drops every registration and module definition.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = make(map[ModuleKind]*moduleEntry)
	r.kinds = nil
}
