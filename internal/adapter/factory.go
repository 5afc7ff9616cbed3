package adapter

import (
	"context"
	"fmt"
	"log/slog"
)

// Request is the factory entry point consumed by application code.
type Request struct {
	Module      ModuleKind
	AdapterName string
	Options     Options
	Provider    *ProviderContext
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithReportMode selects whether InvalidArguments carries the first or all
// violations.
func WithReportMode(mode ReportMode) FactoryOption {
	return func(f *Factory) {
		f.mode = mode
	}
}

// WithLogger sets the logger used for creation and guarded method failures.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithMetrics records creations and method failures in m.
func WithMetrics(m *Metrics) FactoryOption {
	return func(f *Factory) {
		f.metrics = m
	}
}

// WithInstantiateHook installs fn, called right before an adapter's
// constructor runs.
func WithInstantiateHook(fn func(Metadata)) FactoryOption {
	return func(f *Factory) {
		f.onInstantiate = fn
	}
}

// Factory resolves, gates, builds and wraps adapters.
type Factory struct {
	registry *Registry
	env      Environment
	mode     ReportMode
	logger   *slog.Logger
	metrics  *Metrics

	onInstantiate func(Metadata)
}

// NewFactory returns a factory serving adapters from reg for a host running
// in env.
func NewFactory(reg *Registry, env Environment, opts ...FactoryOption) *Factory {
	f := &Factory{
		registry: reg,
		env:      env,
		mode:     ReportAll,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "adapter-factory")
	return f
}

// Environment returns the runtime environment the factory gates against.
func (f *Factory) Environment() Environment { return f.env }

// Registry returns the registry adapters are resolved from.
func (f *Factory) Registry() *Registry { return f.registry }

// CreateRequest is Create driven by a Request.
func (f *Factory) CreateRequest(ctx context.Context, req Request) (any, error) {
	return f.Create(ctx, req.Module, req.AdapterName, req.Options, req.Provider)
}

// Create builds the adapter registered as (kind, name). Lookup, environment
// and requirement checks fail before any adapter code runs. A failure after
// construction leaves the instance unusable; nothing is retried.
func (f *Factory) Create(ctx context.Context, kind ModuleKind, name string, opts Options, provider *ProviderContext) (any, error) {
	inst, err := f.create(ctx, kind, name, opts, provider)
	if err != nil {
		f.metrics.createError(kind, name, KindOf(err))
		f.logger.Warn("adapter create failed",
			"module", string(kind),
			"adapter", name,
			"error", err,
		)
		return nil, err
	}
	f.metrics.createOK(kind, name)
	return inst, nil
}

func (f *Factory) create(ctx context.Context, kind ModuleKind, name string, opts Options, provider *ProviderContext) (any, error) {
	md, ok := f.registry.Lookup(kind, name)
	if !ok {
		return nil, &Error{Kind: KindUnknownAdapter, Module: kind, Adapter: name}
	}

	if !Matches(md.Environment, f.env) {
		return nil, &Error{
			Kind:        KindEnvironmentUnsupported,
			Module:      kind,
			Adapter:     name,
			Limitations: md.Environment.Limitations,
			Err:         fmt.Errorf("running in %s, supported %v", f.env, md.Environment.SupportedEnvironments),
		}
	}

	if opts == nil {
		opts = Options{}
	}
	if res := ValidateWith(opts, md.Requirements, f.mode); !res.OK() {
		return nil, &Error{
			Kind:       KindInvalidArguments,
			Module:     kind,
			Adapter:    name,
			Violations: res.Violations,
		}
	}

	if f.onInstantiate != nil {
		f.onInstantiate(md)
	}

	inst, err := md.Constructor(ctx, opts)
	if err != nil {
		return nil, &Error{Kind: KindAdapterInitialization, Module: kind, Adapter: name, Err: fmt.Errorf("construct: %w", err)}
	}
	if inst == nil {
		return nil, &Error{Kind: KindAdapterInitialization, Module: kind, Adapter: name, Err: fmt.Errorf("constructor returned nil")}
	}

	if init, ok := inst.(Initializer); ok {
		if err := init.Initialize(ctx); err != nil {
			return nil, &Error{Kind: KindAdapterInitialization, Module: kind, Adapter: name, Err: err}
		}
	}

	if provider != nil {
		if ps, ok := inst.(ProviderSetter); ok {
			if err := ps.SetProvider(ctx, *provider); err != nil {
				return nil, &Error{Kind: KindAdapterInitialization, Module: kind, Adapter: name, Err: fmt.Errorf("set provider: %w", err)}
			}
		}
	}

	wrap := f.registry.wrapper(kind)
	if wrap == nil {
		wrap = wrapOpaque
	}
	wrapped, err := wrap(inst, NewGuard(md, f.logger, f.metrics))
	if err != nil {
		return nil, &Error{Kind: KindAdapterInitialization, Module: kind, Adapter: name, Err: fmt.Errorf("wrap: %w", err)}
	}

	f.logger.Debug("adapter created",
		"module", string(kind),
		"adapter", name,
		"capabilities", Capabilities(wrapped).List(),
	)
	return wrapped, nil
}

// Create builds an adapter and asserts it to the module interface T.
func Create[T any](ctx context.Context, f *Factory, kind ModuleKind, name string, opts Options, provider *ProviderContext) (T, error) {
	var zero T
	inst, err := f.Create(ctx, kind, name, opts, provider)
	if err != nil {
		return zero, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, &Error{
			Kind:    KindAdapterInitialization,
			Module:  kind,
			Adapter: name,
			Err:     fmt.Errorf("instance %T does not implement %T", inst, (*T)(nil)),
		}
	}
	return typed, nil
}
