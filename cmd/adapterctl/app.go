package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/bootstrap"
	"github.com/marko911/chainkit/internal/config"
	"github.com/marko911/chainkit/internal/platform/kafka"
	pnats "github.com/marko911/chainkit/internal/platform/nats"
	"github.com/marko911/chainkit/internal/platform/outcome"
	"github.com/marko911/chainkit/internal/platform/storage"
	"github.com/marko911/chainkit/internal/watcher"
)

type commonFlags struct {
	configPath *string
	env        *string
	logLevel   *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", os.Getenv("ADAPTERCTL_CONFIG"), "path to configuration file"),
		env:        fs.String("env", "", "host environment (server, browser)"),
		logLevel:   fs.String("log-level", "", "log level (debug, info, warn, error)"),
	}
}

// app is the runtime shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *prometheus.Registry
	registry *adapter.Registry
	factory  *adapter.Factory
	watchM   *watcher.Metrics
}

func newApp(cf *commonFlags, o config.Overrides) (*app, error) {
	o.Environment = *cf.env
	o.LogLevel = *cf.logLevel

	cfg, err := config.Load(*cf.configPath, o)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	promReg := prometheus.NewRegistry()
	reg := adapter.NewRegistry(adapter.WithDuplicatePolicy(cfg.DuplicatePolicy()))
	if err := bootstrap.Register(reg); err != nil {
		return nil, err
	}

	factory := adapter.NewFactory(reg, cfg.Env(),
		adapter.WithReportMode(cfg.ReportMode()),
		adapter.WithLogger(logger),
		adapter.WithMetrics(adapter.NewMetrics(promReg)),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  promReg,
		registry: reg,
		factory:  factory,
		watchM:   watcher.NewMetrics(promReg),
	}, nil
}

// resolve turns an adapter name or configured preset alias into the
// registered name and merged options. Flag options win over preset options.
func (a *app) resolve(kind adapter.ModuleKind, nameOrAlias string, flagOpts adapter.Options) (string, adapter.Options, error) {
	if nameOrAlias == "" {
		return "", nil, fmt.Errorf("-adapter is required")
	}

	name := nameOrAlias
	opts := adapter.Options{}
	if preset, ok := a.cfg.Adapter(nameOrAlias); ok {
		if preset.Module != string(kind) {
			return "", nil, fmt.Errorf("preset %s is a %s adapter, not %s", nameOrAlias, preset.Module, kind)
		}
		name = preset.Name
		opts = preset.AdapterOptions()
	}
	for k, v := range flagOpts {
		opts[k] = v
	}
	return name, opts, nil
}

func (a *app) publisher(ctx context.Context) (outcome.Publisher, error) {
	switch a.cfg.Outcome.Sink {
	case "nats":
		ncfg := pnats.DefaultConfig()
		ncfg.URL = a.cfg.Outcome.NATS.URL
		client, err := pnats.Connect(ctx, ncfg, a.logger)
		if err != nil {
			return nil, err
		}
		scfg := pnats.DefaultOutcomeStreamConfig()
		if a.cfg.Outcome.NATS.Stream != "" {
			scfg.Name = a.cfg.Outcome.NATS.Stream
		}
		pub, err := pnats.NewPublisher(ctx, client, scfg)
		if err != nil {
			client.Close()
			return nil, err
		}
		return pub, nil
	case "kafka":
		return kafka.NewProducer(ctx, kafka.ProducerConfig{
			Brokers:     a.cfg.Outcome.Kafka.Brokers,
			Topic:       a.cfg.Outcome.Kafka.Topic,
			EnsureTopic: a.cfg.Outcome.Kafka.EnsureTopic,
		}, a.logger)
	case "postgres":
		pcfg := storage.DefaultConfig()
		pcfg.URL = a.cfg.Outcome.Postgres.URL
		return storage.NewPublisher(ctx, pcfg, a.logger)
	default:
		return outcome.Discard{Logger: a.logger}, nil
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
