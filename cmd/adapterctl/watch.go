package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/crosschain"
	"github.com/marko911/chainkit/internal/config"
	"github.com/marko911/chainkit/internal/platform/evmrpc"
	"github.com/marko911/chainkit/internal/platform/outcome"
	"github.com/marko911/chainkit/internal/watcher"
	"github.com/marko911/chainkit/internal/watcher/receipt"
)

type watchFlags struct {
	timeout     *time.Duration
	interval    *time.Duration
	publish     *string
	metricsAddr *string
}

func addWatchFlags(fs *flag.FlagSet) *watchFlags {
	return &watchFlags{
		timeout:     fs.Duration("timeout", 0, "overall timeout, 0 keeps the configured value"),
		interval:    fs.Duration("interval", 0, "poll interval, 0 keeps the configured value"),
		publish:     fs.String("publish", "", "outcome sink (discard, nats, kafka, postgres)"),
		metricsAddr: fs.String("metrics-addr", "", "serve Prometheus metrics on this address"),
	}
}

func (wf *watchFlags) overrides() config.Overrides {
	return config.Overrides{Timeout: *wf.timeout, PollInterval: *wf.interval, Sink: *wf.publish}
}

func watchCmd(subcmd string, args []string) {
	switch subcmd {
	case "tx":
		watchTx(args)
	case "exec":
		watchExec(args)
	default:
		fmt.Printf("Unknown watch command: %s\n", subcmd)
		os.Exit(1)
	}
}

func watchTx(args []string) {
	fs := flag.NewFlagSet("watch tx", flag.ExitOnError)
	cf := addCommonFlags(fs)
	wf := addWatchFlags(fs)
	chain := fs.String("chain", receipt.ChainEVM, "chain family (evm, solana)")
	rpcURL := fs.String("rpc", "", "RPC endpoint (required)")
	wsURL := fs.String("ws", "", "Solana PubSub endpoint for push notifications")
	hash := fs.String("hash", "", "transaction hash or signature (required)")
	fs.Parse(args)

	if *rpcURL == "" || *hash == "" {
		fmt.Println("Usage: adapterctl watch tx -chain evm|solana -rpc <url> -hash <hash>")
		os.Exit(1)
	}

	a, err := newApp(cf, wf.overrides())
	if err != nil {
		fatal("%v", err)
	}
	ctx, cancel := signalContext(a.logger)
	defer cancel()

	var src watcher.Source[receipt.Receipt]
	switch *chain {
	case receipt.ChainEVM:
		client := evmrpc.NewClient(evmrpc.DefaultConfig(*rpcURL), a.logger)
		if err := client.Connect(ctx); err != nil {
			fatal("%v", err)
		}
		defer client.Close()
		src = receipt.NewEVMSource(client)
	case receipt.ChainSolana:
		client := rpc.New(*rpcURL)
		defer client.Close()
		sol := receipt.NewSolanaSource(client, rpc.ConfirmationStatusType(a.cfg.Watcher.Commitment))
		if *wsURL != "" {
			sol.WithStream(*wsURL)
		}
		src = sol
	default:
		fatal("unknown chain %q", *chain)
	}

	stopMetrics := serveMetrics(a.metrics, *wf.metricsAddr, a.logger)
	defer stopMetrics()

	opts := a.cfg.WatchOptions("receipt")
	opts.Logger = a.logger
	opts.Metrics = a.watchM
	res := watcher.Watch(ctx, src, *hash, opts)

	finish(ctx, a, "receipt", res)
}

func watchExec(args []string) {
	fs := flag.NewFlagSet("watch exec", flag.ExitOnError)
	cf := addCommonFlags(fs)
	wf := addWatchFlags(fs)
	name := fs.String("adapter", "", "cross-chain adapter name or preset alias (required)")
	var opts optionFlags
	fs.Var(&opts, "option", "adapter option key=value (repeatable)")
	id := fs.String("id", "", "execution id (required)")
	fs.Parse(args)

	if *id == "" {
		fmt.Println("Usage: adapterctl watch exec -adapter <name> -id <execution-id> [-option k=v ...]")
		os.Exit(1)
	}

	a, err := newApp(cf, wf.overrides())
	if err != nil {
		fatal("%v", err)
	}
	ctx, cancel := signalContext(a.logger)
	defer cancel()

	adapterName, adapterOpts, err := a.resolve(adapter.ModuleCrossChain, *name, opts.Options())
	if err != nil {
		fatal("%v", err)
	}

	bridge, err := crosschain.New(ctx, a.factory, adapterName, adapterOpts, nil)
	if err != nil {
		var aerr *adapter.Error
		if errors.As(err, &aerr) && len(aerr.Violations) > 0 {
			for _, v := range aerr.Violations {
				fmt.Fprintf(os.Stderr, "  %s\n", v)
			}
		}
		fatal("%v", err)
	}

	stopMetrics := serveMetrics(a.metrics, *wf.metricsAddr, a.logger)
	defer stopMetrics()

	wo := a.cfg.WatchOptions("execution")
	wo.Logger = a.logger
	wo.Metrics = a.watchM
	res := crosschain.WatchExecution(ctx, bridge, *id, wo)

	finish(ctx, a, "execution", res)
}

// finish publishes the outcome, prints the result as JSON and exits non-zero
// unless a terminal value was found.
func finish[T any](ctx context.Context, a *app, kind string, res watcher.Result[T]) {
	rec, err := outcome.FromResult(kind, res)
	if err != nil {
		fatal("%v", err)
	}

	// Publishing must still work after a signal cancelled the watch.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	pub, err := a.publisher(pubCtx)
	if err != nil {
		a.logger.Error("failed to create outcome publisher", "sink", a.cfg.Outcome.Sink, "error", err)
	} else {
		if err := pub.Publish(pubCtx, rec); err != nil {
			a.logger.Error("failed to publish outcome", "session_id", rec.SessionID, "error", err)
		}
		pub.Close()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(rec)

	if !res.Found() {
		os.Exit(2)
	}
}

func serveMetrics(reg *prometheus.Registry, addr string, logger *slog.Logger) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
