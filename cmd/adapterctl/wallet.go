package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/wallet"
	"github.com/marko911/chainkit/internal/config"
)

func walletCmd(subcmd string, args []string) {
	fs := flag.NewFlagSet("wallet "+subcmd, flag.ExitOnError)
	cf := addCommonFlags(fs)
	name := fs.String("adapter", "", "wallet adapter name or preset alias (required)")
	var opts optionFlags
	fs.Var(&opts, "option", "adapter option key=value (repeatable)")
	rpcURL := fs.String("rpc", "", "provider RPC URL override")
	chainID := fs.Uint64("chain-id", 0, "provider chain ID override")
	account := fs.String("account", "", "account to query (balance)")
	message := fs.String("message", "", "message to sign (sign)")
	fs.Parse(args)

	switch subcmd {
	case "accounts", "balance", "sign":
	default:
		fmt.Printf("Unknown wallet command: %s\n", subcmd)
		os.Exit(1)
	}

	a, err := newApp(cf, config.Overrides{})
	if err != nil {
		fatal("%v", err)
	}
	ctx, cancel := signalContext(a.logger)
	defer cancel()

	adapterName, adapterOpts, err := a.resolve(adapter.ModuleWallet, *name, opts.Options())
	if err != nil {
		fatal("%v", err)
	}

	var provider *adapter.ProviderContext
	if *rpcURL != "" || *chainID != 0 {
		provider = &adapter.ProviderContext{RPCURL: *rpcURL, ChainID: *chainID}
	}

	w, err := wallet.New(ctx, a.factory, adapterName, adapterOpts, provider)
	if err != nil {
		fatal("%v", err)
	}
	defer func() {
		if adapter.Has(w, adapter.CapConnect) {
			w.Disconnect(ctx)
		}
	}()

	switch subcmd {
	case "accounts":
		accounts, err := w.GetAccounts(ctx)
		if err != nil {
			fatal("%v", err)
		}
		for _, acc := range accounts {
			fmt.Println(acc)
		}
	case "balance":
		if err := w.Connect(ctx); err != nil {
			fatal("%v", err)
		}
		if *account == "" {
			accounts, err := w.GetAccounts(ctx)
			if err != nil {
				fatal("%v", err)
			}
			if len(accounts) == 0 {
				fatal("wallet has no accounts")
			}
			*account = accounts[0]
		}
		bal, err := w.GetBalance(ctx, *account)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s\t%s\n", *account, bal.String())
	case "sign":
		if *message == "" {
			fatal("-message is required")
		}
		sig, err := w.SignMessage(ctx, []byte(*message))
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println("0x" + hex.EncodeToString(sig))
	}
}
