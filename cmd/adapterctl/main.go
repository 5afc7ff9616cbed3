// Command adapterctl inspects the adapter registry, drives wallet adapters
// and watches transactions and cross-chain executions until they settle.
//
// Usage:
//
//	adapterctl adapters list [-module <kind>]
//	adapterctl adapters describe <module> <name>
//	adapterctl wallet accounts|balance|sign -adapter <name> [-option k=v ...]
//	adapterctl watch tx -chain evm|solana -rpc <url> -hash <hash>
//	adapterctl watch exec -adapter <name> -id <execution-id> [-option k=v ...]
package main

import (
	"fmt"
	"log/slog"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "adapters":
		if len(os.Args) < 3 {
			fmt.Println("Usage: adapterctl adapters <list|describe>")
			os.Exit(1)
		}
		adaptersCmd(os.Args[2], os.Args[3:])
	case "wallet":
		if len(os.Args) < 3 {
			fmt.Println("Usage: adapterctl wallet <accounts|balance|sign>")
			os.Exit(1)
		}
		walletCmd(os.Args[2], os.Args[3:])
	case "watch":
		if len(os.Args) < 3 {
			fmt.Println("Usage: adapterctl watch <tx|exec>")
			os.Exit(1)
		}
		watchCmd(os.Args[2], os.Args[3:])
	case "help", "--help", "-h":
		printUsage()
	case "version", "--version", "-v":
		fmt.Printf("adapterctl version %s\n", version)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`adapterctl - resolve chain adapters and watch on-chain outcomes

Usage:
  adapterctl adapters list [options]             List registered adapters
  adapterctl adapters describe <module> <name>   Show an adapter's requirements
  adapterctl wallet accounts [options]           Print wallet accounts
  adapterctl wallet balance [options]            Print an account balance
  adapterctl wallet sign [options]               Sign a message
  adapterctl watch tx [options]                  Wait for a transaction receipt
  adapterctl watch exec [options]                Wait for a cross-chain execution
  adapterctl help                                Show this help
  adapterctl version                             Show version

Common Options:
  -config      Path to YAML configuration
  -env         Host environment (server, browser)
  -log-level   Log level (debug, info, warn, error)

Wallet Options:
  -adapter     Adapter name or configured preset alias (required)
  -option      Adapter option as key=value, repeatable; dots nest (artifacts.dir=./out)
  -rpc         Provider RPC URL override
  -chain-id    Provider chain ID override
  -account     Account for balance (default: first wallet account)
  -message     Message to sign

Watch Options:
  -chain       evm or solana (watch tx)
  -rpc         RPC endpoint (watch tx)
  -ws          Solana PubSub endpoint for push (watch tx)
  -hash        Transaction hash or signature (watch tx)
  -adapter     Cross-chain adapter name or preset alias (watch exec)
  -id          Execution id (watch exec)
  -timeout     Overall timeout, 0 for none (default from config)
  -interval    Poll interval (default from config)
  -publish     Outcome sink (discard, nats, kafka, postgres)
  -metrics-addr Serve Prometheus metrics on this address while watching

Examples:
  adapterctl adapters list -module wallet
  adapterctl adapters describe crosschain relay-feed
  adapterctl wallet accounts -adapter evm-key -option privateKey=0x...
  adapterctl watch tx -chain evm -rpc wss://eth.example -hash 0xabc...
  adapterctl watch exec -adapter relay-feed -option redisAddr=localhost:6379 -id 42 -publish nats`)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
