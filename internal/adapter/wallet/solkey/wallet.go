// Package solkey is a wallet adapter backed by a Solana ed25519 keypair.
package solkey

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/wallet"
)

const Name = "solana-key"

// Metadata describes the solana-key wallet for registration.
func Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:        Name,
		Module:      adapter.ModuleWallet,
		AdapterType: "keypair",
		Constructor: New,
		Requirements: []adapter.Requirement{
			{Path: "options.privateKey", Type: adapter.TypeString, Message: "privateKey must be a base58 encoded keypair"},
			{Path: "options.rpcUrl", Type: adapter.TypeString},
			{Path: "options.commitment", Type: adapter.TypeString, AllowUndefined: true},
		},
		Environment: &adapter.EnvironmentRequirements{
			SupportedEnvironments: []adapter.Environment{adapter.EnvServer, adapter.EnvBrowser},
			Limitations:           []string{"no hardware wallet support"},
		},
		ErrorMap: map[string]string{
			"insufficient lamports":  "INSUFFICIENT_FUNDS",
			"Blockhash not found":    "BLOCKHASH_EXPIRED",
			"invalid public key":     "INVALID_ADDRESS",
			"wallet is disconnected": "NOT_CONNECTED",
		},
		Features: []string{"sign-message", "send-transaction", "balance"},
	}
}

// Wallet signs with a single ed25519 keypair.
type Wallet struct {
	logger     *slog.Logger
	key        solana.PrivateKey
	commitment rpc.CommitmentType

	mu     sync.RWMutex
	rpcURL string
	client *rpc.Client
}

// New parses the base58 private key. No connection is made.
func New(ctx context.Context, opts adapter.Options) (any, error) {
	key, err := solana.PrivateKeyFromBase58(opts.String("privateKey"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	commitment := rpc.CommitmentConfirmed
	if c := opts.String("commitment"); c != "" {
		commitment = rpc.CommitmentType(c)
	}

	return &Wallet{
		logger:     slog.Default().With("component", "solana-key-wallet"),
		key:        key,
		commitment: commitment,
		rpcURL:     opts.String("rpcUrl"),
	}, nil
}

// PublicKey returns the wallet's account address.
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

// SetProvider switches the RPC endpoint. A connected wallet replaces its
// client and closes the old one.
func (w *Wallet) SetProvider(ctx context.Context, p adapter.ProviderContext) error {
	if p.RPCURL == "" {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rpcURL = p.RPCURL
	if w.client == nil {
		return nil
	}

	old := w.client
	w.client = rpc.New(p.RPCURL)
	if err := old.Close(); err != nil {
		w.logger.Warn("closing previous rpc client", "error", err)
	}
	return nil
}

// Connect checks the endpoint is reachable before keeping the client.
func (w *Wallet) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	client := rpc.New(w.rpcURL)
	if _, err := client.GetHealth(ctx); err != nil {
		return fmt.Errorf("health check %s: %w", w.rpcURL, err)
	}
	w.client = client
	w.logger.Info("connected", "rpc_url", w.rpcURL, "pubkey", w.key.PublicKey().String())
	return nil
}

func (w *Wallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		err := w.client.Close()
		w.client = nil
		return err
	}
	return nil
}

func (w *Wallet) rpc() (*rpc.Client, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.client == nil {
		return nil, fmt.Errorf("wallet is disconnected")
	}
	return w.client, nil
}

func (w *Wallet) GetAccounts(ctx context.Context) ([]string, error) {
	return []string{w.key.PublicKey().String()}, nil
}

// GetBalance returns the lamport balance of account, or of the wallet when
// account is empty.
func (w *Wallet) GetBalance(ctx context.Context, account string) (*big.Int, error) {
	pubkey := w.key.PublicKey()
	if account != "" {
		var err error
		pubkey, err = solana.PublicKeyFromBase58(account)
		if err != nil {
			return nil, fmt.Errorf("invalid public key %q: %w", account, err)
		}
	}

	client, err := w.rpc()
	if err != nil {
		return nil, err
	}
	res, err := client.GetBalance(ctx, pubkey, w.commitment)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return new(big.Int).SetUint64(res.Value), nil
}

// SignMessage returns the raw 64 byte ed25519 signature.
func (w *Wallet) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	sig, err := w.key.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig[:], nil
}

// SendTransaction transfers tx.Value lamports to tx.To with the system
// program and returns the base58 signature.
func (w *Wallet) SendTransaction(ctx context.Context, req wallet.TxRequest) (string, error) {
	if len(req.Data) > 0 {
		return "", fmt.Errorf("arbitrary instruction data is not supported")
	}
	if req.Value == nil || !req.Value.IsUint64() {
		return "", fmt.Errorf("value must be a lamport amount")
	}
	to, err := solana.PublicKeyFromBase58(req.To)
	if err != nil {
		return "", fmt.Errorf("invalid public key %q: %w", req.To, err)
	}

	client, err := w.rpc()
	if err != nil {
		return "", err
	}

	recent, err := client.GetLatestBlockhash(ctx, w.commitment)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}

	from := w.key.PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(req.Value.Uint64(), from, to).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(from) {
			return &w.key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := client.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	w.logger.Info("transaction sent", "signature", sig.String(), "to", req.To, "lamports", req.Value.Uint64())
	return sig.String(), nil
}

var (
	_ wallet.Wallet          = (*Wallet)(nil)
	_ adapter.ProviderSetter = (*Wallet)(nil)
)
