// Package evmkey is a wallet adapter backed by a raw secp256k1 private key
// and a go-ethereum RPC connection.
package evmkey

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/wallet"
	"github.com/marko911/chainkit/internal/platform/evmrpc"
)

const Name = "evm-key"

var errNoRPC = errors.New("no rpc endpoint configured")

// Metadata describes the adapter for registration.
func Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:        Name,
		Module:      adapter.ModuleWallet,
		AdapterType: "private-key",
		Constructor: New,
		Requirements: []adapter.Requirement{
			{Path: "options.privateKey", Type: adapter.TypeString, Message: "privateKey must be a hex encoded secp256k1 key"},
			{Path: "options.rpcUrl", Type: adapter.TypeString, AllowUndefined: true},
			{Path: "options.chainId", Type: adapter.TypeNumber, AllowUndefined: true},
		},
		Environment: adapter.ServerOnly("holds the raw private key in process memory"),
		ErrorMap: map[string]string{
			"insufficient funds":         "INSUFFICIENT_FUNDS",
			"nonce too low":              "NONCE_TOO_LOW",
			"replacement transaction":    "UNDERPRICED_REPLACEMENT",
			"no rpc endpoint configured": "NO_PROVIDER",
			"evm rpc not connected":      "NOT_CONNECTED",
		},
		Features: []string{"sign-message", "send-transaction", "balance", "contract-deploy"},
	}
}

// Wallet signs with a single secp256k1 key and talks to one EVM endpoint.
type Wallet struct {
	logger *slog.Logger

	key     *ecdsa.PrivateKey
	address common.Address

	mu      sync.RWMutex
	rpcURL  string
	chainID *big.Int
	client  *evmrpc.Client
}

// New parses the key from opts. The RPC connection is made by Initialize.
func New(ctx context.Context, opts adapter.Options) (any, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.String("privateKey"), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	w := &Wallet{
		logger:  slog.Default().With("component", "evm-key-wallet"),
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		rpcURL:  opts.String("rpcUrl"),
	}
	if id, ok := opts.Uint64("chainId"); ok {
		w.chainID = new(big.Int).SetUint64(id)
	}
	return w, nil
}

// Address returns the account derived from the key.
func (w *Wallet) Address() common.Address {
	return w.address
}

// Initialize dials the configured RPC endpoint, if any.
func (w *Wallet) Initialize(ctx context.Context) error {
	w.mu.RLock()
	url, want := w.rpcURL, w.chainID
	w.mu.RUnlock()

	if url == "" {
		return nil
	}
	return w.dial(ctx, url, want)
}

// SetProvider points the wallet at another network. With an RPC URL the new
// endpoint must report p.ChainID, when set, before anything is switched.
// A ChainID alone is checked against the connected endpoint, or kept for the
// next dial when there is none.
func (w *Wallet) SetProvider(ctx context.Context, p adapter.ProviderContext) error {
	var want *big.Int
	if p.ChainID != 0 {
		want = new(big.Int).SetUint64(p.ChainID)
	}
	if p.RPCURL != "" {
		return w.dial(ctx, p.RPCURL, want)
	}
	if want == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		remote, err := w.client.ChainID()
		if err != nil {
			return err
		}
		if remote.Cmp(want) != 0 {
			return fmt.Errorf("chain ID mismatch: expected %s, got %s", want, remote)
		}
	}
	w.chainID = want
	return nil
}

// dial connects to url and, once the remote chain ID matches want (any when
// nil), swaps it in as the wallet's endpoint.
func (w *Wallet) dial(ctx context.Context, url string, want *big.Int) error {
	client := evmrpc.NewClient(evmrpc.DefaultConfig(url), w.logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	remote, err := client.ChainID()
	if err != nil {
		client.Close()
		return err
	}
	if want != nil && want.Cmp(remote) != 0 {
		client.Close()
		return fmt.Errorf("chain ID mismatch: expected %s, got %s", want, remote)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		w.client.Close()
	}
	w.client = client
	w.rpcURL = url
	w.chainID = remote
	return nil
}

func (w *Wallet) currentChainID() *big.Int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID
}

func (w *Wallet) rpc() (*evmrpc.Client, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.client == nil {
		return nil, errNoRPC
	}
	return w.client, nil
}

// Connect dials the RPC endpoint.
func (w *Wallet) Connect(ctx context.Context) error {
	client, err := w.rpc()
	if err == nil {
		return client.Connect(ctx)
	}
	w.mu.RLock()
	url := w.rpcURL
	w.mu.RUnlock()
	if url == "" {
		return errNoRPC
	}
	return w.dial(ctx, url, w.currentChainID())
}

func (w *Wallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		w.client.Close()
		w.client = nil
	}
	return nil
}

func (w *Wallet) GetAccounts(ctx context.Context) ([]string, error) {
	return []string{w.address.Hex()}, nil
}

// GetBalance returns the wei balance of account, or of the wallet when
// account is empty.
func (w *Wallet) GetBalance(ctx context.Context, account string) (*big.Int, error) {
	if account == "" {
		account = w.address.Hex()
	}
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("invalid address %q", account)
	}
	client, err := w.rpc()
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, common.HexToAddress(account))
}

// SignMessage produces an EIP-191 personal signature with V in {27, 28}.
func (w *Wallet) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), w.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SendTransaction signs and broadcasts a legacy transaction and returns its
// hash. An empty To deploys tx.Data as contract code.
func (w *Wallet) SendTransaction(ctx context.Context, req wallet.TxRequest) (string, error) {
	client, err := w.rpc()
	if err != nil {
		return "", err
	}

	w.mu.RLock()
	chainID := w.chainID
	w.mu.RUnlock()
	if chainID == nil {
		return "", fmt.Errorf("chain ID unknown")
	}

	var to *common.Address
	if req.To != "" {
		if !common.IsHexAddress(req.To) {
			return "", fmt.Errorf("invalid recipient %q", req.To)
		}
		addr := common.HexToAddress(req.To)
		to = &addr
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	gas := req.Gas
	if gas == 0 {
		gas, err = client.EstimateGas(ctx, ethereum.CallMsg{
			From:  w.address,
			To:    to,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return "", fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       to,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	w.logger.Info("transaction sent",
		"hash", signed.Hash().Hex(),
		"nonce", nonce,
		"to", req.To,
	)
	return signed.Hash().Hex(), nil
}

var (
	_ wallet.Wallet          = (*Wallet)(nil)
	_ adapter.Initializer    = (*Wallet)(nil)
	_ adapter.ProviderSetter = (*Wallet)(nil)
)
