// Package evmrpc wraps a go-ethereum RPC connection shared by the EVM
// wallet, the ABI contract handler and the receipt watcher.
package evmrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrNotConnected is returned by calls made before Connect.
var ErrNotConnected = errors.New("evm rpc not connected")

// Config holds EVM RPC client configuration.
type Config struct {
	URL string

	MaxRetries    int
	RetryInterval time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:           url,
		MaxRetries:    2,
		RetryInterval: time.Second,
	}
}

// Client wraps ethclient with connection state and a lock.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	client  *ethclient.Client
	chainID *big.Int
	isWS    bool
}

// NewClient creates a client. Call Connect before use.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "evm-rpc"),
	}
}

// Connect dials the endpoint and verifies it by fetching the chain ID.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	c.isWS = strings.HasPrefix(c.cfg.URL, "ws://") || strings.HasPrefix(c.cfg.URL, "wss://")
	c.logger.Info("connecting to RPC", "url", maskURL(c.cfg.URL), "is_websocket", c.isWS)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying connection", "attempt", attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryInterval):
			}
		}

		rpcClient, err := rpc.DialContext(ctx, c.cfg.URL)
		if err != nil {
			c.logger.Warn("connection failed", "error", err, "attempt", attempt)
			lastErr = err
			continue
		}

		client := ethclient.NewClient(rpcClient)
		chainID, err := client.ChainID(ctx)
		if err != nil {
			c.logger.Warn("chain ID check failed", "error", err)
			client.Close()
			lastErr = err
			continue
		}

		c.client = client
		c.chainID = chainID
		c.logger.Info("connected", "chain_id", chainID.String())
		return nil
	}

	return fmt.Errorf("connect after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// Close closes the RPC connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
		c.chainID = nil
	}
	return nil
}

// IsConnected returns the connection status.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// IsWebSocket reports whether the endpoint supports subscriptions.
func (c *Client) IsWebSocket() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isWS
}

func (c *Client) URL() string {
	return c.cfg.URL
}

func (c *Client) eth() (*ethclient.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

// ChainID returns the chain ID fetched at connect time.
func (c *Client) ChainID() (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.chainID == nil {
		return nil, ErrNotConnected
	}
	return new(big.Int).Set(c.chainID), nil
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	client, err := c.eth()
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, account, nil)
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	client, err := c.eth()
	if err != nil {
		return 0, err
	}
	return client.PendingNonceAt(ctx, account)
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	client, err := c.eth()
	if err != nil {
		return nil, err
	}
	return client.SuggestGasPrice(ctx)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	client, err := c.eth()
	if err != nil {
		return 0, err
	}
	return client.EstimateGas(ctx, msg)
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	client, err := c.eth()
	if err != nil {
		return err
	}
	return client.SendTransaction(ctx, tx)
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	client, err := c.eth()
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, msg, nil)
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	client, err := c.eth()
	if err != nil {
		return nil, err
	}
	return client.TransactionReceipt(ctx, txHash)
}

// SubscribeNewHead subscribes to new block headers. WebSocket only.
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	client, err := c.eth()
	if err != nil {
		return nil, err
	}
	if !c.IsWebSocket() {
		return nil, fmt.Errorf("subscriptions require WebSocket connection")
	}
	return client.SubscribeNewHead(ctx, ch)
}

// maskURL hides credentials embedded in RPC URLs for logging.
func maskURL(url string) string {
	idx := strings.Index(url, "@")
	scheme := strings.Index(url, "://")
	if idx > 0 && scheme > 0 && scheme < idx {
		return url[:scheme+3] + "***@" + url[idx+1:]
	}
	return url
}
