// Package receipt provides watcher sources that wait for a submitted
// transaction to be included on chain.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/marko911/chainkit/internal/watcher"
)

const (
	ChainEVM    = "evm"
	ChainSolana = "solana"
)

// Receipt is the chain-neutral inclusion record of a transaction.
type Receipt struct {
	Chain   string `json:"chain"`
	TxHash  string `json:"txHash"`
	Success bool   `json:"success"`
	// Block is the block number on EVM chains and the slot on Solana.
	Block   uint64 `json:"block"`
	GasUsed uint64 `json:"gasUsed,omitempty"`
	Err     string `json:"error,omitempty"`
}

// EVMClient is the subset of evmrpc.Client used here.
type EVMClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	IsWebSocket() bool
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// EVMSource polls eth_getTransactionReceipt. Over a WebSocket endpoint it
// also offers a push path that re-checks the receipt on every new head.
type EVMSource struct {
	client EVMClient
}

// NewEVMSource returns a source reading receipts from client.
func NewEVMSource(client EVMClient) *EVMSource {
	return &EVMSource{client: client}
}

func (s *EVMSource) Fetch(ctx context.Context, txHash string) (Receipt, bool, error) {
	if !isHexHash(txHash) {
		return Receipt{}, false, fmt.Errorf("invalid transaction hash %q", txHash)
	}
	rc, err := s.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return Receipt{}, false, nil
	}
	if err != nil {
		return Receipt{}, false, fmt.Errorf("get receipt: %w", err)
	}
	return fromEVM(txHash, rc), true, nil
}

// WaitFor checks the receipt on every new head. It needs a WebSocket
// endpoint.
func (s *EVMSource) WaitFor(ctx context.Context, txHash string) (Receipt, error) {
	if !s.client.IsWebSocket() {
		return Receipt{}, errors.New("new head subscription requires a websocket endpoint")
	}

	heads := make(chan *types.Header, 16)
	sub, err := s.client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return Receipt{}, fmt.Errorf("subscribe new heads: %w", err)
	}
	defer sub.Unsubscribe()

	// The transaction may already be mined.
	if rc, ok, err := s.Fetch(ctx, txHash); err == nil && ok {
		return rc, nil
	}

	for {
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case err := <-sub.Err():
			return Receipt{}, fmt.Errorf("head subscription: %w", err)
		case <-heads:
			rc, ok, err := s.Fetch(ctx, txHash)
			if err != nil {
				return Receipt{}, err
			}
			if ok {
				return rc, nil
			}
		}
	}
}

func fromEVM(txHash string, rc *types.Receipt) Receipt {
	out := Receipt{
		Chain:   ChainEVM,
		TxHash:  txHash,
		Success: rc.Status == types.ReceiptStatusSuccessful,
		GasUsed: rc.GasUsed,
	}
	if rc.BlockNumber != nil {
		out.Block = rc.BlockNumber.Uint64()
	}
	if !out.Success {
		out.Err = "execution reverted"
	}
	return out
}

func isHexHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}

// SignatureStatuser is the subset of the Solana RPC client used here.
type SignatureStatuser interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// SolanaSource polls getSignatureStatuses until the signature reaches the
// configured commitment or fails. WithStream adds a signatureSubscribe push
// path.
type SolanaSource struct {
	client     SignatureStatuser
	commitment rpc.ConfirmationStatusType
	wsURL      string
}

// NewSolanaSource defaults commitment to confirmed.
func NewSolanaSource(client SignatureStatuser, commitment rpc.ConfirmationStatusType) *SolanaSource {
	if commitment == "" {
		commitment = rpc.ConfirmationStatusConfirmed
	}
	return &SolanaSource{client: client, commitment: commitment}
}

var confirmationRank = map[rpc.ConfirmationStatusType]int{
	rpc.ConfirmationStatusProcessed: 1,
	rpc.ConfirmationStatusConfirmed: 2,
	rpc.ConfirmationStatusFinalized: 3,
}

// Fetch is terminal once the signature reaches the configured commitment
// or has failed.
func (s *SolanaSource) Fetch(ctx context.Context, signature string) (Receipt, bool, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return Receipt{}, false, fmt.Errorf("parse signature: %w", err)
	}

	res, err := s.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return Receipt{}, false, fmt.Errorf("get signature status: %w", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return Receipt{}, false, nil
	}

	st := res.Value[0]
	out := Receipt{Chain: ChainSolana, TxHash: signature, Block: st.Slot, Success: st.Err == nil}
	if st.Err != nil {
		out.Err = fmt.Sprint(st.Err)
		return out, true, nil
	}
	if confirmationRank[st.ConfirmationStatus] < confirmationRank[s.commitment] {
		return out, false, nil
	}
	return out, true, nil
}

// Options returns watcher options labelled for receipt watches.
func Options(timeout, interval time.Duration) watcher.Options {
	return watcher.Options{Timeout: timeout, PollInterval: interval, Kind: "receipt"}
}

var (
	_ watcher.Source[Receipt] = (*EVMSource)(nil)
	_ watcher.Waiter[Receipt] = (*EVMSource)(nil)
	_ watcher.Source[Receipt] = (*SolanaSource)(nil)
	_ watcher.Waiter[Receipt] = (*SolanaSource)(nil)
)
