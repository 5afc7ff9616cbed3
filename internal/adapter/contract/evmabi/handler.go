// Package evmabi is a contract handler that encodes and calls EVM contracts
// from compiled Hardhat or Foundry JSON artifacts.
package evmabi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/contract"
	"github.com/marko911/chainkit/internal/platform/evmrpc"
)

const Name = "evm-abi"

// Metadata describes the evm-abi handler for registration.
func Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:        Name,
		Module:      adapter.ModuleContractHandler,
		AdapterType: "abi",
		Constructor: New,
		Requirements: []adapter.Requirement{
			{Path: "options.artifacts", Type: adapter.TypeObject, Message: "artifacts must name a dir or a bucket"},
			{Path: "options.artifacts.dir", Type: adapter.TypeString, AllowUndefined: true},
			{Path: "options.artifacts.bucket", Type: adapter.TypeString, AllowUndefined: true},
			{Path: "options.rpcUrl", Type: adapter.TypeString, AllowUndefined: true},
		},
		Environment: adapter.ServerOnly("reads compiled artifacts from disk or object storage"),
		ErrorMap: map[string]string{
			"execution reverted":    "EXECUTION_REVERTED",
			"no method with id":     "UNKNOWN_METHOD",
			"method '":              "UNKNOWN_METHOD",
			"artifact not found":    "ARTIFACT_NOT_FOUND",
			"argument count":        "BAD_ARGUMENTS",
			"evm rpc not connected": "NOT_CONNECTED",
		},
		Features: []string{"abi-encode", "eth-call", "deploy-data"},
	}
}

type artifact struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode json.RawMessage `json:"bytecode"`
}

type loaded struct {
	abi      abi.ABI
	bytecode []byte
}

// Handler loads compiled EVM artifacts and encodes, calls and deploys them.
type Handler struct {
	logger *slog.Logger
	store  ArtifactStore

	rpcURL string
	client *evmrpc.Client

	mu        sync.RWMutex
	contracts map[string]*loaded
}

// New picks the artifact store from options.artifacts.
func New(ctx context.Context, opts adapter.Options) (any, error) {
	store, err := storeFromOptions(opts.Object("artifacts"))
	if err != nil {
		return nil, err
	}
	return NewWithStore(store, opts.String("rpcUrl")), nil
}

// NewWithStore builds a handler over an explicit store.
func NewWithStore(store ArtifactStore, rpcURL string) *Handler {
	return &Handler{
		logger:    slog.Default().With("component", "evm-abi-handler"),
		store:     store,
		rpcURL:    rpcURL,
		contracts: make(map[string]*loaded),
	}
}

func storeFromOptions(o adapter.Options) (ArtifactStore, error) {
	if dir := o.String("dir"); dir != "" {
		return FileStore{Dir: dir}, nil
	}
	if bucket := o.String("bucket"); bucket != "" {
		useSSL, _ := o["useSSL"].(bool)
		return NewMinioStore(MinioConfig{
			Endpoint:  o.String("endpoint"),
			Bucket:    bucket,
			Prefix:    o.String("prefix"),
			AccessKey: o.String("accessKey"),
			SecretKey: o.String("secretKey"),
			UseSSL:    useSSL,
		})
	}
	return nil, fmt.Errorf("artifacts needs dir or bucket")
}

// Initialize connects to the RPC endpoint used by Call, when configured.
func (h *Handler) Initialize(ctx context.Context) error {
	if h.rpcURL == "" {
		return nil
	}
	client := evmrpc.NewClient(evmrpc.DefaultConfig(h.rpcURL), h.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	h.client = client
	return nil
}

func (h *Handler) load(ctx context.Context, name string) (*loaded, error) {
	h.mu.RLock()
	c, ok := h.contracts[name]
	h.mu.RUnlock()
	if ok {
		return c, nil
	}

	data, err := h.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	c, err = parseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", name, err)
	}

	h.mu.Lock()
	h.contracts[name] = c
	h.mu.Unlock()

	h.logger.Debug("loaded contract", "name", name, "methods", len(c.abi.Methods))
	return c, nil
}

func parseArtifact(data []byte) (*loaded, error) {
	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if len(art.ABI) == 0 {
		return nil, fmt.Errorf("artifact has no abi")
	}
	parsed, err := abi.JSON(bytes.NewReader(art.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	// Hardhat stores a hex string, Foundry an object with an "object" field.
	var code string
	if len(art.Bytecode) > 0 {
		if err := json.Unmarshal(art.Bytecode, &code); err != nil {
			var foundry struct {
				Object string `json:"object"`
			}
			if err := json.Unmarshal(art.Bytecode, &foundry); err != nil {
				return nil, fmt.Errorf("decode bytecode: %w", err)
			}
			code = foundry.Object
		}
	}

	return &loaded{abi: parsed, bytecode: common.FromHex(code)}, nil
}

// LoadContract returns the parsed artifact called name.
func (h *Handler) LoadContract(ctx context.Context, name string) (*contract.Contract, error) {
	c, err := h.load(ctx, name)
	if err != nil {
		return nil, err
	}

	out := &contract.Contract{Name: name, Bytecode: bytes.Clone(c.bytecode)}
	for m := range c.abi.Methods {
		out.Methods = append(out.Methods, m)
	}
	for e := range c.abi.Events {
		out.Events = append(out.Events, e)
	}
	sort.Strings(out.Methods)
	sort.Strings(out.Events)
	return out, nil
}

func (h *Handler) EncodeCall(ctx context.Context, name, method string, args ...any) ([]byte, error) {
	c, err := h.load(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", name, method, err)
	}
	return data, nil
}

// Call performs a read-only eth_call and decodes the outputs.
func (h *Handler) Call(ctx context.Context, name, address, method string, args ...any) ([]any, error) {
	if h.client == nil {
		return nil, evmrpc.ErrNotConnected
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}

	c, err := h.load(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", name, method, err)
	}

	to := common.HexToAddress(address)
	out, err := h.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", name, method, err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s.%s: %w", name, method, err)
	}
	return values, nil
}

// DeployData returns creation bytecode followed by the packed constructor
// arguments, ready to send with an empty recipient.
func (h *Handler) DeployData(ctx context.Context, name string, args ...any) ([]byte, error) {
	c, err := h.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(c.bytecode) == 0 {
		return nil, fmt.Errorf("artifact %s has no bytecode", name)
	}
	ctorArgs, err := c.abi.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("pack constructor: %w", err)
	}
	return append(bytes.Clone(c.bytecode), ctorArgs...), nil
}

var (
	_ contract.Handler    = (*Handler)(nil)
	_ adapter.Initializer = (*Handler)(nil)
)
