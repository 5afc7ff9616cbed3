package evmkey

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/wallet"
)

// Well known development key; never holds value.
const (
	devKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcaee784a7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func newFactory(t *testing.T, env adapter.Environment) *adapter.Factory {
	t.Helper()
	reg := adapter.NewRegistry()
	reg.DefineModule(adapter.ModuleWallet, wallet.Wrap)
	if err := reg.Register(adapter.ModuleWallet, Metadata()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return adapter.NewFactory(reg, env)
}

func TestWallet_Accounts(t *testing.T) {
	w, err := wallet.New(context.Background(), newFactory(t, adapter.EnvServer), Name, adapter.Options{"privateKey": devKey}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	accs, err := w.GetAccounts(context.Background())
	if err != nil {
		t.Fatalf("GetAccounts failed: %v", err)
	}
	if len(accs) != 1 || accs[0] != devAddress {
		t.Errorf("GetAccounts = %v, want [%s]", accs, devAddress)
	}
}

func TestWallet_SignMessage(t *testing.T) {
	w, err := wallet.New(context.Background(), newFactory(t, adapter.EnvServer), Name, adapter.Options{"privateKey": devKey}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	msg := []byte("hello chainkit")
	sig, err := w.SignMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("SignMessage failed: %v", err)
	}
	if len(sig) != crypto.SignatureLength {
		t.Fatalf("signature length = %d", len(sig))
	}
	if v := sig[crypto.RecoveryIDOffset]; v != 27 && v != 28 {
		t.Errorf("V = %d, want 27 or 28", v)
	}

	raw := append([]byte(nil), sig...)
	raw[crypto.RecoveryIDOffset] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), raw)
	if err != nil {
		t.Fatalf("SigToPub failed: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub).Hex(); got != devAddress {
		t.Errorf("recovered %s, want %s", got, devAddress)
	}
}

func TestWallet_NoRPC(t *testing.T) {
	w, err := wallet.New(context.Background(), newFactory(t, adapter.EnvServer), Name, adapter.Options{"privateKey": devKey}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = w.GetBalance(context.Background(), "")
	var aerr *adapter.Error
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *adapter.Error, got %v", err)
	}
	if aerr.Method != "GetBalance" || aerr.Code != "NO_PROVIDER" {
		t.Errorf("method=%s code=%s", aerr.Method, aerr.Code)
	}
	if !errors.Is(err, errNoRPC) {
		t.Error("cause should stay reachable")
	}

	if _, err := w.SendTransaction(context.Background(), wallet.TxRequest{To: devAddress}); !errors.Is(err, adapter.ErrAdapterMethod) {
		t.Errorf("expected ErrAdapterMethod, got %v", err)
	}
}

func TestWallet_CreateFailures(t *testing.T) {
	ctx := context.Background()

	_, err := wallet.New(ctx, newFactory(t, adapter.EnvServer), Name, adapter.Options{}, nil)
	if !errors.Is(err, adapter.ErrInvalidArguments) {
		t.Errorf("missing key: expected ErrInvalidArguments, got %v", err)
	}

	_, err = wallet.New(ctx, newFactory(t, adapter.EnvServer), Name, adapter.Options{"privateKey": "0x1234"}, nil)
	if !errors.Is(err, adapter.ErrAdapterInitialization) {
		t.Errorf("bad key: expected ErrAdapterInitialization, got %v", err)
	}

	_, err = wallet.New(ctx, newFactory(t, adapter.EnvBrowser), Name, adapter.Options{"privateKey": devKey}, nil)
	if !errors.Is(err, adapter.ErrEnvironmentUnsupported) {
		t.Errorf("browser: expected ErrEnvironmentUnsupported, got %v", err)
	}
}

func TestWallet_Capabilities(t *testing.T) {
	w, err := wallet.New(context.Background(), newFactory(t, adapter.EnvServer), Name, adapter.Options{"privateKey": devKey}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, c := range []adapter.Capability{adapter.CapInitialize, adapter.CapProvider, adapter.CapConnect} {
		if !adapter.Has(w, c) {
			t.Errorf("missing capability %s", c)
		}
	}
	if adapter.Has(w, adapter.CapPushUpdates) {
		t.Error("wallet should not advertise push updates")
	}
}

// newChainServer is a JSON-RPC endpoint that only answers eth_chainId.
func newChainServer(t *testing.T, chainID uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method != "eth_chainId" {
			http.Error(w, "unsupported", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": hexutil.EncodeUint64(chainID)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRawWallet(t *testing.T, opts adapter.Options) *Wallet {
	t.Helper()
	opts["privateKey"] = devKey
	inst, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	w := inst.(*Wallet)
	t.Cleanup(func() { w.Disconnect(context.Background()) })
	return w
}

func TestWallet_SetProviderRejectsWrongChain(t *testing.T) {
	srv := newChainServer(t, 5)
	w := newRawWallet(t, adapter.Options{})
	ctx := context.Background()

	err := w.SetProvider(ctx, adapter.ProviderContext{RPCURL: srv.URL, ChainID: 7})
	if err == nil {
		t.Fatal("expected chain ID mismatch")
	}
	if w.currentChainID() != nil {
		t.Errorf("failed switch left chain ID %s behind", w.currentChainID())
	}
	if _, err := w.rpc(); !errors.Is(err, errNoRPC) {
		t.Errorf("failed switch must not keep the client, got %v", err)
	}
}

func TestWallet_SetProviderChainIDOnly(t *testing.T) {
	srv := newChainServer(t, 5)
	w := newRawWallet(t, adapter.Options{"rpcUrl": srv.URL})
	ctx := context.Background()

	if err := w.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := w.SetProvider(ctx, adapter.ProviderContext{ChainID: 7}); err == nil {
		t.Fatal("expected mismatch against the connected endpoint")
	}
	if got := w.currentChainID(); got == nil || got.Uint64() != 5 {
		t.Errorf("chain ID = %v, want 5", got)
	}
	if err := w.SetProvider(ctx, adapter.ProviderContext{ChainID: 5}); err != nil {
		t.Errorf("matching chain ID rejected: %v", err)
	}
}

func TestWallet_SetProviderSwitchesNetwork(t *testing.T) {
	mainnet := newChainServer(t, 1)
	testnet := newChainServer(t, 11155111)
	w := newRawWallet(t, adapter.Options{"rpcUrl": mainnet.URL, "chainId": 1})
	ctx := context.Background()

	if err := w.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := w.SetProvider(ctx, adapter.ProviderContext{RPCURL: testnet.URL}); err != nil {
		t.Fatalf("SetProvider failed: %v", err)
	}
	if got := w.currentChainID(); got.Uint64() != 11155111 {
		t.Errorf("chain ID = %s after switch", got)
	}
}

func TestWallet_SetProviderWithoutClient(t *testing.T) {
	w := newRawWallet(t, adapter.Options{})

	if err := w.SetProvider(context.Background(), adapter.ProviderContext{ChainID: 9}); err != nil {
		t.Fatalf("SetProvider failed: %v", err)
	}
	if got := w.currentChainID(); got == nil || got.Uint64() != 9 {
		t.Errorf("chain ID = %v, want 9 kept for the next dial", got)
	}
}
