package statusapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/crosschain"
	"github.com/marko911/chainkit/internal/watcher"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("id") {
		case "done":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"done","status":"DONE","substatus":"COMPLETED","sending":{"txHash":"0xaa"},"receiving":{"txHash":"0xbb"},"updatedAt":1700000000000}`))
		case "throttled":
			http.Error(w, "slow down", http.StatusTooManyRequests)
		case "garbled":
			w.Write([]byte("<html>"))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil || sub.Op != "subscribe" {
			return
		}
		if sub.ID == "done" {
			// Finished before the subscribe, so nothing is ever pushed.
			conn.ReadMessage()
			return
		}
		conn.WriteJSON(map[string]any{"id": "someone-else", "status": "DONE"})
		conn.WriteJSON(map[string]any{"id": sub.ID, "status": "PENDING"})
		conn.WriteJSON(map[string]any{"id": sub.ID, "status": "FAILED", "substatus": "REFUNDED"})

		// Hold the connection until the client leaves.
		conn.ReadMessage()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestBridge(t *testing.T, opts adapter.Options) *Bridge {
	t.Helper()
	inst, err := New(context.Background(), opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return inst.(*Bridge)
}

func TestBridge_GetStatus(t *testing.T) {
	srv := newTestServer(t)
	b := newTestBridge(t, adapter.Options{"apiUrl": srv.URL + "/", "apiKey": "secret"})
	ctx := context.Background()

	st, err := b.GetStatus(ctx, "done")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if st.State != crosschain.StateDone || st.SourceTx != "0xaa" || st.DestTx != "0xbb" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.UpdatedAt.UnixMilli() != 1700000000000 {
		t.Errorf("UpdatedAt = %v", st.UpdatedAt)
	}

	st, err = b.GetStatus(ctx, "unknown")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if st.State != crosschain.StatePending {
		t.Errorf("404 should map to pending, got %s", st.State)
	}
}

func TestBridge_GetStatusErrors(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		apiKey  string
		id      string
		errPart string
	}{
		{"rate limited", "secret", "throttled", "status 429"},
		{"unauthorized", "wrong", "done", "status 401"},
		{"bad body", "secret", "garbled", "decode status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBridge(t, adapter.Options{"apiUrl": srv.URL, "apiKey": tt.apiKey})
			_, err := b.GetStatus(ctx, tt.id)
			if err == nil || !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("expected error containing %q, got %v", tt.errPart, err)
			}
		})
	}
}

func TestBridge_WaitForStatus(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	b := newTestBridge(t, adapter.Options{"apiUrl": srv.URL, "wsUrl": wsURL, "apiKey": "secret"})

	if !adapter.Has(b, adapter.CapPushUpdates) {
		t.Fatal("expected push capability with a stream URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := b.WaitForStatus(ctx, "exec-1")
	if err != nil {
		t.Fatalf("WaitForStatus failed: %v", err)
	}
	if st.ExecutionID != "exec-1" || st.State != crosschain.StateFailed || st.Substatus != "REFUNDED" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestBridge_WaitForStatusAlreadyTerminal(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	b := newTestBridge(t, adapter.Options{"apiUrl": srv.URL, "wsUrl": wsURL, "apiKey": "secret"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := b.WaitForStatus(ctx, "done")
	if err != nil {
		t.Fatalf("WaitForStatus failed: %v", err)
	}
	if st.State != crosschain.StateDone || st.DestTx != "0xbb" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestBridge_UnboundedWatchOfFinishedExecution(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	b := newTestBridge(t, adapter.Options{"apiUrl": srv.URL, "wsUrl": wsURL, "apiKey": "secret"})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	res := crosschain.WatchExecution(ctx, b, "done", watcher.Options{PollInterval: time.Hour})
	if !res.Found() || !res.ViaPush || res.Value.State != crosschain.StateDone {
		t.Fatalf("unexpected result %+v", res)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("watch took %v for an execution that had already finished", elapsed)
	}
}

func TestBridge_WaitForStatusReadError(t *testing.T) {
	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	b := newTestBridge(t, adapter.Options{"apiUrl": srv.URL, "wsUrl": wsURL, "apiKey": "wrong"})

	_, err := b.WaitForStatus(context.Background(), "done")
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Errorf("expected the status read error, got %v", err)
	}
}

func TestBridge_PushUnsupported(t *testing.T) {
	b := newTestBridge(t, adapter.Options{"apiUrl": "http://localhost:1"})

	if adapter.Has(b, adapter.CapPushUpdates) {
		t.Error("no stream URL means no push capability")
	}
	_, err := b.WaitForStatus(context.Background(), "x")
	if !errors.Is(err, crosschain.ErrPushUnsupported) {
		t.Errorf("expected ErrPushUnsupported, got %v", err)
	}
}

func TestBridge_GuardedErrorCode(t *testing.T) {
	srv := newTestServer(t)

	reg := adapter.NewRegistry()
	reg.DefineModule(adapter.ModuleCrossChain, crosschain.Wrap)
	reg.Register(adapter.ModuleCrossChain, Metadata())
	f := adapter.NewFactory(reg, adapter.EnvBrowser)

	br, err := crosschain.New(context.Background(), f, Name, adapter.Options{"apiUrl": srv.URL, "apiKey": "secret"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = br.GetStatus(context.Background(), "throttled")
	var aerr *adapter.Error
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *adapter.Error, got %v", err)
	}
	if aerr.Method != "GetStatus" || aerr.Code != "RATE_LIMITED" {
		t.Errorf("unexpected error details: method=%s code=%s", aerr.Method, aerr.Code)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New(context.Background(), adapter.Options{"apiUrl": "not a url"}); err == nil {
		t.Fatal("expected parse error")
	}
}
