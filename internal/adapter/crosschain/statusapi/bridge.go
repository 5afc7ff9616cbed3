// Package statusapi is a cross-chain adapter that tracks executions through
// a bridge aggregator's REST status endpoint and its WebSocket stream.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marko911/chainkit/internal/adapter"
	"github.com/marko911/chainkit/internal/adapter/crosschain"
)

const Name = "status-api"

// Metadata describes the status-api adapter for registration.
func Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:        Name,
		Module:      adapter.ModuleCrossChain,
		AdapterType: "rest",
		Constructor: New,
		Requirements: []adapter.Requirement{
			{Path: "options.apiUrl", Type: adapter.TypeString},
			{Path: "options.wsUrl", Type: adapter.TypeString, AllowUndefined: true},
			{Path: "options.apiKey", Type: adapter.TypeString, AllowUndefined: true},
			{Path: "options.timeoutMs", Type: adapter.TypeNumber, AllowUndefined: true},
		},
		Environment: &adapter.EnvironmentRequirements{
			SupportedEnvironments: []adapter.Environment{adapter.EnvServer, adapter.EnvBrowser},
		},
		ErrorMap: map[string]string{
			"status 429":               "RATE_LIMITED",
			"status 401":               "UNAUTHORIZED",
			"status 5":                 "UPSTREAM_UNAVAILABLE",
			"decode status":            "BAD_RESPONSE",
			"websocket: bad handshake": "PUSH_UNAVAILABLE",
		},
		Features: []string{"status", "push-status"},
	}
}

// statusPayload is the wire shape shared by the REST and stream endpoints.
type statusPayload struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Substatus string `json:"substatus"`
	Sending   struct {
		TxHash string `json:"txHash"`
	} `json:"sending"`
	Receiving struct {
		TxHash string `json:"txHash"`
	} `json:"receiving"`
	UpdatedAt int64 `json:"updatedAt"`
}

func (p statusPayload) toStatus(id string) crosschain.Status {
	st := crosschain.Status{
		ExecutionID: id,
		State:       crosschain.ParseState(p.Status),
		Substatus:   p.Substatus,
		SourceTx:    p.Sending.TxHash,
		DestTx:      p.Receiving.TxHash,
		UpdatedAt:   time.Now().UTC(),
	}
	if p.UpdatedAt > 0 {
		st.UpdatedAt = time.UnixMilli(p.UpdatedAt).UTC()
	}
	return st
}

type subscribeMessage struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// Bridge polls an aggregator's REST status endpoint and, when wsUrl is set,
// follows its WebSocket stream.
type Bridge struct {
	apiURL string
	wsURL  string
	apiKey string

	http   *http.Client
	dialer *websocket.Dialer
	logger *slog.Logger
}

// New is the adapter constructor.
func New(ctx context.Context, opts adapter.Options) (any, error) {
	apiURL := strings.TrimRight(opts.String("apiUrl"), "/")
	if _, err := url.ParseRequestURI(apiURL); err != nil {
		return nil, fmt.Errorf("parse apiUrl: %w", err)
	}

	timeout := 10 * time.Second
	if ms, ok := opts.Uint64("timeoutMs"); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	return &Bridge{
		apiURL: apiURL,
		wsURL:  opts.String("wsUrl"),
		apiKey: opts.String("apiKey"),
		http:   &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{HandshakeTimeout: timeout},
		logger: slog.Default().With("component", "status-api-bridge"),
	}, nil
}

// Capabilities advertises push updates only when a stream URL is configured.
func (b *Bridge) Capabilities() []adapter.Capability {
	if b.wsURL == "" {
		return nil
	}
	return []adapter.Capability{adapter.CapPushUpdates}
}

// GetStatus fetches the current status. An execution the API has not
// indexed yet is reported as PENDING.
func (b *Bridge) GetStatus(ctx context.Context, executionID string) (crosschain.Status, error) {
	endpoint := b.apiURL + "/status?id=" + url.QueryEscape(executionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return crosschain.Status{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set("x-api-key", b.apiKey)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return crosschain.Status{}, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return crosschain.Status{ExecutionID: executionID, State: crosschain.StatePending, UpdatedAt: time.Now().UTC()}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return crosschain.Status{}, fmt.Errorf("get status: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return crosschain.Status{}, fmt.Errorf("decode status: %w", err)
	}
	return p.toStatus(executionID), nil
}

// WaitForStatus subscribes to the stream and returns the first terminal
// status pushed for executionID. The REST status is read once after the
// subscribe so an execution that finished earlier is not waited on.
func (b *Bridge) WaitForStatus(ctx context.Context, executionID string) (crosschain.Status, error) {
	if b.wsURL == "" {
		return crosschain.Status{}, crosschain.ErrPushUnsupported
	}

	header := http.Header{}
	if b.apiKey != "" {
		header.Set("x-api-key", b.apiKey)
	}
	conn, _, err := b.dialer.DialContext(ctx, b.wsURL, header)
	if err != nil {
		return crosschain.Status{}, fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if err := conn.WriteJSON(subscribeMessage{Op: "subscribe", ID: executionID}); err != nil {
		return crosschain.Status{}, fmt.Errorf("subscribe: %w", err)
	}
	b.logger.Debug("subscribed to status stream", "execution_id", executionID)

	current, err := b.GetStatus(ctx, executionID)
	if err != nil {
		return crosschain.Status{}, err
	}
	if current.State.IsTerminal() {
		return current, nil
	}

	for {
		var p statusPayload
		if err := conn.ReadJSON(&p); err != nil {
			if ctx.Err() != nil {
				return crosschain.Status{}, ctx.Err()
			}
			return crosschain.Status{}, fmt.Errorf("read stream: %w", err)
		}
		if p.ID != "" && p.ID != executionID {
			continue
		}
		st := p.toStatus(executionID)
		if st.State.IsTerminal() {
			return st, nil
		}
	}
}

var _ crosschain.Bridge = (*Bridge)(nil)
