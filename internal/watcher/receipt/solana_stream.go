package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

var errNoStream = errors.New("no solana websocket endpoint configured")

// WithStream enables the push path over the node's PubSub endpoint. An
// http(s) URL is rewritten to ws(s).
func (s *SolanaSource) WithStream(endpoint string) *SolanaSource {
	s.wsURL = wsEndpoint(endpoint)
	return s
}

func wsEndpoint(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}

type rpcMessage struct {
	ID     *int            `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type signatureNotification struct {
	Result struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Err any `json:"err"`
		} `json:"value"`
	} `json:"result"`
}

// WaitFor subscribes to signatureSubscribe at the configured commitment. The
// node sends one notification and cancels the subscription itself. Once the
// subscription is acknowledged the status is read once, since a signature
// that already reached the commitment may never be notified.
func (s *SolanaSource) WaitFor(ctx context.Context, signature string) (Receipt, error) {
	if s.wsURL == "" {
		return Receipt{}, errNoStream
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "signatureSubscribe",
		"params": []any{
			signature,
			map[string]any{"commitment": string(s.commitment)},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return Receipt{}, fmt.Errorf("subscribe: %w", err)
	}

	for {
		var msg rpcMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return Receipt{}, ctx.Err()
			}
			return Receipt{}, fmt.Errorf("read stream: %w", err)
		}
		if msg.Error != nil {
			return Receipt{}, fmt.Errorf("signatureSubscribe: %d %s", msg.Error.Code, msg.Error.Message)
		}
		if msg.ID != nil && msg.Method == "" {
			if rc, ok, err := s.Fetch(ctx, signature); err == nil && ok {
				return rc, nil
			}
			continue
		}
		if msg.Method != "signatureNotification" {
			continue
		}

		var n signatureNotification
		if err := json.Unmarshal(msg.Params, &n); err != nil {
			return Receipt{}, fmt.Errorf("decode notification: %w", err)
		}
		out := Receipt{
			Chain:   ChainSolana,
			TxHash:  signature,
			Block:   n.Result.Context.Slot,
			Success: n.Result.Value.Err == nil,
		}
		if n.Result.Value.Err != nil {
			out.Err = fmt.Sprint(n.Result.Value.Err)
		}
		return out, nil
	}
}
