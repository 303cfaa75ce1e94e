package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// defaultWSPath is appended to a server URL that names only a host.
const defaultWSPath = "/mcp"

// WSTransport implements the MCP WebSocket transport: a single connection
// multiplexed across many in-flight requests via a monotonic id, with one
// reader goroutine routing responses back to their waiter regardless of
// arrival order. On unexpected disconnect every outstanding waiter fails
// with a transport error.
type WSTransport struct {
	config *ServerConfig
	logger *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	pending   map[int64]chan *JSONRPCResponse
	pendingMu sync.Mutex
	nextID    atomic.Int64

	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewWSTransport creates a new WebSocket transport.
func NewWSTransport(cfg *ServerConfig) *WSTransport {
	return &WSTransport{
		config:   cfg,
		logger:   slog.Default().With("mcp_server", cfg.ID, "transport", "websocket"),
		pending:  make(map[int64]chan *JSONRPCResponse),
		stopChan: make(chan struct{}),
	}
}

// Connect dials the server's WebSocket URL and starts the reader loop.
func (t *WSTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for websocket transport")
	}

	endpoint := t.config.URL
	if parsed, err := url.Parse(endpoint); err == nil && (parsed.Path == "" || parsed.Path == "/") {
		parsed.Path = defaultWSPath
		endpoint = parsed.String()
	}

	header := make(map[string][]string, len(t.config.Headers))
	for k, v := range t.config.Headers {
		header[k] = []string{v}
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.config.Timeout}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 30 * time.Second
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	t.conn = conn
	t.connected.Store(true)

	t.wg.Add(1)
	go t.readLoop()

	return nil
}

// Close fails every pending waiter and tears down the connection.
func (t *WSTransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopChan)

	t.connMu.Lock()
	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	t.connMu.Unlock()

	t.wg.Wait()
	t.failPending()

	return err
}

// failPending closes every waiter's channel so blocked Calls return a
// transport error.
func (t *WSTransport) failPending() {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}

// Call sends a JSON-RPC request and blocks until its response arrives (or
// ctx is cancelled). Concurrent calls are multiplexed by id; responses may
// arrive out of order.
func (t *WSTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	wait := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = wait
	t.pendingMu.Unlock()

	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.writeJSON(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.stopChan:
		return nil, fmt.Errorf("transport closed while awaiting response to %s", method)
	case resp, ok := <-wait:
		if !ok || resp == nil {
			return nil, fmt.Errorf("transport closed while awaiting response to %s", method)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// Notify sends a notification without waiting for a response.
func (t *WSTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = paramsJSON
	}
	return t.writeJSON(notif)
}

func (t *WSTransport) writeJSON(v any) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("not connected")
	}
	return t.conn.WriteJSON(v)
}

// Connected reports whether the socket is currently up.
func (t *WSTransport) Connected() bool { return t.connected.Load() }

// readLoop is the single reader goroutine: it decodes every incoming frame
// and routes it by id to the pending waiter. Server notifications are
// logged and dropped. When the loop exits for any reason the transport is
// marked disconnected and all outstanding waiters fail.
func (t *WSTransport) readLoop() {
	defer t.wg.Done()
	defer t.connected.Store(false)
	defer t.failPending()

	for {
		var raw json.RawMessage
		if err := t.conn.ReadJSON(&raw); err != nil {
			select {
			case <-t.stopChan:
			default:
				t.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		var envelope struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}

		if envelope.Method != "" {
			t.logger.Debug("ignoring server-initiated message", "method", envelope.Method)
			continue
		}

		var resp JSONRPCResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			continue
		}

		var id int64
		if err := json.Unmarshal(envelope.ID, &id); err != nil {
			continue
		}

		t.pendingMu.Lock()
		wait, ok := t.pending[id]
		if ok {
			delete(t.pending, id)
		}
		t.pendingMu.Unlock()
		if ok {
			wait <- &resp
		}
	}
}
