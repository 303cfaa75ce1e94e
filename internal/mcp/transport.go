package mcp

import (
	"context"
	"encoding/json"
)

// Transport carries JSON-RPC 2.0 traffic to one MCP server. WebSocket is
// the preferred long-lived transport; HTTP POST is the request/response
// fallback; stdio drives a local subprocess.
type Transport interface {
	// Connect establishes the transport connection.
	Connect(ctx context.Context) error

	// Close releases the transport. Any in-flight Call fails with a
	// transport error.
	Close() error

	// Call sends a request and waits for the matching response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification (no response expected).
	Notify(ctx context.Context, method string, params any) error

	// Connected reports whether the transport is currently usable.
	Connected() bool
}

// NewTransport creates a transport matching the server configuration.
func NewTransport(cfg *ServerConfig) Transport {
	switch cfg.Transport {
	case TransportWS:
		return NewWSTransport(cfg)
	case TransportHTTP:
		return NewHTTPTransport(cfg)
	default:
		return NewStdioTransport(cfg)
	}
}
