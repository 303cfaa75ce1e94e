package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// protocolVersion is the MCP protocol revision this client speaks.
const protocolVersion = "2024-11-05"

// Client is the C1 component: one connection to one MCP server, owning the
// transport, the cached tool list from the last successful discovery, and
// nothing else. Health bookkeeping lives in the Registry, which owns all
// clients.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	mu    sync.RWMutex
	tools []*MCPTool

	serverInfo ServerInfo
}

// NewClient creates a client for one configured server.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: NewTransport(cfg),
		logger:    logger.With("mcp_server", cfg.ID),
	}
}

// Connect establishes the transport, performs the initialize handshake,
// and runs an initial tool discovery.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"list": true, "call": true},
		},
		"clientInfo": map[string]any{
			"name":    "nexus",
			"version": "1.0.0",
		},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}

	c.serverInfo = initResult.ServerInfo
	c.logger.Info("connected to MCP server",
		"name", c.serverInfo.Name,
		"version", c.serverInfo.Version,
		"protocol", initResult.ProtocolVersion)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn("initial tool discovery failed", "error", err)
	}

	return nil
}

// Close releases the transport; outstanding calls fail with a transport
// error.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Config returns the server configuration.
func (c *Client) Config() *ServerConfig {
	return c.config
}

// ServerInfo returns information about the connected server.
func (c *Client) ServerInfo() ServerInfo {
	return c.serverInfo
}

// Connected reports whether the transport is up.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// RefreshCapabilities re-runs tools/list and replaces the cached tool list.
// Tools whose input schema fails validation are dropped with a warning; the
// rest of the list still loads. On error the previous cache is kept so a
// transient failure does not blank a server's known tools.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	result, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}

	var resp ListToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return fmt.Errorf("parse tools/list result: %w", err)
	}

	valid := make([]*MCPTool, 0, len(resp.Tools))
	for _, tool := range resp.Tools {
		if tool == nil || tool.Name == "" {
			continue
		}
		if err := ValidateToolSchema(tool.InputSchema); err != nil {
			c.logger.Warn("dropping tool with invalid schema", "tool", tool.Name, "error", err)
			continue
		}
		valid = append(valid, tool)
	}

	c.mu.Lock()
	c.tools = valid
	c.mu.Unlock()

	c.logger.Debug("refreshed tools", "count", len(valid))
	return nil
}

// Tools returns the tools cached by the last successful discovery, under
// their local (un-prefixed) names.
func (c *Client) Tools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// CallTool invokes a tool on the server. A qualified "<server>.<local>"
// name is accepted and stripped down to the local name, so routing layers
// can pass either form.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	local := strings.TrimPrefix(name, c.config.ID+".")

	params := CallToolParams{Name: local}
	if arguments != nil {
		argsJSON, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = argsJSON
	}

	result, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &callResult, nil
}

// Ping is the out-of-band health probe. It reports healthy only when the
// server answers with {ok:true}.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	result, err := c.transport.Call(ctx, "ping", nil)
	if err != nil {
		return false, err
	}
	var pong PingResult
	if err := json.Unmarshal(result, &pong); err != nil {
		return false, fmt.Errorf("parse ping result: %w", err)
	}
	return pong.OK, nil
}
