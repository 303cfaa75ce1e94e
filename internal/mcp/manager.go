package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manager owns the set of MCP server connections: one Client per
// configured server, connected at startup and torn down together.
type Manager struct {
	config  *Config
	logger  *slog.Logger
	clients map[string]*Client
	mu      sync.RWMutex
}

// Config holds the MCP subsystem configuration.
type Config struct {
	Enabled bool            `yaml:"enabled"`
	Servers []*ServerConfig `yaml:"servers"`

	// RefreshIntervalSeconds is the registry's periodic tools/list refresh
	// period; zero or negative disables the loop.
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`
}

// NewManager creates a manager over the configured server set.
func NewManager(cfg *Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:  cfg,
		logger:  logger.With("component", "mcp"),
		clients: make(map[string]*Client),
	}
}

// Start connects every configured server with auto_start enabled. A server
// that fails to connect is logged and skipped; the rest still come up.
func (m *Manager) Start(ctx context.Context) error {
	if m.config == nil || !m.config.Enabled {
		m.logger.Debug("MCP disabled")
		return nil
	}

	for _, serverCfg := range m.config.Servers {
		if !serverCfg.AutoStart {
			continue
		}
		if err := m.Connect(ctx, serverCfg.ID); err != nil {
			m.logger.Error("failed to connect to MCP server",
				"server", serverCfg.ID,
				"error", err)
		}
	}
	return nil
}

// Stop disconnects every client.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, client := range m.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", id, err)
		}
		delete(m.clients, id)
	}
	return firstErr
}

// Connect connects (or reconnects) the named server.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	var serverCfg *ServerConfig
	if m.config != nil {
		for _, cfg := range m.config.Servers {
			if cfg.ID == serverID {
				serverCfg = cfg
				break
			}
		}
	}
	if serverCfg == nil {
		return fmt.Errorf("server not configured: %s", serverID)
	}
	if err := serverCfg.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	m.mu.Lock()
	if existing, ok := m.clients[serverID]; ok {
		existing.Close()
		delete(m.clients, serverID)
	}
	m.mu.Unlock()

	client := NewClient(serverCfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.clients[serverID] = client
	m.mu.Unlock()
	return nil
}

// Disconnect closes and forgets the named server's client.
func (m *Manager) Disconnect(serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[serverID]
	if !ok {
		return fmt.Errorf("server not connected: %s", serverID)
	}
	err := client.Close()
	delete(m.clients, serverID)
	return err
}

// Client returns the client for one server.
func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[serverID]
	return client, ok
}

// Clients returns a snapshot of the connected clients keyed by server id.
func (m *Manager) Clients() map[string]*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Client, len(m.clients))
	for id, client := range m.clients {
		out[id] = client
	}
	return out
}

// AllTools returns each connected server's cached tools under their local
// names.
func (m *Manager) AllTools() map[string][]*MCPTool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]*MCPTool, len(m.clients))
	for id, client := range m.clients {
		out[id] = client.Tools()
	}
	return out
}

// CallTool invokes a tool on a specific server by its local name.
func (m *Manager) CallTool(ctx context.Context, serverID string, toolName string, arguments map[string]any) (*ToolCallResult, error) {
	client, ok := m.Client(serverID)
	if !ok {
		return nil, fmt.Errorf("server not connected: %s", serverID)
	}
	return client.CallTool(ctx, toolName, arguments)
}

// ServerStatus summarizes one server connection for status surfaces.
type ServerStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"tool_count"`
}

// Status reports every configured server, connected or not, sorted by id.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var statuses []ServerStatus
	seen := make(map[string]bool)

	for id, client := range m.clients {
		statuses = append(statuses, ServerStatus{
			ID:        id,
			Name:      client.ServerInfo().Name,
			Connected: client.Connected(),
			ToolCount: len(client.Tools()),
		})
		seen[id] = true
	}
	if m.config != nil {
		for _, cfg := range m.config.Servers {
			if !seen[cfg.ID] {
				statuses = append(statuses, ServerStatus{ID: cfg.ID, Name: cfg.Name})
			}
		}
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}
