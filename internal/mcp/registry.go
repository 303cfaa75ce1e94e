package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/nexuscore/agentcore/internal/agent"
	"github.com/nexuscore/agentcore/internal/backoff"
)

// RefreshState is the Registry's periodic-refresh state machine.
type RefreshState string

const (
	RefreshIdle       RefreshState = "idle"
	RefreshRefreshing RefreshState = "refreshing"
	RefreshStopped    RefreshState = "stopped"
)

// ToolDescriptor is a single tool as seen across the whole registry: its
// qualified name ("<server>.<local>", used for routing) and its exposed
// name (a sanitized, collision-free identifier safe to hand to an LLM
// tool-calling API).
type ToolDescriptor struct {
	ExposedName   string
	QualifiedName string
	ServerID      string
	LocalName     string
	Description   string
	InputSchema   []byte
}

// HealthStatus records the last probe outcome for one configured server.
type HealthStatus struct {
	Healthy   bool
	LastError string
	LastCheck time.Time
}

// Registry is the C2 component: it owns a Manager's server connections,
// aggregates their tools under collision-free exposed names, and keeps
// them fresh via an optional periodic refresh loop. Tool calls are routed
// by exposed name back to the owning server and local tool name.
type Registry struct {
	manager *Manager
	logger  *slog.Logger
	policy  backoff.BackoffPolicy

	mu        sync.RWMutex
	byExposed map[string]ToolDescriptor
	byQualified map[string]ToolDescriptor
	health    map[string]HealthStatus

	refreshMu    sync.Mutex
	refreshState RefreshState
	refreshEvery time.Duration
	stopRefresh  chan struct{}

	// OnRefresh, when set, is invoked after every completed refresh with
	// the newly swapped-in catalog. Persistence layers use it to mirror
	// the tool inventory.
	OnRefresh func(tools []ToolDescriptor)
}

// NewRegistry builds a Registry around an already-constructed Manager.
func NewRegistry(manager *Manager, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		manager:      manager,
		logger:       logger.With("component", "mcp_registry"),
		policy:       backoff.BackoffPolicy{InitialMs: 1000, MaxMs: 10000, Factor: 2, Jitter: 0.2},
		byExposed:    make(map[string]ToolDescriptor),
		byQualified:  make(map[string]ToolDescriptor),
		health:       make(map[string]HealthStatus),
		refreshState: RefreshIdle,
	}
}

// Refresh re-lists tools from every connected server and rebuilds the
// exposed-name routing table. A server whose refresh fails is marked
// unhealthy and its tools drop out of the new catalog; it does not block
// the others from refreshing. The swap from old catalog to new catalog is
// atomic: readers either see the complete old table or the complete new
// one, never a partial mix.
func (r *Registry) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	r.refreshState = RefreshRefreshing
	r.refreshMu.Unlock()
	defer func() {
		r.refreshMu.Lock()
		if r.refreshState != RefreshStopped {
			r.refreshState = RefreshIdle
		}
		r.refreshMu.Unlock()
	}()

	clients := r.manager.Clients()

	// Every server rediscovers concurrently; one slow or dead server must
	// not stall the others.
	type serverResult struct {
		serverID string
		tools    []*MCPTool
		err      error
	}
	results := make(chan serverResult, len(clients))
	var wg sync.WaitGroup
	for serverID, client := range clients {
		wg.Add(1)
		go func(serverID string, client *Client) {
			defer wg.Done()
			_, err := backoff.RetryWithBackoff(ctx, r.policy, 3, func(int) (struct{}, error) {
				return struct{}{}, client.RefreshCapabilities(ctx)
			})
			results <- serverResult{serverID: serverID, tools: client.Tools(), err: err}
		}(serverID, client)
	}
	wg.Wait()
	close(results)

	var firstErr error
	descriptors := make([]ToolDescriptor, 0)
	for res := range results {
		r.recordHealth(res.serverID, res.err)
		if res.err != nil {
			r.logger.Warn("refresh failed for mcp server", "server", res.serverID, "error", res.err)
			if firstErr == nil {
				firstErr = fmt.Errorf("refresh %s: %w", res.serverID, res.err)
			}
			continue
		}
		for _, tool := range res.tools {
			descriptors = append(descriptors, ToolDescriptor{
				QualifiedName: res.serverID + "." + tool.Name,
				ServerID:      res.serverID,
				LocalName:     tool.Name,
				Description:   tool.Description,
				InputSchema:   []byte(tool.InputSchema),
			})
		}
	}

	// Sort by qualified name before assigning exposed names so that
	// collisions are resolved deterministically regardless of the
	// nondeterministic map-iteration order above.
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].QualifiedName < descriptors[j].QualifiedName
	})

	used := make(map[string]struct{}, len(descriptors))
	byExposed := make(map[string]ToolDescriptor, len(descriptors))
	byQualified := make(map[string]ToolDescriptor, len(descriptors))
	for _, d := range descriptors {
		d.ExposedName = exposedName(d.QualifiedName, used)
		byExposed[d.ExposedName] = d
		byQualified[d.QualifiedName] = d
	}

	r.mu.Lock()
	r.byExposed = byExposed
	r.byQualified = byQualified
	callback := r.OnRefresh
	r.mu.Unlock()

	if callback != nil {
		callback(r.ListTools())
	}

	return firstErr
}

func (r *Registry) recordHealth(serverID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := HealthStatus{Healthy: err == nil, LastCheck: time.Now()}
	if err != nil {
		status.LastError = err.Error()
	}
	r.health[serverID] = status
}

// HealthCheck pings every connected server out-of-band and updates its
// recorded health without touching the tool routing table. A server
// recovers to healthy on any successful probe, not only on the next
// successful refresh.
func (r *Registry) HealthCheck(ctx context.Context) map[string]HealthStatus {
	for serverID, client := range r.manager.Clients() {
		ok, err := client.Ping(ctx)
		if err == nil && !ok {
			err = fmt.Errorf("ping returned ok=false")
		}
		r.recordHealth(serverID, err)
	}
	return r.Health()
}

// Health returns a snapshot of the last recorded health per server.
func (r *Registry) Health() map[string]HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]HealthStatus, len(r.health))
	for id, s := range r.health {
		out[id] = s
	}
	return out
}

// ListTools returns the current exposed-name routing table, sorted by
// exposed name for deterministic output.
func (r *Registry) ListTools() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.byExposed))
	for _, d := range r.byExposed {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExposedName < out[j].ExposedName })
	return out
}

// ToLLMTools returns the subset of the catalog whose owning server is
// currently healthy, shaped for an LLM tool-calling request.
func (r *Registry) ToLLMTools() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.byExposed))
	for _, d := range r.byExposed {
		if status, ok := r.health[d.ServerID]; ok && !status.Healthy {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExposedName < out[j].ExposedName })
	return out
}

// ListHealthyServers returns the ids of servers whose last probe
// succeeded, sorted for deterministic output.
func (r *Registry) ListHealthyServers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.health))
	for id, status := range r.health {
		if status.Healthy {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// CloseAll disconnects every client the registry's manager owns.
func (r *Registry) CloseAll() error {
	return r.manager.Stop()
}

// ConnectAll instantiates a client per configured server via the manager
// and runs an initial discovery.
func (r *Registry) ConnectAll(ctx context.Context) error {
	if err := r.manager.Start(ctx); err != nil {
		return err
	}
	return r.Refresh(ctx)
}

// Lookup resolves name as either a qualified name or an exposed name
// (exact qualified match first, then the exposed→qualified map, then
// fail).
func (r *Registry) Lookup(name string) (ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byQualified[name]; ok {
		return d, true
	}
	d, ok := r.byExposed[name]
	return d, ok
}

// CallTool resolves name (qualified or exposed) and routes the call to the
// owning server using its local tool name, retrying transient failures
// with the registry's backoff policy. The server must be present and
// currently healthy.
func (r *Registry) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	desc, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("mcp: tool not found: %q", name)
	}
	r.mu.RLock()
	status, known := r.health[desc.ServerID]
	r.mu.RUnlock()
	if known && !status.Healthy {
		return nil, fmt.Errorf("mcp: server %q is unhealthy", desc.ServerID)
	}

	result, err := backoff.RetryWithBackoffIf(ctx, r.policy, 3, isTransportError, func(int) (*ToolCallResult, error) {
		return r.manager.CallTool(ctx, desc.ServerID, desc.LocalName, arguments)
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	return result.Value, nil
}

// StartPeriodicRefresh runs Refresh on a ticker until Stop is called or ctx
// is cancelled. An interval <= 0 disables the loop entirely. Calling it
// again with the same interval while already running is a no-op; calling
// it with a different interval restarts the loop at the new cadence.
func (r *Registry) StartPeriodicRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.refreshMu.Lock()
	if r.refreshState != RefreshStopped && r.stopRefresh != nil && r.refreshEvery == interval {
		r.refreshMu.Unlock()
		return
	}
	if r.stopRefresh != nil {
		close(r.stopRefresh)
	}
	stop := make(chan struct{})
	r.stopRefresh = stop
	r.refreshEvery = interval
	r.refreshState = RefreshIdle
	r.refreshMu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := r.Refresh(ctx); err != nil {
					r.logger.Warn("periodic mcp refresh encountered errors", "error", err)
				}
			}
		}
	}()
}

// Stop halts periodic refresh.
func (r *Registry) Stop() {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	if r.stopRefresh != nil {
		close(r.stopRefresh)
		r.stopRefresh = nil
	}
	r.refreshState = RefreshStopped
}

// State returns the current refresh state machine value.
func (r *Registry) State() RefreshState {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	return r.refreshState
}

// isTransportError reports whether an error deserves a retry: anything
// except a JSON-RPC error object, which is the server's own business error
// and must surface verbatim.
func isTransportError(err error) bool {
	var rpcErr *JSONRPCError
	return !errors.As(err, &rpcErr)
}

// registryToolCaller adapts Registry to the bridge package's ToolCaller
// contract by ignoring the serverID (routing happens by exposed name,
// which ToolBridge already carries).
type registryToolCaller struct{ r *Registry }

func (c registryToolCaller) CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error) {
	return c.r.manager.CallTool(ctx, serverID, toolName, arguments)
}

// RegisterAgentTools wraps every tool currently in the routing table as an
// agent.Tool and registers it with runtime, returning the exposed names
// registered. Call after Refresh so the table is populated.
func (r *Registry) RegisterAgentTools(runtime *agent.Runtime) []string {
	caller := registryToolCaller{r: r}
	descriptors := r.ListTools()
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		tool := &MCPTool{Name: d.LocalName, Description: d.Description, InputSchema: d.InputSchema}
		runtime.RegisterTool(NewToolBridge(caller, d.ServerID, tool, d.ExposedName))
		names = append(names, d.ExposedName)
	}
	return names
}

// exposedName derives the LLM-safe name for a qualified name: it is
// mapped char-by-char (letters and digits preserved as-is; '.', '-', '/'
// and every other non-alphanumeric rune become a single '_'; a leading
// digit gets a "t_" prefix), then de-duplicated against used by appending
// "_2", "_3", ... Callers must present qualified names in a stable sorted
// order across a refresh cycle so the dedup suffixes stay deterministic.
func exposedName(qualified string, used map[string]struct{}) string {
	var b strings.Builder
	b.Grow(len(qualified))
	for _, r := range qualified {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "tool"
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "t_" + name
	}

	base := name
	for n := 2; ; n++ {
		if _, exists := used[name]; !exists {
			break
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
	used[name] = struct{}{}
	return name
}
