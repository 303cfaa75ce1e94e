package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nexuscore/agentcore/internal/backoff"
)

func newTestRegistry(t *testing.T, servers ...*ServerConfig) (*Registry, *Manager) {
	cfg := &Config{Enabled: true, Servers: servers}
	manager := NewManager(cfg, slog.Default())
	t.Cleanup(func() { manager.Stop() })

	registry := NewRegistry(manager, slog.Default())
	// Tests exercise failure paths; a near-zero policy keeps retries from
	// stretching the suite.
	registry.policy = backoff.BackoffPolicy{InitialMs: 1, MaxMs: 2, Factor: 1}
	return registry, manager
}

func TestExposedName_Sanitizer(t *testing.T) {
	cases := map[string]string{
		"web.search":   "web_search",
		"web/search":   "web_search",
		"srv.a-b":      "srv_a_b",
		"srv.tool!x":   "srv_tool_x",
		"9lives.go":    "t_9lives_go",
		"":             "tool",
	}
	for qualified, want := range cases {
		used := map[string]struct{}{}
		if got := exposedName(qualified, used); got != want {
			t.Errorf("exposedName(%q) = %q, want %q", qualified, got, want)
		}
	}
}

func TestExposedName_CollisionsAreDeterministic(t *testing.T) {
	used := map[string]struct{}{}
	first := exposedName("web.search", used)
	second := exposedName("web/search", used)
	third := exposedName("web-search", used)

	if first != "web_search" {
		t.Errorf("first = %q", first)
	}
	if second != "web_search_2" {
		t.Errorf("second = %q", second)
	}
	if third != "web_search_3" {
		t.Errorf("third = %q", third)
	}
}

func TestRegistry_RefreshAndRouting(t *testing.T) {
	srv := newStubServer(t, stubTool("search"), stubTool("fetch"))
	registry, _ := newTestRegistry(t, stubConfig("web", srv.URL()))

	var callbackTools int
	registry.OnRefresh = func(tools []ToolDescriptor) { callbackTools = len(tools) }

	ctx := context.Background()
	if err := registry.ConnectAll(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if callbackTools != 2 {
		t.Errorf("OnRefresh saw %d tools, want 2", callbackTools)
	}

	tools := registry.ListTools()
	if len(tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(tools))
	}
	if tools[0].ExposedName != "web_fetch" || tools[1].ExposedName != "web_search" {
		t.Errorf("exposed names = %q, %q", tools[0].ExposedName, tools[1].ExposedName)
	}
	if tools[1].QualifiedName != "web.search" {
		t.Errorf("qualified = %q", tools[1].QualifiedName)
	}

	// Both name forms must dispatch to the same server-local name.
	for _, name := range []string{"web.search", "web_search"} {
		if _, err := registry.CallTool(ctx, name, map[string]any{"q": "x"}); err != nil {
			t.Fatalf("CallTool(%q): %v", name, err)
		}
	}
	calls := srv.calls()
	if len(calls) != 2 || calls[0] != "search" || calls[1] != "search" {
		t.Errorf("server saw calls %v, want [search search]", calls)
	}

	if _, err := registry.CallTool(ctx, "nope", nil); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("unknown tool error = %v", err)
	}
}

func TestRegistry_RefreshDropsUnreachableServer(t *testing.T) {
	srvA := newStubServer(t, stubTool("t1"))
	srvB := newStubServer(t, stubTool("t2"))
	registry, _ := newTestRegistry(t, stubConfig("a", srvA.URL()), stubConfig("b", srvB.URL()))

	ctx := context.Background()
	if err := registry.ConnectAll(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if n := len(registry.ListTools()); n != 2 {
		t.Fatalf("tools = %d, want 2", n)
	}

	srvB.setUnreachable(true)
	if err := registry.Refresh(ctx); err == nil {
		t.Fatal("expected refresh to report b's failure")
	}

	tools := registry.ListTools()
	if len(tools) != 1 || tools[0].ServerID != "a" {
		t.Fatalf("catalog after failed refresh = %+v, want only a's tools", tools)
	}
	if _, err := registry.CallTool(ctx, "b_t2", nil); err == nil {
		t.Error("call to dropped tool should fail")
	}

	healthy := registry.ListHealthyServers()
	if len(healthy) != 1 || healthy[0] != "a" {
		t.Errorf("healthy servers = %v, want [a]", healthy)
	}
}

func TestRegistry_ToLLMToolsFiltersUnhealthy(t *testing.T) {
	srv := newStubServer(t, stubTool("x"))
	registry, _ := newTestRegistry(t, stubConfig("s", srv.URL()))

	ctx := context.Background()
	if err := registry.ConnectAll(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(registry.ToLLMTools()); n != 1 {
		t.Fatalf("llm tools = %d, want 1", n)
	}

	registry.recordHealth("s", context.DeadlineExceeded)
	if n := len(registry.ToLLMTools()); n != 0 {
		t.Errorf("llm tools = %d after marking unhealthy, want 0", n)
	}
	// Catalog itself is untouched; only the LLM surface shrinks.
	if n := len(registry.ListTools()); n != 1 {
		t.Errorf("catalog = %d, want 1", n)
	}
}

func TestRegistry_HealthCheckRecovers(t *testing.T) {
	srv := newStubServer(t, stubTool("x"))
	registry, _ := newTestRegistry(t, stubConfig("s", srv.URL()))

	ctx := context.Background()
	if err := registry.ConnectAll(ctx); err != nil {
		t.Fatal(err)
	}

	registry.recordHealth("s", context.DeadlineExceeded)
	health := registry.HealthCheck(ctx)
	if status, ok := health["s"]; !ok || !status.Healthy {
		t.Errorf("server did not recover on successful ping: %+v", status)
	}
}

func TestRegistry_PeriodicRefreshLifecycle(t *testing.T) {
	srv := newStubServer(t, stubTool("x"))
	registry, _ := newTestRegistry(t, stubConfig("s", srv.URL()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := registry.ConnectAll(ctx); err != nil {
		t.Fatal(err)
	}

	registry.StartPeriodicRefresh(ctx, 10*time.Millisecond)
	if registry.State() == RefreshStopped {
		t.Fatal("state = stopped right after start")
	}
	// Restarting with the identical interval is a documented no-op.
	registry.StartPeriodicRefresh(ctx, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	registry.Stop()
	if registry.State() != RefreshStopped {
		t.Errorf("state = %v after Stop, want stopped", registry.State())
	}
}

func TestRegistry_CallToolRejectsUnhealthyServer(t *testing.T) {
	srv := newStubServer(t, stubTool("x"))
	registry, _ := newTestRegistry(t, stubConfig("s", srv.URL()))

	ctx := context.Background()
	if err := registry.ConnectAll(ctx); err != nil {
		t.Fatal(err)
	}
	registry.recordHealth("s", context.DeadlineExceeded)

	if _, err := registry.CallTool(ctx, "s_x", nil); err == nil || !strings.Contains(err.Error(), "unhealthy") {
		t.Errorf("err = %v, want unhealthy-server failure", err)
	}
}

func TestRegistry_BusinessErrorNotRetried(t *testing.T) {
	srv := newStubServer(t, stubTool("x"))
	srv.setCallResp(func(name string, args json.RawMessage) (*ToolCallResult, *JSONRPCError) {
		return nil, &JSONRPCError{Code: ErrCodeServerError, Message: "bad input"}
	})
	registry, _ := newTestRegistry(t, stubConfig("s", srv.URL()))

	ctx := context.Background()
	if err := registry.ConnectAll(ctx); err != nil {
		t.Fatal(err)
	}

	_, err := registry.CallTool(ctx, "s_x", nil)
	if err == nil || !strings.Contains(err.Error(), "bad input") {
		t.Fatalf("err = %v, want surfaced business error", err)
	}
	if n := len(srv.calls()); n != 1 {
		t.Errorf("server saw %d calls, want 1 (no retry of business errors)", n)
	}
}
