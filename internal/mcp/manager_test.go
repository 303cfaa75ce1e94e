package mcp

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(&Config{Enabled: true}, nil)
	if m == nil {
		t.Fatal("nil manager")
	}
	if len(m.Clients()) != 0 {
		t.Error("new manager has clients")
	}
}

func TestManagerStartDisabled(t *testing.T) {
	m := NewManager(&Config{Enabled: false, Servers: []*ServerConfig{stubConfig("a", "http://localhost:1")}}, slog.Default())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("disabled start errored: %v", err)
	}
	if len(m.Clients()) != 0 {
		t.Error("disabled manager connected servers")
	}
}

func TestManagerConnectUnknownServer(t *testing.T) {
	m := NewManager(&Config{Enabled: true}, slog.Default())
	err := m.Connect(context.Background(), "ghost")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("err = %v", err)
	}
}

func TestManagerConnectAndCallTool(t *testing.T) {
	srv := newStubServer(t, stubTool("echo"))
	m := NewManager(&Config{Enabled: true, Servers: []*ServerConfig{stubConfig("s", srv.URL())}}, slog.Default())
	defer m.Stop()

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	client, ok := m.Client("s")
	if !ok || !client.Connected() {
		t.Fatal("client missing after start")
	}
	if tools := m.AllTools()["s"]; len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("tools = %+v", tools)
	}

	result, err := m.CallTool(ctx, "s", "echo", map[string]any{"q": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "ok:echo" {
		t.Errorf("result = %+v", result)
	}

	if _, err := m.CallTool(ctx, "ghost", "echo", nil); err == nil {
		t.Error("call on unknown server should fail")
	}
}

func TestManagerStatus(t *testing.T) {
	srv := newStubServer(t, stubTool("a"))
	cfg := &Config{Enabled: true, Servers: []*ServerConfig{
		stubConfig("up", srv.URL()),
		{ID: "down", Transport: TransportHTTP, URL: "http://localhost:1", AutoStart: false},
	}}
	m := NewManager(cfg, slog.Default())
	defer m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	statuses := m.Status()
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	// Sorted by id: down first, then up.
	if statuses[0].ID != "down" || statuses[0].Connected {
		t.Errorf("down status = %+v", statuses[0])
	}
	if statuses[1].ID != "up" || !statuses[1].Connected || statuses[1].ToolCount != 1 {
		t.Errorf("up status = %+v", statuses[1])
	}
}

func TestClientDropsInvalidSchemas(t *testing.T) {
	srv := newStubServer(t,
		stubTool("good"),
		&MCPTool{Name: "bad", InputSchema: []byte(`{"type":"array"}`)},
	)
	m := NewManager(&Config{Enabled: true, Servers: []*ServerConfig{stubConfig("s", srv.URL())}}, slog.Default())
	defer m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tools := m.AllTools()["s"]
	if len(tools) != 1 || tools[0].Name != "good" {
		t.Fatalf("tools = %+v, want only the valid one", tools)
	}
}

func TestClientQualifiedNameStripping(t *testing.T) {
	srv := newStubServer(t, stubTool("search"))
	m := NewManager(&Config{Enabled: true, Servers: []*ServerConfig{stubConfig("web", srv.URL())}}, slog.Default())
	defer m.Stop()

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	client, _ := m.Client("web")
	if _, err := client.CallTool(ctx, "web.search", nil); err != nil {
		t.Fatal(err)
	}
	calls := srv.calls()
	if len(calls) != 1 || calls[0] != "search" {
		t.Errorf("server saw %v, want the local name", calls)
	}
}

func TestClientPing(t *testing.T) {
	srv := newStubServer(t)
	m := NewManager(&Config{Enabled: true, Servers: []*ServerConfig{stubConfig("s", srv.URL())}}, slog.Default())
	defer m.Stop()

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}

	client, _ := m.Client("s")
	ok, err := client.Ping(ctx)
	if err != nil || !ok {
		t.Fatalf("ping = %v, %v", ok, err)
	}

	srv.setUnreachable(true)
	if _, err := client.Ping(ctx); err == nil {
		t.Error("ping against unreachable server should fail")
	}
}
