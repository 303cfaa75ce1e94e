package mcp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// stubServer is an in-process MCP server speaking the HTTP transport
// dialect, good enough to drive client/manager/registry tests end to end.
type stubServer struct {
	t *testing.T

	mu       sync.Mutex
	tools    []*MCPTool
	unreach  bool
	callLog  []string
	callResp func(name string, args json.RawMessage) (*ToolCallResult, *JSONRPCError)

	srv *httptest.Server
}

func newStubServer(t *testing.T, tools ...*MCPTool) *stubServer {
	s := &stubServer{t: t, tools: tools}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubServer) URL() string { return s.srv.URL }

func (s *stubServer) setTools(tools ...*MCPTool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = tools
}

func (s *stubServer) setCallResp(fn func(name string, args json.RawMessage) (*ToolCallResult, *JSONRPCError)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callResp = fn
}

func (s *stubServer) setUnreachable(unreachable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreach = unreachable
}

func (s *stubServer) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.callLog...)
}

func (s *stubServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	unreachable := s.unreach
	s.mu.Unlock()
	if unreachable {
		http.Error(w, "gone", http.StatusBadGateway)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	write := func(result any, rpcErr *JSONRPCError) {
		resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		if rpcErr == nil {
			data, err := json.Marshal(result)
			if err != nil {
				s.t.Errorf("stub marshal: %v", err)
				return
			}
			resp.Result = data
		}
		json.NewEncoder(w).Encode(resp)
	}

	switch req.Method {
	case "initialize":
		write(InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    Capabilities{Tools: &ToolsCapability{}},
			ServerInfo:      ServerInfo{Name: "stub", Version: "0.1"},
		}, nil)
	case "tools/list":
		s.mu.Lock()
		tools := append([]*MCPTool(nil), s.tools...)
		s.mu.Unlock()
		write(ListToolsResult{Tools: tools}, nil)
	case "tools/call":
		var params CallToolParams
		json.Unmarshal(req.Params, &params)
		s.mu.Lock()
		s.callLog = append(s.callLog, params.Name)
		responder := s.callResp
		s.mu.Unlock()
		if responder != nil {
			result, rpcErr := responder(params.Name, params.Arguments)
			write(result, rpcErr)
			return
		}
		write(ToolCallResult{Content: []ToolResultContent{{Type: "text", Text: "ok:" + params.Name}}}, nil)
	case "ping":
		write(PingResult{OK: true}, nil)
	default:
		// Notifications arrive here with no ID; acknowledge silently.
		if req.ID == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		write(nil, &JSONRPCError{Code: ErrCodeMethodNotFound, Message: "method not found"})
	}
}

// objectSchema is a minimal valid tool schema for test fixtures.
func objectSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)
}

func stubTool(name string) *MCPTool {
	return &MCPTool{Name: name, Description: "stub " + name, InputSchema: objectSchema()}
}

func stubConfig(id, url string) *ServerConfig {
	return &ServerConfig{ID: id, Transport: TransportHTTP, URL: url, AutoStart: true}
}
