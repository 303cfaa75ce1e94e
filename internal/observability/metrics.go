package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the agent core's three
// subsystems plus the HTTP edge.
type Metrics struct {
	registry *prometheus.Registry

	llmRequests  *prometheus.CounterVec
	llmDuration  *prometheus.HistogramVec
	llmTokens    *prometheus.CounterVec

	toolExecutions *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec

	agentRuns       *prometheus.CounterVec
	agentIterations prometheus.Histogram

	mcpRefreshes  *prometheus.CounterVec
	mcpToolCount  *prometheus.GaugeVec

	ingestionRuns   *prometheus.CounterVec
	ingestionItems  prometheus.Counter
	ingestionChunks prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_llm_requests_total",
			Help: "LLM chat/embedding requests by model and status.",
		}, []string{"model", "status"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexus_llm_request_duration_seconds",
			Help:    "LLM request duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"model"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_llm_tokens_total",
			Help: "Tokens consumed and produced by direction.",
		}, []string{"model", "direction"}),
		toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_tool_executions_total",
			Help: "Tool executions by tool name and status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexus_tool_execution_duration_seconds",
			Help:    "Tool execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"tool"}),
		agentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_agent_runs_total",
			Help: "Agent runs by terminal status.",
		}, []string{"status"}),
		agentIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexus_agent_run_iterations",
			Help:    "Loop iterations per agent run.",
			Buckets: prometheus.LinearBuckets(0, 1, 12),
		}),
		mcpRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_mcp_refreshes_total",
			Help: "Registry refresh cycles by outcome.",
		}, []string{"status"}),
		mcpToolCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_mcp_tools",
			Help: "Tools currently known per server.",
		}, []string{"server"}),
		ingestionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_ingestion_runs_total",
			Help: "Ingestion runs by terminal status.",
		}, []string{"status"}),
		ingestionItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_ingestion_items_total",
			Help: "Items processed across all ingestion runs.",
		}),
		ingestionChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_ingestion_chunks_total",
			Help: "Chunks embedded and upserted across all ingestion runs.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_http_requests_total",
			Help: "HTTP edge requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexus_http_request_duration_seconds",
			Help:    "HTTP edge request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		m.llmRequests, m.llmDuration, m.llmTokens,
		m.toolExecutions, m.toolDuration,
		m.agentRuns, m.agentIterations,
		m.mcpRefreshes, m.mcpToolCount,
		m.ingestionRuns, m.ingestionItems, m.ingestionChunks,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLLMRequest counts one LLM round trip.
func (m *Metrics) RecordLLMRequest(model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	m.llmRequests.WithLabelValues(model, status).Inc()
	m.llmDuration.WithLabelValues(model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution counts one tool call.
func (m *Metrics) RecordToolExecution(tool, status string, durationSeconds float64) {
	m.toolExecutions.WithLabelValues(tool, status).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(durationSeconds)
}

// RecordAgentRun counts one completed agent run.
func (m *Metrics) RecordAgentRun(status string, iterations int) {
	m.agentRuns.WithLabelValues(status).Inc()
	m.agentIterations.Observe(float64(iterations))
}

// RecordMCPRefresh counts one registry refresh cycle.
func (m *Metrics) RecordMCPRefresh(status string) {
	m.mcpRefreshes.WithLabelValues(status).Inc()
}

// SetMCPToolCount records the current catalog size for one server.
func (m *Metrics) SetMCPToolCount(server string, count int) {
	m.mcpToolCount.WithLabelValues(server).Set(float64(count))
}

// RecordIngestionRun counts one ingestion run and its volume.
func (m *Metrics) RecordIngestionRun(status string, items, chunks int) {
	m.ingestionRuns.WithLabelValues(status).Inc()
	m.ingestionItems.Add(float64(items))
	m.ingestionChunks.Add(float64(chunks))
}

// RecordHTTPRequest counts one HTTP edge request.
func (m *Metrics) RecordHTTPRequest(method, route, code string, durationSeconds float64) {
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
