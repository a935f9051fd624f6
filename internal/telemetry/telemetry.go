// Package telemetry tracks request, model and tool metrics, exposing them
// both through an in-process snapshot and prometheus collectors.
package telemetry

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dc-codes426/newsapi-ai/config"
)

// Metrics holds aggregate counters guarded by a mutex.
type Metrics struct {
	mu sync.RWMutex

	TotalQueries     int64
	QueriesByOutcome map[string]int64
	TotalQueryTime   time.Duration

	LLMRequests  int64
	LLMFailures  int64
	InputTokens  int64
	OutputTokens int64
	TotalLLMTime time.Duration

	ToolCalls        map[string]int64
	ToolFailures     map[string]int64
	ArticlesReturned int64
}

// Telemetry records events and mirrors them into prometheus.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics

	queriesTotal   *prometheus.CounterVec
	queryDuration  prometheus.Histogram
	llmTotal       *prometheus.CounterVec
	llmTokens      *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	articlesTotal  prometheus.Counter
}

// NewTelemetry creates a telemetry instance and registers its collectors
// on the default prometheus registry.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	out := os.Stdout
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		}
	}
	return &Telemetry{
		config: cfg,
		logger: log.New(out, "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			QueriesByOutcome: make(map[string]int64),
			ToolCalls:        make(map[string]int64),
			ToolFailures:     make(map[string]int64),
		},
		queriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsapi_queries_total",
			Help: "Queries answered, labelled by outcome.",
		}, []string{"outcome"}),
		queryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsapi_query_duration_seconds",
			Help:    "End-to-end query latency.",
			Buckets: prometheus.DefBuckets,
		}),
		llmTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsapi_llm_requests_total",
			Help: "LLM chat calls, labelled by result.",
		}, []string{"result"}),
		llmTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsapi_llm_tokens_total",
			Help: "Tokens exchanged with the LLM, labelled by direction.",
		}, []string{"direction"}),
		toolCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "newsapi_tool_calls_total",
			Help: "Tool invocations, labelled by tool and result.",
		}, []string{"tool", "result"}),
		articlesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "newsapi_articles_returned_total",
			Help: "Articles returned to clients after aggregation.",
		}),
	}
}

// RecordQuery notes one answered query and its outcome
// (ok, timeout, model_error, validation_error, config_error).
func (t *Telemetry) RecordQuery(outcome string, dur time.Duration) {
	if t == nil {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.TotalQueries++
	t.metrics.QueriesByOutcome[outcome]++
	t.metrics.TotalQueryTime += dur
	t.metrics.mu.Unlock()

	t.queriesTotal.WithLabelValues(outcome).Inc()
	t.queryDuration.Observe(dur.Seconds())
	if t.config.Enabled {
		t.logger.Printf("query outcome=%s duration=%s", outcome, dur)
	}
}

// RecordLLMCall notes one chat round trip.
func (t *Telemetry) RecordLLMCall(inputTokens, outputTokens int64, dur time.Duration, err error) {
	if t == nil {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.LLMRequests++
	t.metrics.InputTokens += inputTokens
	t.metrics.OutputTokens += outputTokens
	t.metrics.TotalLLMTime += dur
	if err != nil {
		t.metrics.LLMFailures++
	}
	t.metrics.mu.Unlock()

	result := "ok"
	if err != nil {
		result = "error"
	}
	t.llmTotal.WithLabelValues(result).Inc()
	t.llmTokens.WithLabelValues("input").Add(float64(inputTokens))
	t.llmTokens.WithLabelValues("output").Add(float64(outputTokens))
}

// RecordToolCall notes one tool invocation.
func (t *Telemetry) RecordToolCall(tool string, dur time.Duration, err error) {
	if t == nil {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.ToolCalls[tool]++
	if err != nil {
		t.metrics.ToolFailures[tool]++
	}
	t.metrics.mu.Unlock()

	result := "ok"
	if err != nil {
		result = "error"
	}
	t.toolCallsTotal.WithLabelValues(tool, result).Inc()
	if t.config.Enabled {
		t.logger.Printf("tool=%s result=%s duration=%s", tool, result, dur)
	}
}

// RecordArticles notes how many articles a response carried.
func (t *Telemetry) RecordArticles(n int) {
	if t == nil {
		return
	}
	t.metrics.mu.Lock()
	t.metrics.ArticlesReturned += int64(n)
	t.metrics.mu.Unlock()
	t.articlesTotal.Add(float64(n))
}

// Snapshot returns a copy of the aggregate counters.
func (t *Telemetry) Snapshot() Metrics {
	t.metrics.mu.RLock()
	defer t.metrics.mu.RUnlock()

	snap := Metrics{
		TotalQueries:     t.metrics.TotalQueries,
		TotalQueryTime:   t.metrics.TotalQueryTime,
		LLMRequests:      t.metrics.LLMRequests,
		LLMFailures:      t.metrics.LLMFailures,
		InputTokens:      t.metrics.InputTokens,
		OutputTokens:     t.metrics.OutputTokens,
		TotalLLMTime:     t.metrics.TotalLLMTime,
		ArticlesReturned: t.metrics.ArticlesReturned,
		QueriesByOutcome: make(map[string]int64, len(t.metrics.QueriesByOutcome)),
		ToolCalls:        make(map[string]int64, len(t.metrics.ToolCalls)),
		ToolFailures:     make(map[string]int64, len(t.metrics.ToolFailures)),
	}
	for k, v := range t.metrics.QueriesByOutcome {
		snap.QueriesByOutcome[k] = v
	}
	for k, v := range t.metrics.ToolCalls {
		snap.ToolCalls[k] = v
	}
	for k, v := range t.metrics.ToolFailures {
		snap.ToolFailures[k] = v
	}
	return snap
}
