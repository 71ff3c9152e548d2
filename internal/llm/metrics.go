package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mono-of-pg/llm-smart-router/internal/logging"
)

// MetricsProvider wraps an LLM provider with timing and metrics collection.
// The router only talks to local backends, so there is no cost accounting,
// just call counts, latency, and token totals.
type MetricsProvider struct {
	provider Provider
	name     string
	log      *logging.Logger

	// Atomic counters
	totalCalls        int64
	totalErrors       int64
	totalTokens       int64
	totalInputTokens  int64
	totalOutputTokens int64

	// Protected by mutex
	mu             sync.RWMutex
	totalLatency   time.Duration
	minLatency     time.Duration
	maxLatency     time.Duration
	latencyBuckets []int64 // Histogram: <100ms, <500ms, <1s, <2s, <5s, 5s+
	modelStats     map[string]*ModelMetrics
}

// ModelMetrics tracks per-model performance.
type ModelMetrics struct {
	Calls        int64
	TotalLatency time.Duration
	Errors       int64
	InputTokens  int64
	OutputTokens int64
}

// NewMetricsProvider wraps a provider with metrics collection.
func NewMetricsProvider(provider Provider) *MetricsProvider {
	return &MetricsProvider{
		provider:       provider,
		name:           provider.Name(),
		log:            logging.Global(),
		minLatency:     time.Hour, // Will be replaced on first call
		latencyBuckets: make([]int64, 6),
		modelStats:     make(map[string]*ModelMetrics),
	}
}

// ListModels implements Provider. Discovery calls are not bucketed; only
// completion latency matters here.
func (m *MetricsProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	start := time.Now()
	models, err := m.provider.ListModels(ctx)
	if err != nil {
		m.log.Warn("[LLM-Metrics] %s model listing FAILED after %v: %v", m.name, time.Since(start), err)
		return nil, err
	}
	m.log.Debug("[LLM-Metrics] %s listed %d models in %v", m.name, len(models), time.Since(start))
	return models, nil
}

// Complete implements Provider interface with metrics.
func (m *MetricsProvider) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	m.log.Debug("[LLM-Metrics] Starting %s/%s call", m.name, req.Model)

	resp, err := m.provider.Complete(ctx, req)

	latency := time.Since(start)

	// Update atomic counters
	atomic.AddInt64(&m.totalCalls, 1)
	if err != nil {
		atomic.AddInt64(&m.totalErrors, 1)
	}

	// Update protected stats
	m.mu.Lock()
	m.totalLatency += latency

	if latency < m.minLatency {
		m.minLatency = latency
	}
	if latency > m.maxLatency {
		m.maxLatency = latency
	}

	// Update histogram bucket
	switch {
	case latency < 100*time.Millisecond:
		m.latencyBuckets[0]++
	case latency < 500*time.Millisecond:
		m.latencyBuckets[1]++
	case latency < 1*time.Second:
		m.latencyBuckets[2]++
	case latency < 2*time.Second:
		m.latencyBuckets[3]++
	case latency < 5*time.Second:
		m.latencyBuckets[4]++
	default:
		m.latencyBuckets[5]++
	}

	// Per-model stats
	if _, ok := m.modelStats[req.Model]; !ok {
		m.modelStats[req.Model] = &ModelMetrics{}
	}
	m.modelStats[req.Model].Calls++
	m.modelStats[req.Model].TotalLatency += latency
	if err != nil {
		m.modelStats[req.Model].Errors++
	}
	m.mu.Unlock()

	// Update token totals if reported
	if resp != nil && resp.TokensUsed > 0 {
		atomic.AddInt64(&m.totalTokens, int64(resp.TokensUsed))
		atomic.AddInt64(&m.totalInputTokens, int64(resp.PromptTokens))
		atomic.AddInt64(&m.totalOutputTokens, int64(resp.CompletionTokens))

		m.mu.Lock()
		if stats, ok := m.modelStats[req.Model]; ok {
			stats.InputTokens += int64(resp.PromptTokens)
			stats.OutputTokens += int64(resp.CompletionTokens)
		}
		m.mu.Unlock()
	}

	if err != nil {
		m.log.Warn("[LLM-Metrics] %s/%s FAILED after %v: %v", m.name, req.Model, latency, err)
	} else {
		tokens := 0
		if resp != nil {
			tokens = resp.TokensUsed
		}
		m.log.Debug("[LLM-Metrics] %s/%s completed in %v (%d tokens)", m.name, req.Model, latency, tokens)
	}

	return resp, err
}

// Name implements Provider interface.
func (m *MetricsProvider) Name() string {
	return m.name
}

// Available implements Provider interface.
func (m *MetricsProvider) Available() bool {
	return m.provider.Available()
}

// GetMetrics returns current metrics.
func (m *MetricsProvider) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := atomic.LoadInt64(&m.totalCalls)
	errors := atomic.LoadInt64(&m.totalErrors)
	inputTokens := atomic.LoadInt64(&m.totalInputTokens)
	outputTokens := atomic.LoadInt64(&m.totalOutputTokens)

	avgLatency := time.Duration(0)
	if calls > 0 {
		avgLatency = m.totalLatency / time.Duration(calls)
	}

	errorRate := float64(0)
	if calls > 0 {
		errorRate = float64(errors) / float64(calls)
	}

	// Build model breakdown
	modelBreakdown := make(map[string]interface{})
	for model, stats := range m.modelStats {
		avgModelLatency := time.Duration(0)
		if stats.Calls > 0 {
			avgModelLatency = stats.TotalLatency / time.Duration(stats.Calls)
		}
		modelBreakdown[model] = map[string]interface{}{
			"calls":          stats.Calls,
			"errors":         stats.Errors,
			"avg_latency_ms": avgModelLatency.Milliseconds(),
			"input_tokens":   stats.InputTokens,
			"output_tokens":  stats.OutputTokens,
		}
	}

	return map[string]interface{}{
		"provider":       m.name,
		"total_calls":    calls,
		"total_errors":   errors,
		"error_rate":     errorRate,
		"total_tokens":   atomic.LoadInt64(&m.totalTokens),
		"input_tokens":   inputTokens,
		"output_tokens":  outputTokens,
		"avg_latency_ms": avgLatency.Milliseconds(),
		"min_latency_ms": m.minLatency.Milliseconds(),
		"max_latency_ms": m.maxLatency.Milliseconds(),
		"latency_histogram": map[string]int64{
			"<100ms": m.latencyBuckets[0],
			"<500ms": m.latencyBuckets[1],
			"<1s":    m.latencyBuckets[2],
			"<2s":    m.latencyBuckets[3],
			"<5s":    m.latencyBuckets[4],
			"5s+":    m.latencyBuckets[5],
		},
		"models": modelBreakdown,
	}
}

// Summary returns a human-readable call summary.
func (m *MetricsProvider) Summary() string {
	calls := atomic.LoadInt64(&m.totalCalls)
	tokens := atomic.LoadInt64(&m.totalTokens)

	if calls == 0 {
		return fmt.Sprintf("%s: no calls", m.name)
	}

	return fmt.Sprintf("%s: %d calls, %d tokens", m.name, calls, tokens)
}

// Reset clears all metrics.
func (m *MetricsProvider) Reset() {
	atomic.StoreInt64(&m.totalCalls, 0)
	atomic.StoreInt64(&m.totalErrors, 0)
	atomic.StoreInt64(&m.totalTokens, 0)
	atomic.StoreInt64(&m.totalInputTokens, 0)
	atomic.StoreInt64(&m.totalOutputTokens, 0)

	m.mu.Lock()
	m.totalLatency = 0
	m.minLatency = time.Hour
	m.maxLatency = 0
	m.latencyBuckets = make([]int64, 6)
	m.modelStats = make(map[string]*ModelMetrics)
	m.mu.Unlock()
}

// Unwrap returns the underlying provider.
func (m *MetricsProvider) Unwrap() Provider {
	return m.provider
}
