// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"strings"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64 `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64 `json:"total_output_tokens,omitempty"`
}

// Snapshot represents full orchestrator statistics at a point in time.
type Snapshot struct {
	UptimeSeconds  float64               `json:"uptime_seconds"`
	IntentClassify *OperationSnapshot    `json:"intent_classify,omitempty"`
	LLMGenerate    *OperationSnapshot    `json:"llm_generate,omitempty"`
	Embedding      *OperationSnapshot    `json:"embedding,omitempty"`
	AdapterQuery   map[string]*OperationSnapshot `json:"adapter_query,omitempty"`
	AdapterWrite   map[string]*OperationSnapshot `json:"adapter_write,omitempty"`
	Synthesize     *OperationSnapshot    `json:"synthesize,omitempty"`
}

// Operation names for the collector. Adapter operations are suffixed with
// the adapter name, e.g. "adapter_query:vector".
const (
	OpIntentClassify = "intent_classify"
	OpLLMGenerate    = "llm_generate"
	OpEmbedding      = "embedding"
	OpAdapterQuery   = "adapter_query"
	OpAdapterWrite   = "adapter_write"
	OpSynthesize     = "synthesize"
)

// AdapterOp builds the collector key for a per-adapter operation.
func AdapterOp(op, adapterName string) string {
	return op + ":" + adapterName
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens && (m.TotalInputTokens > 0 || m.TotalOutputTokens > 0) {
		in := m.TotalInputTokens
		out := m.TotalOutputTokens
		snap.TotalInputTokens = &in
		snap.TotalOutputTokens = &out
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		IntentClassify: snapshotOp(c.ops[OpIntentClassify], false),
		LLMGenerate:    snapshotOp(c.ops[OpLLMGenerate], true),
		Embedding:      snapshotOp(c.ops[OpEmbedding], false),
		Synthesize:     snapshotOp(c.ops[OpSynthesize], false),
	}

	for op, m := range c.ops {
		if name, ok := strings.CutPrefix(op, OpAdapterQuery+":"); ok {
			if snap.AdapterQuery == nil {
				snap.AdapterQuery = make(map[string]*OperationSnapshot)
			}
			snap.AdapterQuery[name] = snapshotOp(m, false)
			continue
		}
		if name, ok := strings.CutPrefix(op, OpAdapterWrite+":"); ok {
			if snap.AdapterWrite == nil {
				snap.AdapterWrite = make(map[string]*OperationSnapshot)
			}
			snap.AdapterWrite[name] = snapshotOp(m, false)
		}
	}
	return snap
}
