// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptimeSeconds"`
	Extract       *OperationSnapshot `json:"extract,omitempty"`
	JobStatus     *OperationSnapshot `json:"jobStatus,omitempty"`
	Convert       *OperationSnapshot `json:"convert,omitempty"`
	RagIngest     *OperationSnapshot `json:"ragIngest,omitempty"`
	RagQuery      *OperationSnapshot `json:"ragQuery,omitempty"`
	Health        *OperationSnapshot `json:"health,omitempty"`
	JobRun        *OperationSnapshot `json:"jobRun,omitempty"`
	StoreQuery    *OperationSnapshot `json:"storeQuery,omitempty"`
}

// Operation names for the collector.
const (
	OpExtract    = "backend_extract"
	OpJobStatus  = "backend_job_status"
	OpConvert    = "backend_convert"
	OpRagIngest  = "backend_rag_ingest"
	OpRagQuery   = "backend_rag_query"
	OpHealth     = "backend_health"
	OpJobRun     = "job_run"
	OpStoreQuery = "store_query"
)

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

// RecordResult records timing and counts a failure when err is non-nil.
func (c *Collector) RecordResult(op string, duration time.Duration, err error) {
	c.RecordTiming(op, duration)
	if err == nil {
		return
	}
	c.mu.Lock()
	c.ops[op].Errors++
	c.mu.Unlock()
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		Errors:      m.Errors,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Extract:       snapshotOp(c.ops[OpExtract]),
		JobStatus:     snapshotOp(c.ops[OpJobStatus]),
		Convert:       snapshotOp(c.ops[OpConvert]),
		RagIngest:     snapshotOp(c.ops[OpRagIngest]),
		RagQuery:      snapshotOp(c.ops[OpRagQuery]),
		Health:        snapshotOp(c.ops[OpHealth]),
		JobRun:        snapshotOp(c.ops[OpJobRun]),
		StoreQuery:    snapshotOp(c.ops[OpStoreQuery]),
	}
}
