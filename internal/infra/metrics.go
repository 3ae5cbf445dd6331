package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight keeper counters.
// Uses atomic operations for thread-safety; Collector exports them to Prometheus.
type Metrics struct {
	// Counters
	eventsProcessed      atomic.Uint64
	observationsAppended atomic.Uint64
	precommitsRecorded   atomic.Uint64
	reconciliations      atomic.Uint64
	reconnects           atomic.Uint64
	errorsTotal          atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	ready             atomic.Int32 // 1 = orderbook integration ready
	lastHeight        atomic.Int64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEvent records an event processing with latency.
func (m *Metrics) RecordEvent(latencyNs int64) {
	m.eventsProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// RecordObservation records an appended price observation.
func (m *Metrics) RecordObservation() {
	m.observationsAppended.Add(1)
}

// RecordPrecommit records a swap written to the precommit slot.
func (m *Metrics) RecordPrecommit() {
	m.precommitsRecorded.Add(1)
}

// RecordReconcile records a completed reserve reconciliation.
func (m *Metrics) RecordReconcile() {
	m.reconciliations.Add(1)
}

// RecordReconnect records a feed reconnect attempt.
func (m *Metrics) RecordReconnect() {
	m.reconnects.Add(1)
}

// SetReady sets the readiness gate state.
func (m *Metrics) SetReady(ready bool) {
	if ready {
		m.ready.Store(1)
	} else {
		m.ready.Store(0)
	}
}

// SetHeight records the latest block height seen by the feed.
func (m *Metrics) SetHeight(height int64) {
	m.lastHeight.Store(height)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsProcessed      uint64
	ObservationsAppended uint64
	PrecommitsRecorded   uint64
	Reconciliations      uint64
	Reconnects           uint64
	ErrorsTotal          uint64
	AvgLatencyNs         int64
	ActiveConnections    int32
	Ready                bool
	LastHeight           int64
	Timestamp            time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsProcessed:      m.eventsProcessed.Load(),
		ObservationsAppended: m.observationsAppended.Load(),
		PrecommitsRecorded:   m.precommitsRecorded.Load(),
		Reconciliations:      m.reconciliations.Load(),
		Reconnects:           m.reconnects.Load(),
		ErrorsTotal:          m.errorsTotal.Load(),
		AvgLatencyNs:         avgLatency,
		ActiveConnections:    m.activeConnections.Load(),
		Ready:                m.ready.Load() == 1,
		LastHeight:           m.lastHeight.Load(),
		Timestamp:            time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsProcessed.Store(0)
	m.observationsAppended.Store(0)
	m.precommitsRecorded.Store(0)
	m.reconciliations.Store(0)
	m.reconnects.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.ready.Store(0)
	m.lastHeight.Store(0)
}
