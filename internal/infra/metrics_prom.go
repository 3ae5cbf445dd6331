package infra

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "liquidity"

// Collector exposes a Metrics instance to Prometheus. Values are read at scrape time.
type Collector struct {
	m *Metrics

	eventsProcessed      *prometheus.Desc
	observationsAppended *prometheus.Desc
	precommitsRecorded   *prometheus.Desc
	reconciliations      *prometheus.Desc
	reconnects           *prometheus.Desc
	errorsTotal          *prometheus.Desc
	avgLatency           *prometheus.Desc
	activeConnections    *prometheus.Desc
	ready                *prometheus.Desc
	lastHeight           *prometheus.Desc
}

// NewCollector creates a collector over m, labelled with the pool address.
func NewCollector(m *Metrics, pool string) *Collector {
	labels := prometheus.Labels{"pool": pool}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "keeper", name), help, nil, labels)
	}
	return &Collector{
		m:                    m,
		eventsProcessed:      desc("events_processed_total", "Chain events applied by the sequencer."),
		observationsAppended: desc("observations_appended_total", "Price observations appended to the buffer."),
		precommitsRecorded:   desc("precommits_recorded_total", "Swaps written to the precommit slot."),
		reconciliations:      desc("reconciliations_total", "Completed reserve reconciliations."),
		reconnects:           desc("feed_reconnects_total", "Chain feed reconnect attempts."),
		errorsTotal:          desc("errors_total", "Failed pool operations."),
		avgLatency:           desc("event_latency_avg_seconds", "Average event processing latency."),
		activeConnections:    desc("active_connections", "Open websocket connections."),
		ready:                desc("orderbook_ready", "1 once the orderbook integration gate is open."),
		lastHeight:           desc("last_block_height", "Latest block height received."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.eventsProcessed
	ch <- c.observationsAppended
	ch <- c.precommitsRecorded
	ch <- c.reconciliations
	ch <- c.reconnects
	ch <- c.errorsTotal
	ch <- c.avgLatency
	ch <- c.activeConnections
	ch <- c.ready
	ch <- c.lastHeight
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Snapshot()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.eventsProcessed, snap.EventsProcessed)
	counter(c.observationsAppended, snap.ObservationsAppended)
	counter(c.precommitsRecorded, snap.PrecommitsRecorded)
	counter(c.reconciliations, snap.Reconciliations)
	counter(c.reconnects, snap.Reconnects)
	counter(c.errorsTotal, snap.ErrorsTotal)
	gauge(c.avgLatency, float64(snap.AvgLatencyNs)/1e9)
	gauge(c.activeConnections, float64(snap.ActiveConnections))
	ready := 0.0
	if snap.Ready {
		ready = 1
	}
	gauge(c.ready, ready)
	gauge(c.lastHeight, float64(snap.LastHeight))
}
