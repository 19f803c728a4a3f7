// Package metrics provides Prometheus instrumentation for partitioned reads.
//
// # Overview
//
// The metrics package provides:
//   - Counters for planned and computed partitions and records read
//   - A gauge of cursors currently held open against the store
//   - Latency histograms for the planning count and for cursor opens
//   - A per-source Collector that also keeps local totals for summaries
//
// # Basic Usage
//
//	collector := metrics.NewCollector("orders")
//	start := time.Now()
//	cur, err := store.Find(ctx, filter, offset, limit)
//	if err != nil {
//	    collector.CursorOpenFailed()
//	    return err
//	}
//	collector.CursorOpened(time.Since(start))
//	defer collector.CursorClosed()
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PartitionsPlanned counts partition descriptors produced by the planner.
	// Labels: source
	PartitionsPlanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mongosplit_partitions_planned_total",
			Help: "Total number of partition windows planned",
		},
		[]string{"source"},
	)

	// PartitionsComputed counts cursor opens per outcome.
	// Labels: source, status (opened/failed/empty)
	PartitionsComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mongosplit_partitions_computed_total",
			Help: "Total number of partitions computed",
		},
		[]string{"source", "status"},
	)

	// RecordsRead counts documents yielded by partition iterators.
	// Labels: source
	RecordsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mongosplit_records_read_total",
			Help: "Total number of records read from the store",
		},
		[]string{"source"},
	)

	// OpenCursors tracks cursors that have been opened and not yet released.
	// Labels: source
	OpenCursors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mongosplit_open_cursors",
			Help: "Number of cursors currently open",
		},
		[]string{"source"},
	)

	// CountLatency tracks the duration of planning count queries in seconds.
	// Labels: source
	CountLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mongosplit_count_latency_seconds",
			Help:    "Latency of the planning count query",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms .. ~16s
		},
		[]string{"source"},
	)

	// OpenLatency tracks the duration of dial + find per partition in seconds.
	// Labels: source
	OpenLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mongosplit_cursor_open_latency_seconds",
			Help:    "Latency of opening a partition cursor",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"source"},
	)
)

// Collector records metrics for one source. It is safe for concurrent use
// by partitions running in parallel.
type Collector struct {
	name      string
	startTime time.Time

	planned     atomic.Int64
	opened      atomic.Int64
	failed      atomic.Int64
	closed      atomic.Int64
	recordsRead atomic.Int64
}

// NewCollector creates a new metrics collector labelled with name.
func NewCollector(name string) *Collector {
	if name == "" {
		name = "default"
	}
	return &Collector{
		name:      name,
		startTime: time.Now(),
	}
}

// Name returns the source label
func (c *Collector) Name() string {
	return c.name
}

// PartitionsPlanned records n planned partitions
func (c *Collector) PartitionsPlanned(n int) {
	c.planned.Add(int64(n))
	PartitionsPlanned.WithLabelValues(c.name).Add(float64(n))
}

// ObserveCount records the latency of a count query
func (c *Collector) ObserveCount(d time.Duration) {
	CountLatency.WithLabelValues(c.name).Observe(d.Seconds())
}

// CursorOpened records a successful cursor open
func (c *Collector) CursorOpened(d time.Duration) {
	c.opened.Add(1)
	PartitionsComputed.WithLabelValues(c.name, "opened").Inc()
	OpenCursors.WithLabelValues(c.name).Inc()
	OpenLatency.WithLabelValues(c.name).Observe(d.Seconds())
}

// EmptyPartition records a partition served without a server round-trip
func (c *Collector) EmptyPartition() {
	PartitionsComputed.WithLabelValues(c.name, "empty").Inc()
}

// CursorOpenFailed records a failed cursor open
func (c *Collector) CursorOpenFailed() {
	c.failed.Add(1)
	PartitionsComputed.WithLabelValues(c.name, "failed").Inc()
}

// CursorClosed records the release of a cursor opened with CursorOpened
func (c *Collector) CursorClosed() {
	c.closed.Add(1)
	OpenCursors.WithLabelValues(c.name).Dec()
}

// RecordRead records a single yielded record
func (c *Collector) RecordRead() {
	c.recordsRead.Add(1)
	RecordsRead.WithLabelValues(c.name).Inc()
}

// GetAll returns the collector's local totals
func (c *Collector) GetAll() map[string]interface{} {
	return map[string]interface{}{
		"source":             c.name,
		"uptime":             time.Since(c.startTime).Seconds(),
		"partitions_planned": c.planned.Load(),
		"cursors_opened":     c.opened.Load(),
		"cursors_failed":     c.failed.Load(),
		"cursors_closed":     c.closed.Load(),
		"records_read":       c.recordsRead.Load(),
	}
}

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It may be called
// more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
