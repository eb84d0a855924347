// Package metrics holds the Prometheus collectors for indexing runs and
// graph queries. Collectors register with the default registry on import.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts runs by terminal state.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codegraph_runs_total",
		Help: "Indexing runs by terminal state",
	}, []string{"state"})

	// FilesParsed counts files by parse outcome.
	FilesParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codegraph_files_parsed_total",
		Help: "Files handled in pass 1 by outcome",
	}, []string{"result"})

	EdgesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codegraph_edges_written_total",
		Help: "Dependency edges written in pass 2",
	})

	// ReferencesDropped counts references that produced no edge.
	ReferencesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codegraph_references_dropped_total",
		Help: "References dropped during resolution by reason",
	}, []string{"reason"})

	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codegraph_pass_duration_seconds",
		Help:    "Duration of each indexing pass",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
	}, []string{"pass"})

	// QueryDuration tracks graph query latency by operation.
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codegraph_query_duration_seconds",
		Help:    "Graph query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	}, []string{"operation"})

	ImpactCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codegraph_impact_cache_total",
		Help: "Impact cache lookups by result",
	}, []string{"result"})
)

// ObservePass records the duration of a pass started at start.
func ObservePass(pass string, start time.Time) {
	PassDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
}

// ObserveQuery records the duration of a query started at start.
func ObserveQuery(op string, start time.Time) {
	QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
