/*

This file contains the process-wide Prometheus registry and every instrument
the engine records. Components import the package-level instruments directly;
the web layer serves the registry at /metrics.

*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry returns the registry backing /metrics.
func Registry() *prometheus.Registry {
	return registry
}

var (
	// AdapterFetches counts fetch attempts per protocol, labeled by outcome
	// ("ok" or "error").
	AdapterFetches = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "yra",
		Subsystem: "aggregator",
		Name:      "adapter_fetches_total",
		Help:      "Adapter fetch attempts by protocol and outcome.",
	}, []string{"protocol", "outcome"})

	// OpportunitiesAggregated tracks the size of the most recent merged snapshot.
	OpportunitiesAggregated = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "yra",
		Subsystem: "aggregator",
		Name:      "opportunities_current",
		Help:      "Opportunities in the most recent aggregation snapshot.",
	})

	// SyncCycles counts oracle sync cycles by result ("pushed", "skipped",
	// "error", "busy").
	SyncCycles = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "yra",
		Subsystem: "syncer",
		Name:      "cycles_total",
		Help:      "Oracle sync cycles by result.",
	}, []string{"result"})

	// OracleAPYBasisPoints reports the last reading derived per tracked protocol.
	OracleAPYBasisPoints = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "yra",
		Subsystem: "syncer",
		Name:      "apy_basis_points",
		Help:      "Last derived APY reading in basis points per tracked protocol.",
	}, []string{"protocol"})

	// OracleTVLSats reports the last TVL reading derived per tracked protocol.
	OracleTVLSats = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "yra",
		Subsystem: "syncer",
		Name:      "tvl_sats",
		Help:      "Last derived TVL reading in satoshis per tracked protocol.",
	}, []string{"protocol"})

	// Recommendations counts recommendations served by source ("model",
	// "rule_based").
	Recommendations = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "yra",
		Subsystem: "recommender",
		Name:      "recommendations_total",
		Help:      "Recommendations produced by source.",
	}, []string{"source"})

	// ModelFailovers counts model-stage failures that fell through to the
	// rule-based path.
	ModelFailovers = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "yra",
		Subsystem: "recommender",
		Name:      "model_failovers_total",
		Help:      "Model attempts that fell back to the rule-based path.",
	})

	// PriceLookups counts BTC/USD rate lookups by source ("live", "cache",
	// "fallback").
	PriceLookups = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "yra",
		Subsystem: "pricing",
		Name:      "rate_lookups_total",
		Help:      "BTC/USD rate lookups by serving source.",
	}, []string{"source"})
)
