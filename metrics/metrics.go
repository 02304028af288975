// Package metrics exposes the adapter's prometheus instrumentation.
// Only the counters/histograms themselves live here — registering a
// scrape HTTP handler for them is left to the embedding program, matching
// the Non-goals carve-out for logging/metrics emission backends.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConnectionsTotal counts accepted connections.
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pgwire_connections_total",
		Help: "Total number of accepted client connections",
	})

	// ConnectionsActive tracks the number of sessions currently holding an
	// engine connection.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pgwire_connections_active",
		Help: "Number of sessions currently holding an engine connection",
	})

	// QueriesTotal counts executed statements by protocol flavor and
	// classification (select/insert/update/delete/ddl/utility).
	QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pgwire_queries_total",
		Help: "Total number of statements executed",
	}, []string{"flow", "kind"})

	// QueryErrorsTotal counts statement executions that returned an error.
	QueryErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pgwire_query_errors_total",
		Help: "Total number of statement executions that errored",
	}, []string{"sqlstate"})

	// QueryLatency tracks execution latency from Parse/Query receipt to
	// CommandComplete.
	QueryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pgwire_query_latency_seconds",
		Help:    "Statement execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// PortalCacheEvictions counts LRU evictions from the per-session
	// portal cache.
	PortalCacheEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pgwire_portal_cache_evictions_total",
		Help: "Total number of portals evicted from the per-session cache",
	}, []string{"reason"})

	// TranslatorCacheSize tracks the number of cached translations.
	TranslatorCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pgwire_translator_cache_size",
		Help: "Number of distinct SQL texts with a cached translation",
	})
)

// MustRegister registers every collector above against reg. Call once at
// startup; a caller that wants a custom registry (rather than
// prometheus.DefaultRegisterer) passes it in here instead of this package
// reaching for the default global registry itself.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		ConnectionsTotal,
		ConnectionsActive,
		QueriesTotal,
		QueryErrorsTotal,
		QueryLatency,
		PortalCacheEvictions,
		TranslatorCacheSize,
	)
}
