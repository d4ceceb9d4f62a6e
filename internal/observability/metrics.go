package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// enrichment and ingestion engine.
type Metrics struct {
	EnrichmentRequests *prometheus.CounterVec // labels: status={complete,partial,failed}
	CategoryOutcomes   *prometheus.CounterVec // labels: category, outcome={success,failed,degraded}

	ExternalCallDuration *prometheus.HistogramVec // labels: source={arcgis,overpass}
	ExternalCallErrors   *prometheus.CounterVec   // labels: source

	CacheLookups *prometheus.CounterVec // labels: result={hit,miss}

	SeederRecordsInserted *prometheus.CounterVec // labels: layer
	SeederRecordsFailed   *prometheus.CounterVec // labels: layer
	SeederRunDuration     prometheus.Histogram
	IngestionRunning      prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.EnrichmentRequests,
		m.CategoryOutcomes,
		m.ExternalCallDuration,
		m.ExternalCallErrors,
		m.CacheLookups,
		m.SeederRecordsInserted,
		m.SeederRecordsFailed,
		m.SeederRunDuration,
		m.IngestionRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EnrichmentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gis_enrich",
			Name:      "enrichment_requests_total",
			Help:      "Enrichment requests by aggregate status.",
		}, []string{"status"}),
		CategoryOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gis_enrich",
			Name:      "category_outcomes_total",
			Help:      "Per-category query outcomes.",
		}, []string{"category", "outcome"}),
		ExternalCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gis_enrich",
			Name:      "external_call_duration_seconds",
			Help:      "External spatial service call duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		ExternalCallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gis_enrich",
			Name:      "external_call_errors_total",
			Help:      "Failed external spatial service calls.",
		}, []string{"source"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gis_enrich",
			Name:      "cache_lookups_total",
			Help:      "Enrichment result cache lookups by result.",
		}, []string{"result"}),
		SeederRecordsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gis_enrich",
			Name:      "seeder_records_inserted_total",
			Help:      "Canonical records inserted per layer.",
		}, []string{"layer"}),
		SeederRecordsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gis_enrich",
			Name:      "seeder_records_failed_total",
			Help:      "Canonical record insert failures per layer.",
		}, []string{"layer"}),
		SeederRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gis_enrich",
			Name:      "seeder_run_duration_seconds",
			Help:      "Duration of a complete ingestion invocation.",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90},
		}),
		IngestionRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gis_enrich",
			Name:      "ingestion_running",
			Help:      "1 while an ingestion invocation is active.",
		}),
	}
}

// ObserveCall updates the external-call metrics from a call record.
func (m *Metrics) ObserveCall(rec domain.CallRecord) {
	m.ExternalCallDuration.WithLabelValues(rec.Source).Observe(rec.Duration.Seconds())
	if !rec.Success {
		m.ExternalCallErrors.WithLabelValues(rec.Source).Inc()
	}
}
