package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ocpp_sync"

// Metrics holds the Prometheus counters, histograms, and gauges for the sync service.
type Metrics struct {
	PassesTotal  *prometheus.CounterVec // labels: outcome={success,failed,skipped}
	PassDuration prometheus.Histogram
	PassRunning  prometheus.Gauge
	LastSuccess  prometheus.Gauge

	// Log source metrics.
	LogsFetched   prometheus.Counter
	FetchFailures prometheus.Counter
	FetchRequests *prometheus.CounterVec // labels: outcome={success,error,retry}
	FetchDuration prometheus.Histogram

	// Normalization and reconciliation metrics.
	ParseFailures   *prometheus.CounterVec // labels: reason={malformed_frame,missing_json,invalid_json}
	RecordsSkipped  *prometheus.CounterVec // labels: reason={out_of_window,known,duplicate}
	RecordsUpserted prometheus.Counter
	SnapshotSize    prometheus.Gauge

	// Downstream publish metrics.
	RecordsPublished prometheus.Counter
	PublishErrors    prometheus.Counter
}

// NewMetrics creates and registers all sync metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PassesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Sync passes by outcome.",
		}, []string{"outcome"}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of a complete sync pass.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PassRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pass_running",
			Help:      "1 while a sync pass is in progress.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful pass.",
		}),
		LogsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_fetched_total",
			Help:      "Raw log lines received from the log source.",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Ports whose logs could not be fetched in a pass.",
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Log source requests by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Log source request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Log lines whose frame could not be decoded, by reason.",
		}, []string{"reason"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Candidate records dropped during reconciliation, by reason.",
		}, []string{"reason"}),
		RecordsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_upserted_total",
			Help:      "Net-new records written to the store.",
		}),
		SnapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_size",
			Help:      "Rows in the store snapshot read by the last pass.",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Records published downstream.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed downstream publish attempts.",
		}),
	}

	prometheus.MustRegister(
		m.PassesTotal,
		m.PassDuration,
		m.PassRunning,
		m.LastSuccess,
		m.LogsFetched,
		m.FetchFailures,
		m.FetchRequests,
		m.FetchDuration,
		m.ParseFailures,
		m.RecordsSkipped,
		m.RecordsUpserted,
		m.SnapshotSize,
		m.RecordsPublished,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PassesTotal:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "passes_total"}, []string{"outcome"}),
		PassDuration:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "pass_duration_seconds"}),
		PassRunning:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pass_running"}),
		LastSuccess:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "last_success_timestamp_seconds"}),
		LogsFetched:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "logs_fetched_total"}),
		FetchFailures:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "fetch_failures_total"}),
		FetchRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "fetch_requests_total"}, []string{"outcome"}),
		FetchDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "fetch_duration_seconds"}),
		ParseFailures:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "parse_failures_total"}, []string{"reason"}),
		RecordsSkipped:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_skipped_total"}, []string{"reason"}),
		RecordsUpserted:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "records_upserted_total"}),
		SnapshotSize:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "snapshot_size"}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "records_published_total"}),
		PublishErrors:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "publish_errors_total"}),
	}
}
