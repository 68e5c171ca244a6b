package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// visitor pipeline and its refresh loops.
type Metrics struct {
	// Pipeline stage metrics.
	StageDuration *prometheus.HistogramVec // labels: stage
	RowsProcessed *prometheus.CounterVec   // labels: stage
	ValuesNulled  *prometheus.CounterVec   // labels: reason={decommission,overlap,outlier,sigma}
	PipelineRuns  *prometheus.CounterVec   // labels: pipeline, outcome={success,error}

	// Upload quality metrics.
	UploadsQuarantined prometheus.Counter
	UploadsAccepted    prometheus.Counter

	// Sourcing metrics.
	SourceRequests        *prometheus.CounterVec   // labels: source={weather,parking}, outcome={success,error}
	SourceRequestDuration *prometheus.HistogramVec // labels: source

	// Inference metrics.
	ModelCache       *prometheus.CounterVec // labels: result={hit,miss}
	ForecastsWritten prometheus.Counter
	RefreshRunning   prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.StageDuration,
		m.RowsProcessed,
		m.ValuesNulled,
		m.PipelineRuns,
		m.UploadsQuarantined,
		m.UploadsAccepted,
		m.SourceRequests,
		m.SourceRequestDuration,
		m.ModelCache,
		m.ForecastsWritten,
		m.RefreshRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "visitor_pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of one pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		RowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitor_pipeline",
			Name:      "rows_processed_total",
			Help:      "Rows emitted by each pipeline stage.",
		}, []string{"stage"}),
		ValuesNulled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitor_pipeline",
			Name:      "values_nulled_total",
			Help:      "Sensor readings nulled during reconciliation, by reason.",
		}, []string{"reason"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitor_pipeline",
			Name:      "runs_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"pipeline", "outcome"}),
		UploadsQuarantined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visitor_pipeline",
			Name:      "uploads_quarantined_total",
			Help:      "Uploaded files rejected by schema validation.",
		}),
		UploadsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visitor_pipeline",
			Name:      "uploads_accepted_total",
			Help:      "Uploaded files merged into the preprocessed store.",
		}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitor_pipeline",
			Name:      "source_requests_total",
			Help:      "External sourcing requests by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "visitor_pipeline",
			Name:      "source_request_duration_seconds",
			Help:      "External sourcing request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		ModelCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitor_pipeline",
			Name:      "model_cache_total",
			Help:      "Model loader cache lookups by result.",
		}, []string{"result"}),
		ForecastsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "visitor_pipeline",
			Name:      "forecasts_written_total",
			Help:      "Forecast rows persisted to storage.",
		}),
		RefreshRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "visitor_pipeline",
			Name:      "refresh_running",
			Help:      "1 while a scheduled refresh cycle is executing.",
		}),
	}
}
