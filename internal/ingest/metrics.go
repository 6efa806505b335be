package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for ingestion runs
type Metrics struct {
	rows     *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics creates the ingest metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opstracker_ingest_rows_total",
				Help: "Rows read from CSV input, by outcome",
			},
			[]string{"result"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opstracker_ingest_runs_total",
				Help: "Ingestion runs, by outcome",
			},
			[]string{"result"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "opstracker_ingest_duration_seconds",
				Help:    "Duration of the parse and insert phase",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
	}
}

func (m *Metrics) observe(report *Report, err error) {
	m.rows.WithLabelValues("inserted").Add(float64(report.Inserted))
	m.rows.WithLabelValues("skipped").Add(float64(report.Skipped))
	m.duration.Observe(report.Duration.Seconds())
	if err != nil {
		m.runs.WithLabelValues("failed").Inc()
		return
	}
	m.runs.WithLabelValues("committed").Inc()
}
