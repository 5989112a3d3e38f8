package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CapIot.ixonsync/internal/models"
)

// Metrics counts sync runs. A nil *Metrics records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	runs       *prometheus.CounterVec
	rows       *prometheus.CounterVec
	tagErrors  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	lastRunUTC *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ixonsync_runs_total",
			Help: "Sync runs by pipeline and final status.",
		}, []string{"pipeline", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ixonsync_rows_synced_total",
			Help: "Rows appended to the CSV object or pushed to InfluxDB.",
		}, []string{"pipeline"}),
		tagErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ixonsync_tag_failures_total",
			Help: "Tags skipped in a run because a fetch, parse or write failed.",
		}, []string{"pipeline"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ixonsync_run_duration_seconds",
			Help:    "Wall time of a sync run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"pipeline"}),
		lastRunUTC: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ixonsync_last_run_timestamp_seconds",
			Help: "Start time of the last finished run.",
		}, []string{"pipeline"}),
	}
	m.registry.MustRegister(m.runs, m.rows, m.tagErrors, m.duration, m.lastRunUTC)
	return m
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(report models.SyncReport) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(report.Pipeline, report.Status).Inc()
	m.rows.WithLabelValues(report.Pipeline).Add(float64(report.RowsAdded))
	m.duration.WithLabelValues(report.Pipeline).Observe(float64(report.DurationMs) / 1000)
	m.lastRunUTC.WithLabelValues(report.Pipeline).Set(float64(report.StartedAt.Unix()))

	failed := 0
	for _, tag := range report.Tags {
		if tag.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		m.tagErrors.WithLabelValues(report.Pipeline).Add(float64(failed))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
