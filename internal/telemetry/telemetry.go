// Package telemetry exposes Prometheus metrics for the playback engine.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the playback-facing instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	MovesApplied   prometheus.Counter
	MovesSkipped   prometheus.Counter
	FetchFailures  prometheus.Counter
	FetchDuration  prometheus.Histogram
	SessionsActive prometheus.Gauge
}

// NewMetrics registers the playback instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MovesApplied: f.NewCounter(prometheus.CounterOpts{
			Name: "playback_moves_applied_total",
			Help: "Solver moves applied to puzzle state.",
		}),
		MovesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "playback_moves_skipped_total",
			Help: "Diagnostic or contradiction moves consumed without a state change.",
		}),
		FetchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "playback_fetch_failures_total",
			Help: "Solve requests that ended in an error.",
		}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "playback_fetch_duration_seconds",
			Help:    "Latency of solve requests.",
			Buckets: prometheus.DefBuckets,
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "playback_sessions_active",
			Help: "Playback controllers currently auto-solving.",
		}),
	}
}

// Handler serves the default registry on /metrics.
func Handler() http.Handler { return promhttp.Handler() }
