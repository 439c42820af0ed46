// Package metrics holds the Prometheus instruments for a batch run.
//
// A batch is a short-lived process, so nothing is served over HTTP: the
// registry is dumped once, at the end of the run, in the node-exporter
// textfile format.
//
// All operations are safe for concurrent use by pool workers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ephysbatch"

// Outcome labels for FilesTotal.
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
	OutcomeCached   = "cached"
)

// Metrics groups the run's instruments on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	// FilesTotal counts finished files by outcome.
	FilesTotal *prometheus.CounterVec

	// SweepsRejected counts long-square sweeps dropped while loading.
	SweepsRejected prometheus.Counter

	// FileDuration measures wall time per analyzed file (cache hits excluded).
	FileDuration prometheus.Histogram

	// Workers is the configured pool size.
	Workers prometheus.Gauge

	// InFlight is the number of files being analyzed right now.
	InFlight prometheus.Gauge
}

// New creates the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		FilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "NWB files processed, by outcome",
		}, []string{"outcome"}),
		SweepsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_rejected_total",
			Help:      "Long-square sweeps that failed to load",
		}),
		FileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Time to extract features from one file",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		Workers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Configured worker pool size",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_in_flight",
			Help:      "Files currently being analyzed",
		}),
	}
}

// ObserveFile records one analyzed file.
func (m *Metrics) ObserveFile(outcome string, d time.Duration) {
	m.FilesTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeCached {
		m.FileDuration.Observe(d.Seconds())
	}
}

// WriteTextfile writes every metric to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
