// Package metrics exposes Prometheus instrumentation for pipeline
// runs. A nil *Metrics drops all observations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	files    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	runs     prometheus.Counter
}

// New registers the pipeline collectors with reg. A nil registerer
// uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nova",
			Subsystem: "pipeline",
			Name:      "files_total",
			Help:      "Files finishing a phase, by phase and status.",
		}, []string{"phase", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nova",
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Per-file phase processing duration.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"phase"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nova",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Completed pipeline runs.",
		}),
	}
	reg.MustRegister(m.files, m.duration, m.runs)
	return m
}

// ObserveFile counts one file finishing a phase with the given status.
func (m *Metrics) ObserveFile(phase, status string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(phase, status).Inc()
}

// ObservePhaseDuration records how long one file spent in a phase.
func (m *Metrics) ObservePhaseDuration(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveRun counts a completed run.
func (m *Metrics) ObserveRun() {
	if m == nil {
		return
	}
	m.runs.Inc()
}
