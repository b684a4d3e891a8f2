// Package metrics defines the Prometheus instruments of the run lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer, which records nothing.
type Metrics struct {
	runsCreated      prometheus.Counter
	transitions      *prometheus.CounterVec
	solveDuration    *prometheus.HistogramVec
	generateDuration *prometheus.HistogramVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "optiforge_runs_created_total",
			Help: "Runs created.",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "optiforge_run_transitions_total",
			Help: "Persisted run status transitions by target status.",
		}, []string{"status"}),
		solveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optiforge_solve_duration_seconds",
			Help:    "Wall-clock time spent in the solver by solve status.",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		generateDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optiforge_generate_duration_seconds",
			Help:    "Time spent producing and validating IR by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}

func (m *Metrics) RunCreated() {
	if m == nil {
		return
	}
	m.runsCreated.Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveSolve(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.solveDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) ObserveGenerate(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.generateDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
