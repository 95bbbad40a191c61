// Package metrics holds the prometheus collectors describing scheduler and
// session activity. Collectors live in a private registry so that tests and
// multiple invocations never collide on the global one.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fragment results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultKilled  = "killed"
)

// Metrics is the set of fwrig collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fragmentsStarted   prometheus.Counter
	fragmentsCompleted *prometheus.CounterVec
	fragmentsActive    prometheus.Gauge
	fragmentDuration   prometheus.Histogram
	companions         prometheus.Counter
}

// New creates the collectors and registers them in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		fragmentsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "fwrig_fragments_started_total",
			Help: "Total script fragments spawned by the scheduler.",
		}),
		fragmentsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fwrig_fragments_completed_total",
			Help: "Total script fragments that terminated, by result.",
		}, []string{"result"}),
		fragmentsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fwrig_fragments_active",
			Help: "Script fragments currently running.",
		}),
		fragmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fwrig_fragment_duration_seconds",
			Help:    "Wall-clock duration of script fragments.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		companions: factory.NewCounter(prometheus.CounterOpts{
			Name: "fwrig_session_companions_total",
			Help: "Total terminal companion processes spawned by run sessions.",
		}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// FragmentStarted records a spawned fragment.
func (m *Metrics) FragmentStarted() {
	if m == nil {
		return
	}
	m.fragmentsStarted.Inc()
	m.fragmentsActive.Inc()
}

// FragmentFinished records a terminated fragment and how long it ran.
func (m *Metrics) FragmentFinished(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.fragmentsActive.Dec()
	m.fragmentsCompleted.WithLabelValues(result).Inc()
	m.fragmentDuration.Observe(d.Seconds())
}

// CompanionStarted records a companion spawned by a run session.
func (m *Metrics) CompanionStarted() {
	if m == nil {
		return
	}
	m.companions.Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current values to path for the node exporter's
// textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
