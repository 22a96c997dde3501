// Package stats exposes the poller's own health as Prometheus metrics.
//
// All collectors live in a private registry so tests and multiple engines do
// not collide on the global one. Methods are safe on a nil *Stats, which
// records nothing.
package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vector"

// Acquisition results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Stats holds the engine's self-metrics.
type Stats struct {
	registry *prometheus.Registry

	ticks         prometheus.Counter
	fetches       prometheus.Counter
	fetchFailures prometheus.Counter
	fetchDuration prometheus.Histogram
	samples       prometheus.Counter
	circuitOpens  prometheus.Counter
	acquisitions  *prometheus.CounterVec
	pollerActive  prometheus.Gauge
	subscribed    prometheus.Gauge
	derived       prometheus.Gauge
}

// New creates Stats with a fresh registry that also carries the Go runtime
// and process collectors.
func New() *Stats {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Stats{
		registry: reg,
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "ticks_total",
			Help:      "Poll loop ticks executed.",
		}),
		fetches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "fetches_total",
			Help:      "Batched metric fetches issued.",
		}),
		fetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "fetch_failures_total",
			Help:      "Batched metric fetches that failed.",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of batched metric fetches.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		samples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "points_stored_total",
			Help:      "Points appended to metric series.",
		}),
		circuitOpens: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "circuit_opens_total",
			Help:      "Times the poll loop was stopped after consecutive fetch failures.",
		}),
		acquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "acquisitions_total",
			Help:      "Remote context acquisition attempts by result.",
		}, []string{"result"}),
		pollerActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "active",
			Help:      "1 while the poll loop is armed.",
		}),
		subscribed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "metrics",
			Help:      "Registered fetched metrics.",
		}),
		derived: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "derived_metrics",
			Help:      "Registered derived metrics.",
		}),
	}
}

// Registry returns the underlying registry.
func (s *Stats) Registry() *prometheus.Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Stats) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Tick counts one poll loop tick.
func (s *Stats) Tick() {
	if s == nil {
		return
	}
	s.ticks.Inc()
}

// Fetch records one batched fetch.
func (s *Stats) Fetch(d time.Duration, err error) {
	if s == nil {
		return
	}
	s.fetches.Inc()
	s.fetchDuration.Observe(d.Seconds())
	if err != nil {
		s.fetchFailures.Inc()
	}
}

// Points counts points appended to series.
func (s *Stats) Points(n int) {
	if s == nil || n <= 0 {
		return
	}
	s.samples.Add(float64(n))
}

// CircuitOpen counts a circuit breaker trip.
func (s *Stats) CircuitOpen() {
	if s == nil {
		return
	}
	s.circuitOpens.Inc()
}

// Acquisition records a context acquisition attempt.
func (s *Stats) Acquisition(err error) {
	if s == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	s.acquisitions.WithLabelValues(result).Inc()
}

// PollerActive sets the poller armed gauge.
func (s *Stats) PollerActive(active bool) {
	if s == nil {
		return
	}
	if active {
		s.pollerActive.Set(1)
	} else {
		s.pollerActive.Set(0)
	}
}

// Registered sets the registry size gauges.
func (s *Stats) Registered(metrics, derived int) {
	if s == nil {
		return
	}
	s.subscribed.Set(float64(metrics))
	s.derived.Set(float64(derived))
}
