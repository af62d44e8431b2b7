// Package observability holds the Prometheus collectors for the API process.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

const namespace = "imageproof"

// Metrics implements queue.Observer and scoring.Observer.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	scoringTotal    *prometheus.CounterVec
	scoringDuration prometheus.Histogram

	queueDepth    prometheus.Gauge
	tasksInFlight prometheus.Gauge
}

func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		scoringTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "tasks_total",
			Help:      "Scoring tasks by verdict and outcome.",
		}, []string{"verdict", "outcome"}),
		scoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "task_duration_seconds",
			Help:      "Wall time of a scoring task including the artificial delay.",
			Buckets:   []float64{0.5, 1, 2, 2.5, 3, 3.5, 4, 5, 10},
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Scoring tasks waiting for a worker.",
		}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "tasks_in_flight",
			Help:      "Scoring tasks currently running.",
		}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.scoringTotal, m.scoringDuration,
		m.queueDepth, m.tasksInFlight,
	} {
		if err := registry.Register(c); err != nil {
			return nil, eris.Wrap(err, "register collector")
		}
	}
	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) HTTPStarted()  { m.httpInFlight.Inc() }
func (m *Metrics) HTTPFinished() { m.httpInFlight.Dec() }

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveScoring(verdict domain.Verdict, outcome string, elapsed time.Duration) {
	v := string(verdict)
	if v == "" {
		v = "none"
	}
	m.scoringTotal.WithLabelValues(v, outcome).Inc()
	m.scoringDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) QueueDepth(n int) { m.queueDepth.Set(float64(n)) }
func (m *Metrics) TaskStarted()     { m.tasksInFlight.Inc() }
func (m *Metrics) TaskFinished()    { m.tasksInFlight.Dec() }
