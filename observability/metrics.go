// Package observability exposes pipeline metrics to Prometheus and keeps a
// SQLite ledger of finished runs. Both attach to a pipeline through
// clone.Hooks.
package observability

import (
	"net/http"
	"time"

	"github.com/kononmatsumoto/webcloner/clone"
	"github.com/kononmatsumoto/webcloner/connectivity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors on a private registry.
type Metrics struct {
	reg           *prometheus.Registry
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	breakerState  *prometheus.GaugeVec
	rejected      prometheus.Counter
}

// NewMetrics creates the collectors and registers them, together with the
// Go runtime and process collectors, on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webcloner",
			Name:      "runs_total",
			Help:      "Finished clone runs by outcome and error category.",
		}, []string{"status", "category", "stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "webcloner",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage", "outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "webcloner",
			Name:      "runs_in_flight",
			Help:      "Clone runs currently executing.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "webcloner",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per service (0 closed, 1 open, 2 half open).",
		}, []string{"service"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webcloner",
			Name:      "runs_rejected_total",
			Help:      "Clone requests rejected because the server was at capacity.",
		}),
	}
	m.reg.MustRegister(m.runs, m.stageDuration, m.inFlight, m.breakerState, m.rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Hooks returns pipeline hooks feeding the stage and run collectors.
func (m *Metrics) Hooks() clone.Hooks {
	return clone.Hooks{
		OnStage: func(_ clone.Run, st clone.Stage, d time.Duration, err error) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.stageDuration.WithLabelValues(string(st), outcome).Observe(d.Seconds())
		},
		OnDone: func(_ clone.Run, res *clone.Result) {
			if res.Success {
				m.runs.WithLabelValues("succeeded", "", "").Inc()
				return
			}
			var category, stage string
			if res.Error != nil {
				category, stage = string(res.Error.Category), string(res.Error.Stage)
			}
			m.runs.WithLabelValues("failed", category, stage).Inc()
		},
	}
}

// RunStarted and RunFinished track in-flight runs.
func (m *Metrics) RunStarted()  { m.inFlight.Inc() }
func (m *Metrics) RunFinished() { m.inFlight.Dec() }

// Rejected counts a request turned away at capacity.
func (m *Metrics) Rejected() { m.rejected.Inc() }

// BreakerObserver returns a callback for connectivity.WithBreakerOnChange.
func (m *Metrics) BreakerObserver(service string) func(from, to connectivity.BreakerState) {
	g := m.breakerState.WithLabelValues(service)
	g.Set(0)
	return func(_, to connectivity.BreakerState) {
		g.Set(float64(to))
	}
}
