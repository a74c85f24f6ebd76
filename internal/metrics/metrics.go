// Package metrics exports plan execution events as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/federate/internal/eventbus"
	events "github.com/hanpama/federate/internal/events"
)

const namespace = "federate"

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Collector holds the metrics fed by the event bus.
type Collector struct {
	plans         prometheus.Counter
	planErrors    prometheus.Counter
	planDuration  prometheus.Histogram
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	batchSize     *prometheus.HistogramVec
	backendCalls  *prometheus.CounterVec
	backendTime   *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		plans: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "executions_total",
			Help:      "The number of executed query plans.",
		}),
		planErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "errors_total",
			Help:      "The number of errors in assembled responses.",
		}),
		planDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "duration_seconds",
			Help:      "The duration of query plan execution.",
			Buckets:   durationBuckets,
		}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "total",
			Help:      "The number of fetch nodes executed, by outcome.",
		}, []string{"service", "outcome"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "The duration of fetch nodes.",
			Buckets:   durationBuckets,
		}, []string{"service"}),
		batchSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "representations",
			Help:      "The number of representations sent by entity fetches.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"service"}),
		backendCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "calls_total",
			Help:      "The number of backend calls, by transport status.",
		}, []string{"service", "transport", "status"}),
		backendTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "The duration of backend calls.",
			Buckets:   durationBuckets,
		}, []string{"service", "transport"}),
	}
}

// Subscribe attaches c to the global event bus.
func (c *Collector) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(c.planFinish),
		eventbus.Subscribe(c.fetchStart),
		eventbus.Subscribe(c.fetchFinish),
		eventbus.Subscribe(c.backendFinish),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (c *Collector) planFinish(_ context.Context, e events.PlanFinish) {
	c.plans.Inc()
	c.planErrors.Add(float64(e.Errors))
	c.planDuration.Observe(e.Duration.Seconds())
}

func (c *Collector) fetchStart(_ context.Context, e events.FetchStart) {
	if e.Entity && e.Representations > 0 {
		c.batchSize.WithLabelValues(e.Service).Observe(float64(e.Representations))
	}
}

func (c *Collector) fetchFinish(_ context.Context, e events.FetchFinish) {
	c.fetches.WithLabelValues(e.Service, outcome(e)).Inc()
	c.fetchDuration.WithLabelValues(e.Service).Observe(e.Duration.Seconds())
}

func (c *Collector) backendFinish(_ context.Context, e events.BackendCallFinish) {
	c.backendCalls.WithLabelValues(e.Service, e.Transport, e.Status).Inc()
	c.backendTime.WithLabelValues(e.Service, e.Transport).Observe(e.Duration.Seconds())
}

func outcome(e events.FetchFinish) string {
	switch {
	case e.Err != nil:
		return "failed"
	case e.Skipped:
		return "skipped"
	case e.Errors > 0:
		return "partial"
	default:
		return "ok"
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
