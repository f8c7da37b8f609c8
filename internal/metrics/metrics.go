package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ballast"

// Metrics holds the engine's instrumentation. A nil *Metrics is a no-op so
// tests and library callers can skip wiring it.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal      prometheus.Counter
	cyclesFailed     prometheus.Counter
	strategyFailures *prometheus.CounterVec
	precisionDrift   prometheus.Counter
	intentsEmitted   prometheus.Counter
	cycleDuration    prometheus.Histogram
}

// New builds a Metrics set on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of rebalance cycles started.",
		}),
		cyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_failed_total",
			Help:      "Total number of rebalance cycles that produced no intents due to an error.",
		}),
		strategyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_failures_total",
			Help:      "Total number of per-strategy evaluation failures.",
		}, []string{"strategy"}),
		precisionDrift: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precision_renormalizations_total",
			Help:      "Total number of combined allocations renormalized for float drift.",
		}),
		intentsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_intents_total",
			Help:      "Total number of trade intents handed to the executor.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one full rebalance cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	registry.MustRegister(
		m.cyclesTotal,
		m.cyclesFailed,
		m.strategyFailures,
		m.precisionDrift,
		m.intentsEmitted,
		m.cycleDuration,
	)
	return m
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CycleStarted() {
	if m != nil {
		m.cyclesTotal.Inc()
	}
}

func (m *Metrics) CycleFailed() {
	if m != nil {
		m.cyclesFailed.Inc()
	}
}

func (m *Metrics) StrategyFailed(name string) {
	if m != nil {
		m.strategyFailures.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) PrecisionRenormalized() {
	if m != nil {
		m.precisionDrift.Inc()
	}
}

func (m *Metrics) IntentsEmitted(n int) {
	if m != nil && n > 0 {
		m.intentsEmitted.Add(float64(n))
	}
}

func (m *Metrics) ObserveCycleDuration(seconds float64) {
	if m != nil {
		m.cycleDuration.Observe(seconds)
	}
}
