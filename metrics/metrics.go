package metrics

import (
	"github.com/Layr-Labs/eigensdk-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsGenerator interface {
	IncPrepared(entryPoint string)
	IncSent(entryPoint string)
	IncError(stage string)
	IncNonceAllocated()

	ObservePrepareDuration(seconds float64)
}

// UserOpMetrics contains instrumented metrics for the user operation
// pipeline. The embedded eigen metrics serve the registry over HTTP.
type UserOpMetrics struct {
	metrics.Metrics

	numPrepared       *prometheus.CounterVec
	numSent           *prometheus.CounterVec
	numErrors         *prometheus.CounterVec
	numNonceAllocated prometheus.Counter
	prepareDuration   prometheus.Histogram
}

const apNamespace = "ap"

// NewUserOpMetrics registers the pipeline metrics on reg. eigenMetrics may be
// nil when the caller exposes reg on its own.
func NewUserOpMetrics(eigenMetrics *metrics.EigenMetrics, reg prometheus.Registerer) *UserOpMetrics {
	m := &UserOpMetrics{
		numPrepared: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "userop_prepared_total",
				Help:      "The number of user operations fully prepared",
			}, []string{"entrypoint"}),

		numSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "userop_sent_total",
				Help:      "The number of user operations accepted by the bundler",
			}, []string{"entrypoint"}),

		numErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "userop_errors_total",
				Help:      "The number of failed preparations or submissions, by pipeline stage",
			}, []string{"stage"}),

		numNonceAllocated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "nonce_allocated_total",
				Help:      "The number of nonces handed out by the nonce manager",
			}),

		prepareDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: apNamespace,
				Name:      "prepare_duration_seconds",
				Help:      "Time spent preparing a user operation",
				Buckets:   prometheus.DefBuckets,
			}),
	}
	if eigenMetrics != nil {
		m.Metrics = eigenMetrics
	}
	return m
}

func (m *UserOpMetrics) IncPrepared(entryPoint string) {
	m.numPrepared.WithLabelValues(entryPoint).Inc()
}

func (m *UserOpMetrics) IncSent(entryPoint string) {
	m.numSent.WithLabelValues(entryPoint).Inc()
}

func (m *UserOpMetrics) IncError(stage string) {
	m.numErrors.WithLabelValues(stage).Inc()
}

func (m *UserOpMetrics) IncNonceAllocated() {
	m.numNonceAllocated.Inc()
}

func (m *UserOpMetrics) ObservePrepareDuration(seconds float64) {
	m.prepareDuration.Observe(seconds)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics { return &NoopMetrics{} }

func (NoopMetrics) IncPrepared(string)             {}
func (NoopMetrics) IncSent(string)                 {}
func (NoopMetrics) IncError(string)                {}
func (NoopMetrics) IncNonceAllocated()             {}
func (NoopMetrics) ObservePrepareDuration(float64) {}
