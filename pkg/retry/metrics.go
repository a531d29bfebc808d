package retry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsHandler records retry events as Prometheus metrics
type MetricsHandler struct {
	scheduled   *prometheus.CounterVec
	suspensions prometheus.Counter
	successes   prometheus.Counter
	failures    *prometheus.CounterVec
	attempts    prometheus.Histogram
	delay       prometheus.Histogram
}

// NewMetricsHandler creates the collectors and registers them with reg
func NewMetricsHandler(reg prometheus.Registerer) (*MetricsHandler, error) {
	m := &MetricsHandler{
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resilience_retry_scheduled_total",
			Help: "Retries scheduled after a failed attempt, by error kind",
		}, []string{"kind"}),
		suspensions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resilience_retry_suspensions_total",
			Help: "Retry sequences suspended because the network was offline",
		}),
		successes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resilience_retry_successes_total",
			Help: "Retry sequences that ended with a successful attempt",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resilience_retry_failures_total",
			Help: "Retry sequences that gave up, by last error kind",
		}, []string{"kind"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resilience_retry_attempts",
			Help:    "Attempts needed by successful sequences",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),
		delay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resilience_retry_delay_seconds",
			Help:    "Backoff delays scheduled between attempts",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 7),
		}),
	}

	for _, c := range []prometheus.Collector{m.scheduled, m.suspensions, m.successes, m.failures, m.attempts, m.delay} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// OnRetryScheduled counts the retry by error kind and records its delay
func (m *MetricsHandler) OnRetryScheduled(_ context.Context, _ string, state AttemptState, delay time.Duration) {
	m.scheduled.WithLabelValues(state.LastErrorKind.String()).Inc()
	m.delay.Observe(delay.Seconds())
}

// OnSuspended counts an offline suspension
func (m *MetricsHandler) OnSuspended(context.Context, string, AttemptState) {
	m.suspensions.Inc()
}

// OnResumed is a no-op
func (m *MetricsHandler) OnResumed(context.Context, string, AttemptState) {}

// OnRetrySuccess counts the success and records how many attempts it took
func (m *MetricsHandler) OnRetrySuccess(_ context.Context, _ string, attempts int, _ time.Duration) {
	m.successes.Inc()
	m.attempts.Observe(float64(attempts))
}

// OnMaxAttemptsReached counts the terminal failure by error kind
func (m *MetricsHandler) OnMaxAttemptsReached(_ context.Context, _ string, failure *Failure) {
	m.failures.WithLabelValues(failure.LastErrorKind.String()).Inc()
}
