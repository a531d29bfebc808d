package network

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the monitor as Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	state       prometheus.Gauge
	latency     prometheus.Histogram
	probeErrors prometheus.Counter
	transitions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resilience_network_state",
			Help: "Current network state (0 online, 1 offline, 2 limited)",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resilience_network_probe_seconds",
			Help:    "Round trip of successful connectivity probes",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		probeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resilience_network_probe_errors_total",
			Help: "Connectivity probes that failed or timed out",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resilience_network_transitions_total",
			Help: "Network state transitions",
		}, []string{"from", "to"}),
	}

	for _, c := range []prometheus.Collector{m.state, m.latency, m.probeErrors, m.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *Metrics) observeProbe(rtt time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.probeErrors.Inc()
		return
	}
	m.latency.Observe(rtt.Seconds())
}

func (m *Metrics) observeTransition(from, to State) {
	if m == nil {
		return
	}
	m.state.Set(float64(to))
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}
