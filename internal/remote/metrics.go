package remote

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for request metrics.
const (
	outcomeSuccess  = "success"
	outcomeRetry    = "retry"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
	outcomeShed     = "shed" // queue wait exceeded before any attempt
)

// Stats is a point-in-time snapshot of client counters.
type Stats struct {
	Attempted    int64         `json:"attempted"`
	Succeeded    int64         `json:"succeeded"`
	Failed       int64         `json:"failed"`
	Retried      int64         `json:"retried"`
	Shed         int64         `json:"shed"`
	TotalLatency time.Duration `json:"total_latency"`
}

// AvgLatency is the mean latency across attempts.
func (s Stats) AvgLatency() time.Duration {
	if s.Attempted == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Attempted)
}

// Metrics records per-attempt counters in-process and, when a registerer is
// given, mirrors them into Prometheus.
type Metrics struct {
	attempted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	shed      atomic.Int64
	latencyNs atomic.Int64

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates the client metrics. reg may be nil to skip Prometheus.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "order_engine",
				Subsystem: "remote",
				Name:      "requests_total",
				Help:      "Remote commerce API attempts by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "order_engine",
				Subsystem: "remote",
				Name:      "request_duration_seconds",
				Help:      "Latency of remote commerce API attempts.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requestsTotal, m.requestDuration)
	}
	return m
}

func (m *Metrics) observe(op, outcome string, latency time.Duration) {
	m.attempted.Add(1)
	m.latencyNs.Add(int64(latency))
	switch outcome {
	case outcomeSuccess:
		m.succeeded.Add(1)
	case outcomeRetry:
		m.retried.Add(1)
	default:
		m.failed.Add(1)
	}
	m.requestsTotal.WithLabelValues(op, outcome).Inc()
	m.requestDuration.WithLabelValues(op).Observe(latency.Seconds())
}

func (m *Metrics) observeShed(op string) {
	m.shed.Add(1)
	m.requestsTotal.WithLabelValues(op, outcomeShed).Inc()
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Attempted:    m.attempted.Load(),
		Succeeded:    m.succeeded.Load(),
		Failed:       m.failed.Load(),
		Retried:      m.retried.Load(),
		Shed:         m.shed.Load(),
		TotalLatency: time.Duration(m.latencyNs.Load()),
	}
}
