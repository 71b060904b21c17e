package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector defines the interface for collecting relay metrics
type Collector interface {
	ConnectionOpened()
	ConnectionClosed()
	SessionsActive(n int)
	MessageRelayed(kind string, recipients int)
	MessageDropped(reason string)
}

// Drop reasons.
const (
	DropMalformed    = "malformed"
	DropWrongSession = "wrong_session"
	DropSlowConsumer = "slow_consumer"
	DropQueueFull    = "queue_full"
)

// NoOp is a no-op implementation for when metrics aren't needed
type NoOp struct{}

func (NoOp) ConnectionOpened()                          {}
func (NoOp) ConnectionClosed()                          {}
func (NoOp) SessionsActive(n int)                       {}
func (NoOp) MessageRelayed(kind string, recipients int) {}
func (NoOp) MessageDropped(reason string)               {}

// RelayMetrics holds all Prometheus metrics for the live relay
type RelayMetrics struct {
	Connections prometheus.Gauge
	Sessions    prometheus.Gauge
	Messages    *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
	FanOut      prometheus.Histogram
}

var _ Collector = (*RelayMetrics)(nil)

// NewRelayMetrics creates the relay metrics and registers them with reg.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "live_relay",
			Name:      "connections",
			Help:      "Open WebSocket connections",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "live_relay",
			Name:      "sessions",
			Help:      "Sessions with at least one connection",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "live_relay",
			Name:      "messages_total",
			Help:      "Messages relayed, by kind",
		}, []string{"kind"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "live_relay",
			Name:      "dropped_total",
			Help:      "Messages dropped, by reason",
		}, []string{"reason"}),
		FanOut: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "live_relay",
			Name:      "fan_out_recipients",
			Help:      "Recipients per relayed message",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Connections, m.Sessions, m.Messages, m.Dropped, m.FanOut)
	}
	return m
}

func (m *RelayMetrics) ConnectionOpened() { m.Connections.Inc() }

func (m *RelayMetrics) ConnectionClosed() { m.Connections.Dec() }

func (m *RelayMetrics) SessionsActive(n int) { m.Sessions.Set(float64(n)) }

func (m *RelayMetrics) MessageRelayed(kind string, recipients int) {
	m.Messages.WithLabelValues(kind).Inc()
	m.FanOut.Observe(float64(recipients))
}

func (m *RelayMetrics) MessageDropped(reason string) {
	m.Dropped.WithLabelValues(reason).Inc()
}
