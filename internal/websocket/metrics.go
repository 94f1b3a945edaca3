package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "roomwire"

// Metrics holds Prometheus metrics for a session
type Metrics struct {
	framesReceived  prometheus.Counter
	linesDispatched prometheus.Counter
	linesSent       prometheus.Counter
	queryTimeouts   *prometheus.CounterVec
	loginAttempts   *prometheus.CounterVec
	reconnects      prometheus.Counter
	queueDepth      prometheus.Gauge
}

// newMetrics creates and registers session metrics. A nil registry disables
// metrics and returns nil; every method is a no-op on a nil receiver.
func newMetrics(registry prometheus.Registerer) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "frames_received_total",
			Help:      "Inbound websocket frames",
		}),
		linesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "lines_dispatched_total",
			Help:      "Protocol lines handled by the dispatcher",
		}),
		linesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "throttle",
			Name:      "lines_sent_total",
			Help:      "Outbound lines written to the socket",
		}),
		queryTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "correlator",
			Name:      "query_timeouts_total",
			Help:      "Detail queries that expired, by kind",
		}, []string{"kind"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Automatic reconnect attempts",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "throttle",
			Name:      "queue_depth",
			Help:      "Lines waiting in the outbound queue",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.framesReceived, m.linesDispatched, m.linesSent,
		m.queryTimeouts, m.loginAttempts, m.reconnects, m.queueDepth,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) frameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) lineDispatched() {
	if m != nil {
		m.linesDispatched.Inc()
	}
}

func (m *Metrics) sent(n int) {
	if m != nil {
		m.linesSent.Add(float64(n))
	}
}

func (m *Metrics) queryTimeout(kind string) {
	if m != nil {
		m.queryTimeouts.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) loginAttempt(result string) {
	if m != nil {
		m.loginAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) depth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}
