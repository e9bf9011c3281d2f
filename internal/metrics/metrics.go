package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notifyd/internal/model"
)

const namespace = "notifyd"

var connectionStates = []model.ConnectionState{
	model.StateIdle,
	model.StateConnecting,
	model.StateOpen,
	model.StateClosed,
	model.StateReconnectScheduled,
	model.StateDisconnected,
	model.StateExhausted,
}

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	connectionState   *prometheus.GaugeVec
	reconnectAttempts prometheus.Counter
	framesReceived    *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	unread            prometheus.Gauge
	effectFailures    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current state of the push connection, 0 otherwise.",
		}, []string{"state"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled after unexpected closes.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound push frames by message type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped by reason.",
		}, []string{"reason"}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_notifications",
			Help:      "Unread notifications known to the local cache.",
		}),
		effectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Failed desktop, audio or toast side effects.",
		}, []string{"effect"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.connectionState,
		m.reconnectAttempts,
		m.framesReceived,
		m.framesDropped,
		m.unread,
		m.effectFailures,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnectionState(state model.ConnectionState) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(string(s)).Set(v)
	}
}

func (m *Metrics) ReconnectScheduled() {
	m.reconnectAttempts.Inc()
}

func (m *Metrics) FrameReceived(msgType string) {
	m.framesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetUnread(n int) {
	m.unread.Set(float64(n))
}

func (m *Metrics) EffectFailed(effect string) {
	m.effectFailures.WithLabelValues(effect).Inc()
}
