package chatserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/codefionn/amchat/internal/amtcp"
)

const metricsNamespace = "amchat"

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	connectionsTotal  *prometheus.CounterVec
	activeConnections prometheus.Gauge
	commandsTotal     *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
}

// NewMetrics registers the server collectors with reg. users and rooms are
// sampled on every scrape.
func NewMetrics(reg prometheus.Registerer, users, rooms func() int) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Accepted connections by selected mode",
		}, []string{"mode"}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_connections",
			Help:      "Connections currently being served",
		}),

		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Chat commands answered, by verb and reply",
		}, []string{"verb", "reply"}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Event pushes, by event and outcome",
		}, []string{"event", "outcome"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "users",
		Help:      "Registered users",
	}, func() float64 { return float64(users()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "rooms",
		Help:      "Existing rooms",
	}, func() float64 { return float64(rooms()) })

	return m
}

func (m *Metrics) connectionOpened() {
	m.activeConnections.Inc()
}

func (m *Metrics) connectionClosed() {
	m.activeConnections.Dec()
}

func (m *Metrics) modeSelected(mode amtcp.Mode) {
	m.connectionsTotal.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) commandAnswered(verb string, success bool) {
	reply := "nack"
	if success {
		reply = "ack"
	}
	m.commandsTotal.WithLabelValues(verb, reply).Inc()
}

func (m *Metrics) eventPushed(event string, err error) {
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
	}
	m.eventsTotal.WithLabelValues(event, outcome).Inc()
}
