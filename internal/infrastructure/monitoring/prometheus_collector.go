package monitoring

import (
	"callhub/internal/core/domain"
	"callhub/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.SignalingMetrics.
type PrometheusCollector struct {
	registerer prometheus.Registerer

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	roomsActive       prometheus.Gauge
	roomsCreated      prometheus.Counter

	envelopes  *prometheus.CounterVec
	admissions *prometheus.CounterVec
}

var _ ports.SignalingMetrics = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers every series on reg. Passing a fresh
// registry keeps tests independent of the global default.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		registerer: reg,

		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callhub_connections_active",
			Help: "Signaling sockets currently registered",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "callhub_connections_total",
			Help: "Signaling sockets registered since start",
		}),

		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "callhub_rooms_active",
			Help: "Rooms with at least one participant",
		}),

		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "callhub_rooms_created_total",
			Help: "Rooms created since start",
		}),

		envelopes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callhub_envelopes_total",
			Help: "Inbound envelopes by type and outcome",
		}, []string{"type", "outcome"}),

		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callhub_admissions_total",
			Help: "Join admission decisions",
		}, []string{"decision"}),
	}
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) EnvelopeHandled(envelopeType domain.EnvelopeType, outcome string) {
	p.envelopes.WithLabelValues(string(envelopeType), outcome).Inc()
}

func (p *PrometheusCollector) RoomCreated() {
	p.roomsActive.Inc()
	p.roomsCreated.Inc()
}

func (p *PrometheusCollector) RoomDestroyed() {
	p.roomsActive.Dec()
}

func (p *PrometheusCollector) Admission(decision string) {
	p.admissions.WithLabelValues(decision).Inc()
}

// ObserveBreaker exports a circuit breaker state (0 closed, 1 open,
// 2 half-open) read at scrape time.
func (p *PrometheusCollector) ObserveBreaker(name string, state func() float64) {
	promauto.With(p.registerer).NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "callhub_circuit_breaker_state",
		Help:        "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		ConstLabels: prometheus.Labels{"breaker": name},
	}, state)
}
