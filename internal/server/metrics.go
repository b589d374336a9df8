package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded by relay_frames_dropped_total.
const (
	dropMalformed    = "malformed"
	dropBlank        = "blank"
	dropRateLimited  = "rate_limited"
	dropSlowConsumer = "slow_consumer"
	dropBusOverflow  = "bus_overflow"
)

// Metrics groups the relay's Prometheus collectors. Each instance owns its
// registry so several servers can live in one process.
type Metrics struct {
	registry     *prometheus.Registry
	connections  prometheus.Gauge
	forwarded    prometheus.Counter
	dropped      *prometheus.CounterVec
	unknownRoom  prometheus.Counter
	roomsCreated prometheus.Counter
}

// NewMetrics creates and registers the relay collectors along with the
// standard Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Number of live relay connections.",
		}),
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_envelopes_forwarded_total",
			Help: "Envelope copies handed to receiving connections.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_dropped_total",
			Help: "Inbound frames or outbound copies that were dropped, by reason.",
		}, []string{"reason"}),
		unknownRoom: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_unknown_room_total",
			Help: "Envelopes whose room had no server-side log.",
		}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_rooms_created_total",
			Help: "Rooms created through the resource endpoint.",
		}),
	}

	m.registry.MustRegister(
		m.connections,
		m.forwarded,
		m.dropped,
		m.unknownRoom,
		m.roomsCreated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) drop(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}
