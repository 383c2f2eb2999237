// Package metrics exposes the worker's activity as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moroshma/jstail/internal/domain/entity"
)

const namespace = "jstail"

// Metrics implements router.Recorder and holds its own registry.
type Metrics struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	droppedEvents   *prometheus.CounterVec
	droppedMessages *prometheus.CounterVec
	payloadBytes    prometheus.Counter
	transitions     *prometheus.CounterVec
	consumers       prometheus.Gauge
	connected       prometheus.Gauge
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events sent to the presentation layer, by kind",
		}, []string{"kind"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events abandoned because their consumer was cancelled",
		}, []string{"kind"}),
		droppedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Broker messages dropped because the consumer buffer was full",
		}, []string{"stream"}),
		payloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Payload bytes of every forwarded message",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connectivity_transitions_total",
			Help:      "Connectivity events, by status",
		}, []string{"status"}),
		consumers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumers_active",
			Help:      "Live consumers of the current server address",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "1 while the broker connection is usable",
		}),
	}

	m.registry.MustRegister(
		m.events,
		m.droppedEvents,
		m.droppedMessages,
		m.payloadBytes,
		m.transitions,
		m.consumers,
		m.connected,
	)
	return m
}

// ObserveEvent implements router.Recorder
func (m *Metrics) ObserveEvent(ev entity.Event) {
	m.events.WithLabelValues(string(ev.Kind())).Inc()

	switch e := ev.(type) {
	case entity.MessageEvent:
		m.addPayload(e.Message)
	case entity.MessageTraceEvent:
		m.addPayload(e.Message)
	case entity.MessageFailureEvent:
		m.addPayload(e.Message)
	case entity.ConnectivityChangedEvent:
		m.transitions.WithLabelValues(string(e.Status)).Inc()
		// A failed command says nothing about the connection.
		if e.Status == entity.StatusError {
			return
		}
		if e.Status.Healthy() {
			m.connected.Set(1)
		} else {
			m.connected.Set(0)
		}
	}
}

func (m *Metrics) addPayload(msg *entity.Message) {
	if msg != nil {
		m.payloadBytes.Add(float64(len(msg.Data)))
	}
}

// ObserveDroppedEvent implements router.Recorder
func (m *Metrics) ObserveDroppedEvent(kind entity.EventKind) {
	m.droppedEvents.WithLabelValues(string(kind)).Inc()
}

// ObserveDroppedMessage counts a message the broker adapter could not buffer.
func (m *Metrics) ObserveDroppedMessage(stream string) {
	m.droppedMessages.WithLabelValues(stream).Inc()
}

// SetConsumers records the live consumer count.
func (m *Metrics) SetConsumers(active int) {
	m.consumers.Set(float64(active))
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
