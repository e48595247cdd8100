// Package metrics exposes controller activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/hatch-controller/internal/event"
)

const namespace = "hatch"

// Metrics holds the controller's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	rejected        prometheus.Counter
	measurements    prometheus.Counter
	classifications *prometheus.CounterVec
	ramps           *prometheus.CounterVec
	alerts          prometheus.Counter

	distance      prometheus.Gauge
	average       prometheus.Gauge
	tripSample    prometheus.Gauge
	mqttConnected prometheus.Gauge
	eventsLost    prometheus.Gauge
}

// New creates and registers the collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Command bytes run, by command.",
		}, []string{"command"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Command bytes dropped because the controller was busy.",
		}),
		measurements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_total",
			Help:      "Valid distance measurements captured during sessions.",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Averaged sessions, by result.",
		}, []string{"class"}),
		ramps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ramps_total",
			Help:      "Completed servo ramps, by direction.",
		}, []string{"ramp"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tripwire_alerts_total",
			Help:      "Trip-wire alerts sent to the host.",
		}),
		distance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_distance_micrometres",
			Help:      "Most recent valid distance measurement.",
		}),
		average: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_average",
			Help:      "Most recent classified average, in the configured unit.",
		}),
		tripSample: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tripwire_last_sample",
			Help:      "Most recent trip-wire ADC sample.",
		}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 if the MQTT broker connection is up.",
		}),
		eventsLost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_lost",
			Help:      "Events dropped because the event queue was full.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands, m.rejected, m.measurements, m.classifications, m.ramps, m.alerts,
		m.distance, m.average, m.tripSample, m.mqttConnected, m.eventsLost,
	)
	return m
}

// Observe updates the collectors for one controller event.
func (m *Metrics) Observe(ev event.Event) {
	switch ev.Type {
	case event.TypeCommand:
		m.commands.WithLabelValues(ev.Command).Inc()
	case event.TypeRejected:
		m.rejected.Inc()
	case event.TypeMeasurement:
		m.measurements.Inc()
		m.distance.Set(float64(ev.DistanceUM))
	case event.TypeClassified:
		m.classifications.WithLabelValues(ev.Class).Inc()
		m.average.Set(float64(ev.Average))
	case event.TypeRamp:
		m.ramps.WithLabelValues(ev.Ramp).Inc()
	case event.TypeAlert:
		m.alerts.Inc()
		m.tripSample.Set(float64(ev.Sample))
	}
}

// SetTripSample records the latest trip-wire sample, alert or not.
func (m *Metrics) SetTripSample(v uint16) {
	m.tripSample.Set(float64(v))
}

// SetMQTTConnected records the broker connection state.
func (m *Metrics) SetMQTTConnected(connected bool) {
	if connected {
		m.mqttConnected.Set(1)
	} else {
		m.mqttConnected.Set(0)
	}
}

// SetEventsLost records the event queue drop count.
func (m *Metrics) SetEventsLost(n uint64) {
	m.eventsLost.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}
