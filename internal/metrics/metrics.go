// Package metrics exposes scheduler and episode activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
	"github.com/ayusman/emberguard/internal/trigger"
)

const namespace = "emberguard"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	GasLevel        prometheus.Gauge
	Temperature     prometheus.Gauge
	Samples         prometheus.Counter
	SensorErrors    *prometheus.CounterVec
	SinkErrors      *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	Episodes        *prometheus.CounterVec
	EpisodeFailures prometheus.Counter
	EpisodeDuration prometheus.Histogram
	FireDetected    prometheus.Counter
	Suppressions    prometheus.Counter
}

var _ trigger.Metrics = (*Metrics)(nil)

// New creates the collectors and registers them with Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		GasLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "gas_level",
			Help:      "Latest MQ-2 gas level (0-1000 scale)",
		}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "temperature_celsius",
			Help:      "Latest ambient temperature",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "samples_total",
			Help:      "Successful sensor samples",
		}),
		SensorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "errors_total",
			Help:      "Failed sensor samples by kind",
		}, []string{"kind"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Sample sink failures by sink",
		}, []string{"sink"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "decisions_total",
			Help:      "Scheduler decisions by action",
		}, []string{"action"}),
		Episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "total",
			Help:      "Response episodes by trigger",
		}, []string{"trigger"}),
		EpisodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "failures_total",
			Help:      "Episodes that ended with an error",
		}),
		EpisodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "duration_seconds",
			Help:      "Episode wall time",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		FireDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "fire_detected_total",
			Help:      "Episodes whose scan found a hazard",
		}),
		Suppressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "episode",
			Name:      "suppressions_total",
			Help:      "Relay activations while centered",
		}),
	}

	m.registry.MustRegister(
		m.GasLevel, m.Temperature, m.Samples, m.SensorErrors, m.SinkErrors,
		m.Decisions, m.Episodes, m.EpisodeFailures, m.EpisodeDuration,
		m.FireDetected, m.Suppressions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSample(s sensor.Sample) {
	m.Samples.Inc()
	m.GasLevel.Set(s.GasLevel)
	m.Temperature.Set(s.Temperature)
}

func (m *Metrics) SensorError(transient bool) {
	kind := "fatal"
	if transient {
		kind = "transient"
	}
	m.SensorErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SinkError(sink string) {
	m.SinkErrors.WithLabelValues(sink).Inc()
}

func (m *Metrics) ObserveDecision(a trigger.Action) {
	m.Decisions.WithLabelValues(a.String()).Inc()
}

// ObserveEpisode records one episode. A nil result only counts the failure.
func (m *Metrics) ObserveEpisode(r *response.EpisodeResult, err error) {
	if err != nil {
		m.EpisodeFailures.Inc()
	}
	if r == nil {
		return
	}
	m.Episodes.WithLabelValues(string(r.Trigger)).Inc()
	if !r.FinishedAt.IsZero() {
		m.EpisodeDuration.Observe(r.Duration().Seconds())
	}
	if r.FireDetected {
		m.FireDetected.Inc()
	}
	m.Suppressions.Add(float64(r.Centered))
}
