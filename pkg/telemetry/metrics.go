package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the provisioning engine.
type Metrics struct {
	config MetricsConfig

	// Task metrics
	tasksDispatched *prometheus.CounterVec
	taskOutcomes    *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec

	// Assembly metrics
	attributesAssembled *prometheus.CounterVec
	resolutionErrors    *prometheus.CounterVec

	// Orchestration metrics
	provisioningCalls *prometheus.CounterVec
	inFlightTasks     prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "idforge"
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		tasksDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "propagation_tasks_dispatched_total",
				Help:      "Total number of propagation tasks dispatched to connectors",
			},
			[]string{"resource", "operation"},
		),
		taskOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "propagation_task_outcomes_total",
				Help:      "Total number of propagation task outcomes by status",
			},
			[]string{"resource", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "propagation_task_duration_seconds",
				Help:      "Duration of propagation task execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		attributesAssembled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attributes_assembled_total",
				Help:      "Total number of native attribute sets assembled",
			},
			[]string{"resource"},
		),
		resolutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mapping_resolution_errors_total",
				Help:      "Total number of per-item mapping resolution errors",
			},
			[]string{"resource"},
		),
		provisioningCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provisioning_calls_total",
				Help:      "Total number of provisioning orchestrator invocations",
			},
			[]string{"operation"},
		),
		inFlightTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "propagation_tasks_in_flight",
				Help:      "Number of propagation tasks currently executing",
			},
		),
	}

	registry.MustRegister(
		m.tasksDispatched,
		m.taskOutcomes,
		m.taskDuration,
		m.attributesAssembled,
		m.resolutionErrors,
		m.provisioningCalls,
		m.inFlightTasks,
	)

	return m, nil
}

// Handler returns an HTTP handler exposing the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TaskDispatched records a task dispatch.
func (m *Metrics) TaskDispatched(resource, operation string) {
	if m.registry == nil {
		return
	}
	m.tasksDispatched.WithLabelValues(resource, operation).Inc()
	m.inFlightTasks.Inc()
}

// TaskCompleted records a task outcome and its duration.
func (m *Metrics) TaskCompleted(resource, status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.taskOutcomes.WithLabelValues(resource, status).Inc()
	m.taskDuration.WithLabelValues(resource).Observe(duration.Seconds())
	m.inFlightTasks.Dec()
}

// AttributesAssembled records a completed attribute assembly.
func (m *Metrics) AttributesAssembled(resource string) {
	if m.registry == nil {
		return
	}
	m.attributesAssembled.WithLabelValues(resource).Inc()
}

// ResolutionError records a per-item mapping resolution failure.
func (m *Metrics) ResolutionError(resource string) {
	if m.registry == nil {
		return
	}
	m.resolutionErrors.WithLabelValues(resource).Inc()
}

// ProvisioningCall records an orchestrator invocation.
func (m *Metrics) ProvisioningCall(operation string) {
	if m.registry == nil {
		return
	}
	m.provisioningCalls.WithLabelValues(operation).Inc()
}
