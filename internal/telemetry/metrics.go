// Package telemetry wires Amelia's operational observability: Prometheus
// metrics for the scheduler/driver, and an OpenTelemetry span sink fed off
// the same internal/events.Bus every other subscriber rides.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the operational counters/gauges/histograms spec.md's
// ambient observability stack needs, grounded on the teacher's
// graph/metrics.go PrometheusMetrics (same namespacing convention, same
// metric shapes) but relabeled from a single in-process graph run to
// Amelia's multi-workflow/multi-agent domain: run_id becomes workflow_id,
// node_id becomes role.
type Metrics struct {
	inflightTasks *prometheus.GaugeVec
	queueDepth    prometheus.Gauge

	taskLatency *prometheus.HistogramVec
	retries     *prometheus.CounterVec

	mergeConflicts      *prometheus.CounterVec
	sandboxFailures     *prometheus.CounterVec
	breakerStateChanges *prometheus.CounterVec
	workflowCost        *prometheus.GaugeVec
}

// NewMetrics registers every metric against registry. A nil registry uses
// prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		inflightTasks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "amelia",
			Name:      "inflight_tasks",
			Help:      "Current number of tasks executing concurrently, per workflow.",
		}, []string{"workflow_id"}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "amelia",
			Name:      "queue_depth",
			Help:      "Number of ready-but-unscheduled tasks across all active workflows.",
		}),

		taskLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "amelia",
			Name:      "task_latency_ms",
			Help:      "Task execution duration in milliseconds.",
			Buckets:   []float64{50, 100, 500, 1000, 5000, 15000, 30000, 60000, 300000},
		}, []string{"workflow_id", "role", "status"}),

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amelia",
			Name:      "retries_total",
			Help:      "Cumulative retry attempts across all agent driver calls.",
		}, []string{"workflow_id", "role", "reason"}),

		mergeConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amelia",
			Name:      "merge_conflicts_total",
			Help:      "Reducer single-writer conflicts detected during concurrent task execution.",
		}, []string{"workflow_id"}),

		sandboxFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amelia",
			Name:      "sandbox_failures_total",
			Help:      "Sandbox container startup/exec/teardown failures.",
		}, []string{"workflow_id", "op"}),

		breakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "amelia",
			Name:      "breaker_state_changes_total",
			Help:      "Circuit breaker state transitions per provider.",
		}, []string{"provider", "state"}),

		workflowCost: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "amelia",
			Name:      "workflow_cost_usd",
			Help:      "Estimated cumulative USD spend on LLM API calls, per workflow.",
		}, []string{"workflow_id"}),
	}
}

func (m *Metrics) RecordTaskLatency(workflowID, role string, latency time.Duration, status string) {
	m.taskLatency.WithLabelValues(workflowID, role, status).Observe(float64(latency.Milliseconds()))
}

func (m *Metrics) IncrementRetries(workflowID, role, reason string) {
	m.retries.WithLabelValues(workflowID, role, reason).Inc()
}

func (m *Metrics) SetInflightTasks(workflowID string, count int) {
	m.inflightTasks.WithLabelValues(workflowID).Set(float64(count))
}

func (m *Metrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) IncrementMergeConflicts(workflowID string) {
	m.mergeConflicts.WithLabelValues(workflowID).Inc()
}

func (m *Metrics) IncrementSandboxFailures(workflowID, op string) {
	m.sandboxFailures.WithLabelValues(workflowID, op).Inc()
}

func (m *Metrics) RecordBreakerStateChange(provider, state string) {
	m.breakerStateChanges.WithLabelValues(provider, state).Inc()
}

func (m *Metrics) SetWorkflowCost(workflowID string, usd float64) {
	m.workflowCost.WithLabelValues(workflowID).Set(usd)
}
