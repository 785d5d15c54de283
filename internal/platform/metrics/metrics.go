// Package metrics exposes Prometheus instruments for the traceability service.
package metrics

import (
	"context"
	"time"

	"agritrace/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements core.DomainMetricsRecorder on Prometheus collectors.
type Recorder struct {
	duration   *prometheus.HistogramVec
	operations *prometheus.CounterVec
	violations *prometheus.CounterVec
	assigned   prometheus.Counter
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agritrace_operation_duration_seconds",
			Help:    "Duration of traceability service operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agritrace_operation_total",
			Help: "Traceability service operations by outcome",
		}, []string{"operation", "status"}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agritrace_violations_total",
			Help: "Validation failures by rule",
		}, []string{"rule"}),
		assigned: factory.NewCounter(prometheus.CounterOpts{
			Name: "agritrace_trace_codes_assigned_total",
			Help: "Traceability codes assigned on delivery",
		}),
	}
}

// Observe records one operation outcome.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
	r.operations.WithLabelValues(operation, status).Inc()
}

// ViolationObserved counts a failure of rule.
func (r *Recorder) ViolationObserved(_ context.Context, rule domain.RuleID) {
	r.violations.WithLabelValues(string(rule)).Inc()
}

// TraceCodeAssigned counts one assignment.
func (r *Recorder) TraceCodeAssigned(context.Context) {
	r.assigned.Inc()
}
