package folder

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric label values for results.
const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultSkipped = "skipped"
	resultNoop    = "noop"
)

// Metrics records folder operation counters and latencies.
// A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	steps      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the folder collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbusdir",
			Subsystem: "folder",
			Name:      "operations_total",
			Help:      "Folder operations by operation and result.",
		}, []string{"op", "result"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbusdir",
			Subsystem: "folder",
			Name:      "steps_total",
			Help:      "Per-entry primitive calls by action and result.",
		}, []string{"action", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nimbusdir",
			Subsystem: "folder",
			Name:      "operation_duration_seconds",
			Help:      "Folder operation latency, listing included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.operations, m.steps, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register folder metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeOperation(r *Report) {
	if m == nil {
		return
	}
	result := resultSuccess
	switch {
	case r.Noop:
		result = resultNoop
	case !r.Succeeded():
		result = resultFailure
	}
	m.operations.WithLabelValues(r.Op, result).Inc()
	m.duration.WithLabelValues(r.Op).Observe(r.Duration.Seconds())
}

func (m *Metrics) observeStep(s Step) {
	if m == nil {
		return
	}
	result := resultSuccess
	switch {
	case s.Skipped:
		result = resultSkipped
	case !s.Outcome.IsSuccess():
		result = resultFailure
	}
	m.steps.WithLabelValues(string(s.Action), result).Inc()
}
