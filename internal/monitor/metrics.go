package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for lifecycle events.
type Metrics struct {
	Events            *prometheus.CounterVec
	SpecialistResults *prometheus.CounterVec
	Iterations        *prometheus.HistogramVec
	Dropped           prometheus.Counter
}

// NewMetrics creates and registers the monitor metrics once per process.
//
// Metrics:
//   - squadron_events_total{type}
//   - squadron_specialist_results_total{specialist,status}
//   - squadron_specialist_iterations{specialist}
//   - squadron_events_dropped_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Events: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "squadron_events_total",
					Help: "Lifecycle events emitted",
				},
				[]string{"type"},
			),
			SpecialistResults: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "squadron_specialist_results_total",
					Help: "Settled specialists by terminal status",
				},
				[]string{"specialist", "status"},
			),
			Iterations: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "squadron_specialist_iterations",
					Help:    "Iterations used by settled specialists",
					Buckets: []float64{1, 2, 3, 5, 10, 15, 20, 50},
				},
				[]string{"specialist"},
			),
			Dropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "squadron_events_dropped_total",
					Help: "Events dropped because the subscriber fell behind",
				},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) observe(ev Event) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(string(ev.Type)).Inc()
	if ev.Type == EventSpecialistCompleted {
		m.SpecialistResults.WithLabelValues(string(ev.Specialist), ev.Status).Inc()
		m.Iterations.WithLabelValues(string(ev.Specialist)).Observe(float64(ev.Iteration))
	}
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}
