package ledger

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus counters for spend.
type Metrics struct {
	CostUSD *prometheus.CounterVec
	Tokens  *prometheus.CounterVec
}

// NewMetrics creates and registers the ledger metrics once per process.
//
// Metrics:
//   - squadron_cost_usd_total{phase}
//   - squadron_tokens_total{phase,direction}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			CostUSD: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "squadron_cost_usd_total",
					Help: "Total model spend in US dollars",
				},
				[]string{"phase"},
			),
			Tokens: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "squadron_tokens_total",
					Help: "Total tokens consumed",
				},
				[]string{"phase", "direction"}, // "input" or "output"
			),
		}
	})
	return globalMetrics
}
