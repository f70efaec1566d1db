package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SavingsMetrics records engine activity for the ops endpoint.
type SavingsMetrics struct {
	Executions      *prometheus.CounterVec
	Skips           *prometheus.CounterVec
	Withdrawals     *prometheus.CounterVec
	PenaltyFailures prometheus.Counter
	BatchBudget     prometheus.Histogram
	BatchItems      prometheus.Histogram
}

var (
	savingsOnce     sync.Once
	savingsRegistry *SavingsMetrics
)

// Savings returns the lazily-initialised metrics registry used by the savings
// engine. Metrics are registered against the default registry exactly once.
func Savings() *SavingsMetrics {
	savingsOnce.Do(func() {
		savingsRegistry = &SavingsMetrics{
			Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "spendsave",
				Subsystem: "engine",
				Name:      "executions_total",
				Help:      "Total per-asset settlement attempts segmented by outcome.",
			}, []string{"outcome"}),
			Skips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "spendsave",
				Subsystem: "engine",
				Name:      "skips_total",
				Help:      "Total soft skips segmented by reason.",
			}, []string{"reason"}),
			Withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "spendsave",
				Subsystem: "engine",
				Name:      "withdrawals_total",
				Help:      "Total withdrawal attempts segmented by outcome.",
			}, []string{"outcome"}),
			PenaltyFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "spendsave",
				Subsystem: "engine",
				Name:      "penalty_routing_failures_total",
				Help:      "Tolerated failures routing withdrawal penalties to the treasury.",
			}),
			BatchBudget: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "spendsave",
				Subsystem: "engine",
				Name:      "batch_budget_consumed",
				Help:      "Execution budget consumed per ExecuteAll call.",
				Buckets:   prometheus.ExponentialBuckets(10_000, 2, 12),
			}),
			BatchItems: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "spendsave",
				Subsystem: "engine",
				Name:      "batch_items_processed",
				Help:      "Assets settled per ExecuteAll call.",
				Buckets:   prometheus.LinearBuckets(0, 5, 10),
			}),
		}
		prometheus.MustRegister(
			savingsRegistry.Executions,
			savingsRegistry.Skips,
			savingsRegistry.Withdrawals,
			savingsRegistry.PenaltyFailures,
			savingsRegistry.BatchBudget,
			savingsRegistry.BatchItems,
		)
	})
	return savingsRegistry
}
