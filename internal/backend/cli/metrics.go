package cli

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for run status.
const (
	statusCompleted = "completed"
	statusNonZero   = "nonzero"
	statusFailed    = "failed"
	statusCancelled = "cancelled"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubetree_cli_runs_total",
			Help: "Total number of module processes run by the command-line backend.",
		},
		[]string{"module", "status"},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tubetree_cli_run_seconds",
			Help:    "Wall-clock duration of module processes, in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tubetree_cli_active_runs",
			Help: "Number of module processes currently running.",
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(activeRuns)

	runsTotal.WithLabelValues(TubesToTree.Name, statusCompleted)
	runsTotal.WithLabelValues(TubesToTree.Name, statusNonZero)
	runsTotal.WithLabelValues(TubesToTree.Name, statusFailed)
	runsTotal.WithLabelValues(TubesToTree.Name, statusCancelled)
}
