package tubetree

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for conversion results.
const (
	resultSuccess          = "success"
	resultInvalid          = "invalid"
	resultCreateRecord     = "create_record_error"
	resultSaveInput        = "save_input_error"
	resultExecute          = "execute_error"
	resultConversionFailed = "conversion_failed"
	resultLoadOutput       = "load_output_error"
)

var (
	conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tubetree_conversions_total",
			Help: "Total number of tubes-to-tree conversions by result.",
		},
		[]string{"result"},
	)

	conversionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tubetree_conversion_duration_seconds",
			Help:    "Duration of tubes-to-tree conversions that reached the execution engine, in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)

func init() {
	prometheus.MustRegister(conversionsTotal)
	prometheus.MustRegister(conversionDuration)

	for _, r := range []string{
		resultSuccess, resultInvalid, resultCreateRecord, resultSaveInput,
		resultExecute, resultConversionFailed, resultLoadOutput,
	} {
		conversionsTotal.WithLabelValues(r)
	}
}
