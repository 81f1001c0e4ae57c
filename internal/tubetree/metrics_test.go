package tubetree

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, result string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := conversionsTotal.WithLabelValues(result).Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestConversionMetricsRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	found := make(map[string]*dto.MetricFamily)
	for _, fam := range families {
		found[fam.GetName()] = fam
	}
	if _, ok := found["tubetree_conversion_duration_seconds"]; !ok {
		t.Error("conversion duration histogram not registered")
	}
	fam, ok := found["tubetree_conversions_total"]
	if !ok {
		t.Fatal("conversions counter not registered")
	}
	if len(fam.GetMetric()) < 7 {
		t.Errorf("expected at least 7 series, got %d", len(fam.GetMetric()))
	}
}

func TestRejectedConversionCounted(t *testing.T) {
	l := NewLogic(nil, nil, t.TempDir(), discardTestLogger())
	before := counterValue(t, resultInvalid)

	_ = l.Apply(context.Background(), nil, nil, Params{})

	if got := counterValue(t, resultInvalid); got != before+1 {
		t.Errorf("invalid count = %v, want %v", got, before+1)
	}
}
