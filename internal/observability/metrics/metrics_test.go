package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestIntakeMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIntakeMetrics(reg)
	m.ObserveMessage("ask_therapy")
	m.ObserveExtraction("primary")
	m.ObserveExtraction("fallback")
	m.ObserveSummaryRefresh()
	m.ObserveSaveFailure()
	m.ObserveSlotSearch("ok", 0.5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) != 5 {
		t.Fatalf("expected 5 metric families, got %d", len(families))
	}
}

func TestIntakeMetricsNilSafe(t *testing.T) {
	var m *IntakeMetrics
	m.ObserveMessage("ready")
	m.ObserveExtraction("primary")
	m.ObserveSummaryRefresh()
	m.ObserveSaveFailure()
	m.ObserveSlotSearch("error", 0.1)
}
