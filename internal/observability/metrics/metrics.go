package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the intake pipeline.
type IntakeMetrics struct {
	messagesTotal    *prometheus.CounterVec
	extractionTotal  *prometheus.CounterVec
	summaryRefreshes prometheus.Counter
	saveFailures     prometheus.Counter
	slotSearch       *prometheus.HistogramVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vidaplena",
			Subsystem: "intake",
			Name:      "messages_total",
			Help:      "Inbound messages processed, by resulting stage",
		}, []string{"stage"}),
		extractionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vidaplena",
			Subsystem: "intake",
			Name:      "extraction_total",
			Help:      "Signal extractions, by source path",
		}, []string{"source"}),
		summaryRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vidaplena",
			Subsystem: "intake",
			Name:      "summary_refresh_total",
			Help:      "History summaries recomputed",
		}),
		saveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vidaplena",
			Subsystem: "intake",
			Name:      "state_save_failures_total",
			Help:      "Lead state persistence failures (reply still returned)",
		}),
		slotSearch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vidaplena",
			Subsystem: "intake",
			Name:      "slot_search_seconds",
			Help:      "Latency of slot search calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.extractionTotal, m.summaryRefreshes, m.saveFailures, m.slotSearch)
	return m
}

func (m *IntakeMetrics) ObserveMessage(stage string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(stage).Inc()
}

func (m *IntakeMetrics) ObserveExtraction(source string) {
	if m == nil {
		return
	}
	m.extractionTotal.WithLabelValues(source).Inc()
}

func (m *IntakeMetrics) ObserveSummaryRefresh() {
	if m == nil {
		return
	}
	m.summaryRefreshes.Inc()
}

func (m *IntakeMetrics) ObserveSaveFailure() {
	if m == nil {
		return
	}
	m.saveFailures.Inc()
}

func (m *IntakeMetrics) ObserveSlotSearch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.slotSearch.WithLabelValues(outcome).Observe(seconds)
}
