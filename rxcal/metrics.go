package rxcal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxcal_sessions_total",
			Help: "Total number of filter calibration sessions by status",
		},
		[]string{"channel", "status"},
	)

	sessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rxcal_session_duration_seconds",
			Help:    "Duration of filter calibration sessions",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	searchSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxcal_search_samples_total",
			Help: "Total number of RSSI samples taken by the trim search",
		},
		[]string{"field"},
	)

	searchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rxcal_search_outcomes_total",
			Help: "Trim search results by field and outcome",
		},
		[]string{"field", "outcome"},
	)

	rcompRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rxcal_rcomp_retries_total",
			Help: "Total number of resistor compensation retries",
		},
	)

	trimCode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rxcal_trim_code",
			Help: "Last applied trim code per channel and field",
		},
		[]string{"channel", "field"},
	)
)
