package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReportOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pingmap_report_outcomes_total", Help: "Report submissions by outcome.",
	}, []string{"outcome"})

	SamplesInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pingmap_samples_inserted_total", Help: "Total ping samples persisted.",
	})
	SamplesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pingmap_samples_dropped_total", Help: "Per-record validation drops by reason.",
	}, []string{"reason"})

	HeatmapRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pingmap_heatmap_requests_total", Help: "Heatmap queries by serving source.",
	}, []string{"source"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pingmap_reports_rate_limited_total", Help: "Report submissions rejected by the rate limiter.",
	})
)
