// Package metrics exposes the prometheus collectors for the curation pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_cache_ops_total",
			Help: "Cache operations by backend, op and result",
		},
		[]string{"backend", "op", "result"},
	)

	YouTubeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_youtube_calls_total",
			Help: "Data API calls by endpoint and outcome",
		},
		[]string{"call", "outcome"},
	)

	QuotaUnitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curator_youtube_quota_units_total",
			Help: "Data API quota units charged by this process",
		},
	)

	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_validator_rejections_total",
			Help: "Videos rejected by the metadata validator, by first failing rule",
		},
		[]string{"reason"},
	)

	EmbedProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_embed_probes_total",
			Help: "Embed probe verdicts by source",
		},
		[]string{"verdict", "source"},
	)

	EmbedProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "curator_embed_probe_duration_seconds",
			Help:    "Duration of network embed probes in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_pipeline_runs_total",
			Help: "Pipeline runs by outcome and fallback reason",
		},
		[]string{"outcome", "reason"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "curator_pipeline_duration_seconds",
			Help:    "End to end pipeline duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curator_http_requests_total",
			Help: "HTTP requests served by route and status",
		},
		[]string{"route", "status"},
	)
)

// RecordProbe counts one probe verdict. Network probes also observe their duration.
func RecordProbe(verdict, source string, d time.Duration) {
	EmbedProbesTotal.WithLabelValues(verdict, source).Inc()
	if source == "network" {
		EmbedProbeDuration.Observe(d.Seconds())
	}
}

// RecordRun counts one pipeline run. reason is empty for runs that produced results.
func RecordRun(fallback bool, reason string, d time.Duration) {
	outcome := "results"
	if fallback {
		outcome = "fallback"
	}
	PipelineRunsTotal.WithLabelValues(outcome, reason).Inc()
	PipelineDuration.Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
