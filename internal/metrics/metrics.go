// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Recommendation Serving Metrics
	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Total recommendation responses served",
		},
		[]string{"source"}, // "model", "fallback", "cache"
	)

	RecommendationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_cache_hits_total",
			Help: "Total recommendation cache hits",
		},
	)

	RecommendationCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_cache_misses_total",
			Help: "Total recommendation cache misses",
		},
	)

	InteractionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interactions_recorded_total",
			Help: "Total interaction events accepted via the API",
		},
		[]string{"type"},
	)

	// Training Metrics
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total training runs by outcome",
		},
		[]string{"algorithm", "outcome"}, // outcome: "success", "insufficient_data", "error"
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Duration of training runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	TrainingTableRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "training_table_rows",
			Help: "Rating rows in the most recent training table",
		},
	)

	ModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "model_version",
			Help: "Version counter of the currently served model",
		},
	)

	ModelTrainedTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "model_trained_timestamp_seconds",
			Help: "Unix timestamp of the last successful training run",
		},
	)

	// Offline Evaluation Metrics
	EvalRankingMetric = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eval_ranking_metric",
			Help: "Latest offline ranking evaluation results",
		},
		[]string{"metric", "k"}, // metric: "precision", "recall", "ndcg", "hit_rate"
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordRecommendation records a served recommendation response by source.
func RecordRecommendation(source string) {
	RecommendationsServed.WithLabelValues(source).Inc()
}

// RecordCacheLookup records a recommendation cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		RecommendationCacheHits.Inc()
	} else {
		RecommendationCacheMisses.Inc()
	}
}

// RecordInteraction counts an accepted interaction event.
func RecordInteraction(interactionType string) {
	InteractionsRecorded.WithLabelValues(interactionType).Inc()
}

// RecordTrainingRun records the outcome of a training run.
func RecordTrainingRun(algorithm, outcome string, duration time.Duration) {
	TrainingRuns.WithLabelValues(algorithm, outcome).Inc()
	if outcome == "success" {
		TrainingDuration.Observe(duration.Seconds())
		ModelTrainedTimestamp.Set(float64(time.Now().Unix()))
	}
}

// RecordModelSwap updates the served model version gauge.
func RecordModelSwap(version int, tableRows int) {
	ModelVersion.Set(float64(version))
	TrainingTableRows.Set(float64(tableRows))
}

// RecordEvalMetric publishes one offline ranking evaluation result.
func RecordEvalMetric(metric string, k int, value float64) {
	EvalRankingMetric.WithLabelValues(metric, strconv.Itoa(k)).Set(value)
}
