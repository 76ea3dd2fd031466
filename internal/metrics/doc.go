// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

/*
Package metrics provides Prometheus metrics collection for observability.

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8680/metrics

# Available Metrics

HTTP:
  - api_requests_total: counter, labels method/endpoint/status_code
  - api_request_duration_seconds: histogram, labels method/endpoint
  - api_active_requests: gauge

Serving:
  - recommendations_served_total: counter, label source (model|fallback|cache)
  - recommendation_cache_hits_total / recommendation_cache_misses_total: counters
  - interactions_recorded_total: counter, label type

Training:
  - training_runs_total: counter, labels algorithm/outcome
  - training_duration_seconds: histogram
  - training_table_rows: gauge
  - model_version: gauge
  - model_trained_timestamp_seconds: gauge

Evaluation:
  - eval_ranking_metric: gauge, labels metric/k

Example PromQL:

	# p95 API latency
	histogram_quantile(0.95, rate(api_request_duration_seconds_bucket[5m]))

	# cache hit rate
	rate(recommendation_cache_hits_total[5m]) /
	  (rate(recommendation_cache_hits_total[5m]) + rate(recommendation_cache_misses_total[5m]))

All recording functions are safe for concurrent use. Endpoint labels use the
route pattern rather than the raw URL to keep cardinality bounded.
*/
package metrics
