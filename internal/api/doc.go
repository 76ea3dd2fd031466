// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

/*
Package api provides the HTTP surface of the Wayfarer recommendation
engine, routed with chi.

Endpoints:

	GET  /api/v1/recommendations/{userID}        personalized recommendations
	GET  /api/v1/experiences/{itemID}/similar    factor-space similar items
	POST /api/v1/interactions                    record an interaction event
	POST /api/v1/train                           trigger an async retrain
	GET  /api/v1/status                          model version and serving metrics
	GET  /healthz/live                           process liveness
	GET  /healthz/ready                          serving readiness (model or fallback live)
	GET  /metrics                                Prometheus metrics

All API responses share a common JSON envelope with a status field,
payload, and error details on failure.
*/
package api
