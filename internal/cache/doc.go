// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

/*
Package cache provides the response cache behind the recommendation API.

Two backends implement the same Store interface: an in-process TTL map for
single-replica deployments, and Redis for fleets that must share
invalidation. Values are opaque byte payloads; the service serializes
responses before writing them.

Invalidation happens at two granularities. Recording or deleting an
interaction removes that user's keys via DeletePrefix, and a completed
retrain flushes the whole namespace, since every cached ranking is stale
once the model changes.

Backend failures never surface as request errors: a failed Get reads as a
miss and the service recomputes the response. Losing the cache costs
latency, not availability.
*/
package cache
