// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package recommend

import (
	"sync/atomic"
	"time"

	"github.com/wayfarerhq/wayfarer/internal/cache"
)

// serviceMetrics holds the hot-path counters. Plain atomics keep the serve
// path allocation-free; the HTTP layer exports snapshots to Prometheus.
type serviceMetrics struct {
	requests       atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	modelServed    atomic.Int64
	fallbackServed atomic.Int64
	errors         atomic.Int64
}

// MetricsSnapshot is a point-in-time view of service counters, including
// the underlying cache store's own statistics.
type MetricsSnapshot struct {
	Requests       int64       `json:"requests"`
	CacheHits      int64       `json:"cache_hits"`
	CacheMisses    int64       `json:"cache_misses"`
	ModelServed    int64       `json:"model_served"`
	FallbackServed int64       `json:"fallback_served"`
	Errors         int64       `json:"errors"`
	CacheStats     cache.Stats `json:"cache_stats"`
	Timestamp      time.Time   `json:"timestamp"`
}

func (m *serviceMetrics) snapshot(cacheStats cache.Stats) MetricsSnapshot {
	return MetricsSnapshot{
		Requests:       m.requests.Load(),
		CacheHits:      m.cacheHits.Load(),
		CacheMisses:    m.cacheMisses.Load(),
		ModelServed:    m.modelServed.Load(),
		FallbackServed: m.fallbackServed.Load(),
		Errors:         m.errors.Load(),
		CacheStats:     cacheStats,
		Timestamp:      time.Now().UTC(),
	}
}
