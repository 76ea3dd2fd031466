// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

// Package cache provides the response cache behind the recommendation API.
package cache

import (
	"context"
	"time"
)

// Store is the contract shared by the in-memory and Redis backends. Values
// are opaque byte payloads; callers serialize before writing.
//
// Implementations never propagate backend failures as errors to the read
// path: a broken backend behaves like a miss, so the service degrades to
// recomputing instead of failing requests.
type Store interface {
	// Get retrieves a payload. The second return is false on miss,
	// expiry, or backend failure.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a payload with a TTL. Best effort.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// Delete removes one key. No-op when absent.
	Delete(ctx context.Context, key string)

	// DeletePrefix removes every key starting with prefix. Used for
	// per-user invalidation and full flushes after a retrain.
	DeletePrefix(ctx context.Context, prefix string)

	// Stats returns a snapshot of hit and miss counters.
	Stats() Stats

	// Close releases backend resources.
	Close() error
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Evictions int64     `json:"evictions"`
	Keys      int64     `json:"keys"`
	LastSweep time.Time `json:"last_sweep,omitempty"`
}

// HitRate returns the hit percentage for the snapshot.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100.0
}

// Backend selects the cache implementation.
type Backend string

const (
	// BackendMemory is the in-process TTL map, the default.
	BackendMemory Backend = "memory"

	// BackendRedis is a shared Redis cache for multi-replica deploys.
	BackendRedis Backend = "redis"
)

// Config holds cache construction settings.
type Config struct {
	// Backend selects memory or redis.
	Backend Backend `koanf:"backend" json:"backend" validate:"oneof=memory redis"`

	// TTL is the default entry lifetime.
	TTL time.Duration `koanf:"ttl" json:"ttl" validate:"gt=0"`

	// RedisAddr is the host:port of the Redis server (redis backend).
	RedisAddr string `koanf:"redis_addr" json:"redis_addr"`

	// RedisPassword authenticates to Redis when set.
	RedisPassword string `koanf:"redis_password" json:"redis_password"`

	// RedisDB selects the Redis logical database.
	RedisDB int `koanf:"redis_db" json:"redis_db" validate:"gte=0"`

	// KeyPrefix namespaces all keys, so a flush cannot touch other
	// tenants of a shared Redis.
	KeyPrefix string `koanf:"key_prefix" json:"key_prefix"`
}

// DefaultConfig returns the standard cache settings.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendMemory,
		TTL:       time.Hour,
		KeyPrefix: "wayfarer",
	}
}

// NewStore builds the configured backend.
func NewStore(cfg Config) (Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	switch cfg.Backend {
	case BackendRedis:
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.TTL), nil
	}
}
