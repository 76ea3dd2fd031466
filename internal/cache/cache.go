// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

const sweepInterval = 5 * time.Minute

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process TTL cache. A background sweeper reclaims expired
// entries; reads also evict lazily, so a stale entry is never returned.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	stop       chan struct{}
	stopOnce   sync.Once

	statsMu sync.Mutex
	stats   Stats
}

// NewMemory creates a memory cache with the given default TTL and starts
// its background sweeper.
func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		entries:    make(map[string]entry),
		defaultTTL: ttl,
		stop:       make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		m.recordMiss()
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		m.recordMiss()
		m.recordEvictions(1)
		return nil, false
	}
	m.recordHit()
	return e.data, true
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	m.entries[key] = entry{data: value, expiresAt: time.Now().Add(ttl)}
	keys := int64(len(m.entries))
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Keys = keys
	m.statsMu.Unlock()
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	_, existed := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()
	if existed {
		m.recordEvictions(1)
	}
}

// DeletePrefix implements Store.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) {
	m.mu.Lock()
	evicted := int64(0)
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			evicted++
		}
	}
	keys := int64(len(m.entries))
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Evictions += evicted
	m.stats.Keys = keys
	m.statsMu.Unlock()
}

// Stats implements Store.
func (m *Memory) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// Close implements Store and stops the sweeper.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) sweep() {
	now := time.Now()
	m.mu.Lock()
	evicted := int64(0)
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
			evicted++
		}
	}
	keys := int64(len(m.entries))
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Evictions += evicted
	m.stats.Keys = keys
	m.stats.LastSweep = now
	m.statsMu.Unlock()
}

func (m *Memory) recordHit() {
	m.statsMu.Lock()
	m.stats.Hits++
	m.statsMu.Unlock()
}

func (m *Memory) recordMiss() {
	m.statsMu.Lock()
	m.stats.Misses++
	m.statsMu.Unlock()
}

func (m *Memory) recordEvictions(n int64) {
	m.statsMu.Lock()
	m.stats.Evictions += n
	m.statsMu.Unlock()
}

var _ Store = (*Memory)(nil)
