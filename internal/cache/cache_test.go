// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package cache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory(time.Minute)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	m.Set(ctx, "k1", []byte("payload"), 0)
	got, ok := m.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Errorf("got %q, want %q", got, "payload")
	}

	if _, ok := m.Get(ctx, "absent"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(time.Minute)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	m.Set(ctx, "short", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := m.Get(ctx, "short"); ok {
		t.Error("expected expired entry to miss")
	}

	stats := m.Stats()
	if stats.Evictions == 0 {
		t.Error("lazy eviction not recorded")
	}
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory(time.Minute)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), 0)
	m.Delete(ctx, "k")
	if _, ok := m.Get(ctx, "k"); ok {
		t.Error("deleted key still present")
	}

	// Deleting an absent key is a no-op.
	m.Delete(ctx, "absent")
}

func TestMemory_DeletePrefix(t *testing.T) {
	m := NewMemory(time.Minute)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	m.Set(ctx, "recommendations:u1:10", []byte("a"), 0)
	m.Set(ctx, "recommendations:u1:20", []byte("b"), 0)
	m.Set(ctx, "recommendations:u2:10", []byte("c"), 0)

	m.DeletePrefix(ctx, "recommendations:u1:")

	if _, ok := m.Get(ctx, "recommendations:u1:10"); ok {
		t.Error("prefixed key survived invalidation")
	}
	if _, ok := m.Get(ctx, "recommendations:u1:20"); ok {
		t.Error("prefixed key survived invalidation")
	}
	if _, ok := m.Get(ctx, "recommendations:u2:10"); !ok {
		t.Error("unrelated key was removed")
	}
}

func TestMemory_Stats(t *testing.T) {
	m := NewMemory(time.Minute)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), 0)
	m.Get(ctx, "k")
	m.Get(ctx, "k")
	m.Get(ctx, "nope")

	stats := m.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 2 hits / 1 miss", stats)
	}
	wantRate := 2.0 / 3.0 * 100.0
	if got := stats.HitRate(); got < wantRate-0.01 || got > wantRate+0.01 {
		t.Errorf("HitRate() = %v, want %v", got, wantRate)
	}
}

func TestMemory_Sweep(t *testing.T) {
	m := NewMemory(time.Minute)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	m.Set(ctx, "a", []byte("v"), time.Millisecond)
	m.Set(ctx, "b", []byte("v"), time.Hour)
	time.Sleep(5 * time.Millisecond)

	m.sweep()

	stats := m.Stats()
	if stats.Keys != 1 {
		t.Errorf("after sweep keys = %d, want 1", stats.Keys)
	}
	if stats.LastSweep.IsZero() {
		t.Error("sweep timestamp not recorded")
	}
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory(time.Minute)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				m.Set(ctx, "shared", []byte("v"), 0)
				m.Get(ctx, "shared")
				m.Delete(ctx, "shared")
				m.DeletePrefix(ctx, "sha")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

func TestNewStore_DefaultsToMemory(t *testing.T) {
	s, err := NewStore(Config{Backend: BackendMemory, TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	defer func() { _ = s.Close() }()
	if _, ok := s.(*Memory); !ok {
		t.Errorf("expected *Memory, got %T", s)
	}
}
