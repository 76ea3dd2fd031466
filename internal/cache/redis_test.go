// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package cache

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"
)

// redisStore connects to the server named by WAYFARER_TEST_REDIS_ADDR, or
// skips the test when the variable is unset.
func redisStore(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("WAYFARER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WAYFARER_TEST_REDIS_ADDR not set")
	}
	r, err := NewRedis(Config{
		Backend:   BackendRedis,
		TTL:       time.Minute,
		RedisAddr: addr,
		KeyPrefix: "wayfarer-test",
	})
	if err != nil {
		t.Fatalf("NewRedis() error: %v", err)
	}
	t.Cleanup(func() {
		r.DeletePrefix(context.Background(), "")
		_ = r.Close()
	})
	return r
}

func TestRedis_SetGetDelete(t *testing.T) {
	r := redisStore(t)
	ctx := context.Background()

	r.Set(ctx, "k1", []byte("payload"), 0)
	got, ok := r.Get(ctx, "k1")
	if !ok || !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("Get() = (%q, %v), want (payload, true)", got, ok)
	}

	r.Delete(ctx, "k1")
	if _, ok := r.Get(ctx, "k1"); ok {
		t.Error("deleted key still present")
	}
}

func TestRedis_DeletePrefix(t *testing.T) {
	r := redisStore(t)
	ctx := context.Background()

	r.Set(ctx, "recommendations:u1:10", []byte("a"), 0)
	r.Set(ctx, "recommendations:u1:20", []byte("b"), 0)
	r.Set(ctx, "recommendations:u2:10", []byte("c"), 0)

	r.DeletePrefix(ctx, "recommendations:u1:")

	if _, ok := r.Get(ctx, "recommendations:u1:10"); ok {
		t.Error("prefixed key survived invalidation")
	}
	if _, ok := r.Get(ctx, "recommendations:u2:10"); !ok {
		t.Error("unrelated key was removed")
	}
}

func TestRedis_TTLExpiry(t *testing.T) {
	r := redisStore(t)
	ctx := context.Background()

	r.Set(ctx, "short", []byte("v"), 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	if _, ok := r.Get(ctx, "short"); ok {
		t.Error("expired key still present")
	}
}
