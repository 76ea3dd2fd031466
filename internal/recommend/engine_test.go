// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/cache"
)

// fakeModel serves fixed rankings for known users.
type fakeModel struct {
	name     string
	trained  bool
	rankings map[string][]Recommendation
}

func (m *fakeModel) Name() string              { return m.name }
func (m *fakeModel) IsTrained() bool           { return m.trained }
func (m *fakeModel) KnowsUser(id string) bool { _, ok := m.rankings[id]; return ok }
func (m *fakeModel) KnowsItem(id string) bool { _, ok := m.rankings["similar:"+id]; return ok }
func (m *fakeModel) Train(context.Context, []RatingRow) (TrainMetrics, error) {
	return TrainMetrics{}, nil
}
func (m *fakeModel) RecommendForUser(userID string, topK int, exclude map[string]struct{}) ([]Recommendation, error) {
	if !m.trained {
		return nil, ErrModelNotTrained
	}
	var recs []Recommendation
	for _, r := range m.rankings[userID] {
		if _, skip := exclude[r.ItemID]; skip {
			continue
		}
		recs = append(recs, r)
		if topK > 0 && len(recs) == topK {
			break
		}
	}
	return recs, nil
}
func (m *fakeModel) SimilarItems(itemID string, topK int) ([]Recommendation, error) {
	if !m.trained {
		return nil, ErrModelNotTrained
	}
	recs := m.rankings["similar:"+itemID]
	if topK > 0 && len(recs) > topK {
		recs = recs[:topK]
	}
	return recs, nil
}
func (m *fakeModel) EncodeState() ([]byte, []byte, error) { return []byte("m"), []byte("e"), nil }
func (m *fakeModel) DecodeState(_, _ []byte) error        { m.trained = true; return nil }
func (m *fakeModel) Hyperparameters() any                 { return map[string]int{"factors": 8} }

// fakeFallback returns a fixed popularity order.
type fakeFallback struct {
	trained bool
	order   []Recommendation
}

func (f *fakeFallback) IsTrained() bool    { return f.trained }
func (f *fakeFallback) Train([]RatingRow)  { f.trained = true }
func (f *fakeFallback) Recommend(topK int, exclude map[string]struct{}) []Recommendation {
	var recs []Recommendation
	for _, r := range f.order {
		if _, skip := exclude[r.ItemID]; skip {
			continue
		}
		recs = append(recs, r)
		if topK > 0 && len(recs) == topK {
			break
		}
	}
	return recs
}

func serviceFixture(t *testing.T) (*Service, *MemoryProvider, cache.Store) {
	t.Helper()
	provider := NewMemoryProvider()
	for _, id := range []string{"i1", "i2", "i3", "i4"} {
		provider.PutItem(Item{ID: id, Title: "Experience " + id})
	}
	store := cache.NewMemory(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	svc := NewService(DefaultServiceConfig(), provider, store, zerolog.Nop())
	return svc, provider, store
}

func trainedBundle() (*fakeModel, *fakeFallback) {
	model := &fakeModel{
		name:    "sgd",
		trained: true,
		rankings: map[string][]Recommendation{
			"u1": {{ItemID: "i3", Score: 4.9}, {ItemID: "i4", Score: 4.7}, {ItemID: "i1", Score: 3.0}},
		},
	}
	fallback := &fakeFallback{
		trained: true,
		order:   []Recommendation{{ItemID: "i1", Score: 1.0}, {ItemID: "i2", Score: 0.8}},
	}
	return model, fallback
}

func TestService_ModelPath(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	model, fallback := trainedBundle()
	svc.SwapModel(context.Background(), model, fallback, time.Now())

	resp, err := svc.Recommend(context.Background(), Request{UserID: "u1", TopK: 2})
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if resp.Algorithm != "sgd" {
		t.Errorf("Algorithm = %q, want sgd", resp.Algorithm)
	}
	if len(resp.Items) != 2 || resp.Items[0].Item.ID != "i3" || resp.Items[1].Item.ID != "i4" {
		t.Errorf("unexpected items: %+v", resp.Items)
	}
	if resp.Metadata.CacheHit {
		t.Error("first request must not be a cache hit")
	}
	if resp.Metadata.RequestID == "" {
		t.Error("request id not generated")
	}
}

func TestService_CacheHitOnSecondRequest(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	model, fallback := trainedBundle()
	svc.SwapModel(context.Background(), model, fallback, time.Now())

	first, err := svc.Recommend(context.Background(), Request{UserID: "u1", TopK: 2})
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	second, err := svc.Recommend(context.Background(), Request{UserID: "u1", TopK: 2})
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if !second.Metadata.CacheHit {
		t.Error("second identical request must hit the cache")
	}
	if second.Metadata.RequestID == first.Metadata.RequestID {
		t.Error("cached response must carry a fresh request id")
	}
	if len(second.Items) != len(first.Items) {
		t.Errorf("cached items differ: %d vs %d", len(second.Items), len(first.Items))
	}

	m := svc.Metrics()
	if m.CacheHits != 1 || m.CacheMisses != 1 {
		t.Errorf("metrics = %d hits / %d misses, want 1 / 1", m.CacheHits, m.CacheMisses)
	}
}

func TestService_ColdStartFallsBack(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	model, fallback := trainedBundle()
	svc.SwapModel(context.Background(), model, fallback, time.Now())

	resp, err := svc.Recommend(context.Background(), Request{UserID: "new-user", TopK: 2})
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if resp.Algorithm != "popularity" {
		t.Errorf("Algorithm = %q, want popularity", resp.Algorithm)
	}
	if len(resp.Items) != 2 || resp.Items[0].Item.ID != "i1" {
		t.Errorf("unexpected fallback items: %+v", resp.Items)
	}
}

func TestService_ThinModelOutputFallsBack(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	model, fallback := trainedBundle()
	// u1's model ranking has 3 entries; ask for 10 so 3 < 10/2.
	svc.SwapModel(context.Background(), model, fallback, time.Now())

	resp, err := svc.Recommend(context.Background(), Request{UserID: "u1", TopK: 10})
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if resp.Algorithm != "popularity" {
		t.Errorf("Algorithm = %q, want popularity for thin model output", resp.Algorithm)
	}
}

func TestService_ExcludeSeen(t *testing.T) {
	svc, provider, _ := serviceFixture(t)
	model, fallback := trainedBundle()
	svc.SwapModel(context.Background(), model, fallback, time.Now())

	provider.SeedInteractions([]Interaction{
		{UserID: "u1", ItemID: "i3", Type: InteractionBooking, Timestamp: time.Now()},
	})

	resp, err := svc.Recommend(context.Background(), Request{UserID: "u1", TopK: 2, ExcludeSeen: true})
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	for _, item := range resp.Items {
		if item.Item.ID == "i3" {
			t.Error("seen item returned despite ExcludeSeen")
		}
	}
}

func TestService_RecordInteractionInvalidatesUser(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	model, fallback := trainedBundle()
	svc.SwapModel(context.Background(), model, fallback, time.Now())

	if _, err := svc.Recommend(context.Background(), Request{UserID: "u1", TopK: 2}); err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}

	err := svc.RecordInteraction(context.Background(), Interaction{
		UserID: "u1", ItemID: "i2", Type: InteractionClick,
	})
	if err != nil {
		t.Fatalf("RecordInteraction() error: %v", err)
	}

	resp, err := svc.Recommend(context.Background(), Request{UserID: "u1", TopK: 2})
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if resp.Metadata.CacheHit {
		t.Error("cache entry survived interaction write")
	}
}

func TestService_RecordInteractionValidates(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	tests := []struct {
		name string
		in   Interaction
	}{
		{"missing user", Interaction{ItemID: "i1", Type: InteractionView}},
		{"missing item", Interaction{UserID: "u1", Type: InteractionView}},
		{"bad type", Interaction{UserID: "u1", ItemID: "i1", Type: "teleport"}},
		{"rating out of range", Interaction{UserID: "u1", ItemID: "i1", Type: InteractionRating, Rating: ratingPtr(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.RecordInteraction(context.Background(), tt.in); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestService_SwapFlushesCache(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	model, fallback := trainedBundle()
	svc.SwapModel(context.Background(), model, fallback, time.Now())

	if _, err := svc.Recommend(context.Background(), Request{UserID: "u1", TopK: 2}); err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}

	v := svc.SwapModel(context.Background(), model, fallback, time.Now())
	if v != 2 {
		t.Errorf("second swap version = %d, want 2", v)
	}

	resp, err := svc.Recommend(context.Background(), Request{UserID: "u1", TopK: 2})
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if resp.Metadata.CacheHit {
		t.Error("cache entry survived model swap")
	}
	if resp.Metadata.ModelVersion != 2 {
		t.Errorf("ModelVersion = %d, want 2", resp.Metadata.ModelVersion)
	}
}

func TestService_NoModelNoFallback(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	if svc.Ready() {
		t.Error("empty service must not report ready")
	}
	if _, err := svc.Recommend(context.Background(), Request{UserID: "u1"}); !errors.Is(err, ErrModelNotTrained) {
		t.Errorf("Recommend() error = %v, want ErrModelNotTrained", err)
	}
}

func TestService_TopKDefaultsAndCap(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	norm := svc.normalize(Request{UserID: "u1"})
	if norm.TopK != svc.cfg.DefaultTopK {
		t.Errorf("TopK defaulted to %d, want %d", norm.TopK, svc.cfg.DefaultTopK)
	}
	norm = svc.normalize(Request{UserID: "u1", TopK: 10_000})
	if norm.TopK != svc.cfg.MaxTopK {
		t.Errorf("TopK capped at %d, want %d", norm.TopK, svc.cfg.MaxTopK)
	}
}

func TestService_SimilarExperiences(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	model, fallback := trainedBundle()
	model.rankings["similar:i3"] = []Recommendation{
		{ItemID: "i4", Score: 0.95}, {ItemID: "i1", Score: 0.2},
	}
	svc.SwapModel(context.Background(), model, fallback, time.Now())

	resp, err := svc.SimilarExperiences(context.Background(), "i3", 5)
	if err != nil {
		t.Fatalf("SimilarExperiences() error: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[0].Item.ID != "i4" {
		t.Errorf("unexpected similar items: %+v", resp.Items)
	}

	cached, err := svc.SimilarExperiences(context.Background(), "i3", 5)
	if err != nil {
		t.Fatalf("SimilarExperiences() error: %v", err)
	}
	if !cached.Metadata.CacheHit {
		t.Error("second identical similar request must hit the cache")
	}
}

func TestService_SimilarUnknownItemServesPopularity(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	model, fallback := trainedBundle()
	svc.SwapModel(context.Background(), model, fallback, time.Now())

	// "i9" was never seen at training time.
	resp, err := svc.SimilarExperiences(context.Background(), "i9", 5)
	if err != nil {
		t.Fatalf("SimilarExperiences() error: %v", err)
	}
	if resp.Algorithm != "popularity" {
		t.Errorf("Algorithm = %q, want popularity", resp.Algorithm)
	}
	if len(resp.Items) != 2 || resp.Items[0].Item.ID != "i1" {
		t.Errorf("unexpected fallback items: %+v", resp.Items)
	}

	// The queried item itself never appears in the fallback ranking.
	resp, err = svc.SimilarExperiences(context.Background(), "i1", 5)
	if err != nil {
		t.Fatalf("SimilarExperiences() error: %v", err)
	}
	for _, item := range resp.Items {
		if item.Item.ID == "i1" {
			t.Error("queried item returned as its own neighbor")
		}
	}
}

func TestService_SimilarUntrainedModelServesPopularity(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	_, fallback := trainedBundle()
	svc.SwapModel(context.Background(), nil, fallback, time.Now())

	resp, err := svc.SimilarExperiences(context.Background(), "i3", 2)
	if err != nil {
		t.Fatalf("SimilarExperiences() error: %v", err)
	}
	if resp.Algorithm != "popularity" {
		t.Errorf("Algorithm = %q, want popularity", resp.Algorithm)
	}
	if len(resp.Items) == 0 {
		t.Error("fallback-only bundle returned no similar items")
	}
}

func TestService_SimilarColdStartFails(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	if _, err := svc.SimilarExperiences(context.Background(), "i3", 2); !errors.Is(err, ErrModelNotTrained) {
		t.Errorf("SimilarExperiences() error = %v, want ErrModelNotTrained", err)
	}
}

func TestService_MissingCatalogItemsDropped(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	model, fallback := trainedBundle()
	model.rankings["u1"] = append(model.rankings["u1"], Recommendation{ItemID: "ghost", Score: 2.0})
	svc.SwapModel(context.Background(), model, fallback, time.Now())

	resp, err := svc.Recommend(context.Background(), Request{UserID: "u1", TopK: 4})
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	for _, item := range resp.Items {
		if item.Item.ID == "ghost" {
			t.Error("item missing from catalog was returned")
		}
	}
}
