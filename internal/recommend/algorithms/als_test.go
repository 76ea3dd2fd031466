// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package algorithms

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/recommend"
)

func testALSConfig() ALSConfig {
	cfg := DefaultALSConfig()
	cfg.Factors = 4
	cfg.Iterations = 10
	cfg.Workers = 2
	return cfg
}

func TestALS_TrainAndRecommend(t *testing.T) {
	m := NewALS(testALSConfig(), zerolog.Nop())
	rows := syntheticRatings(3, 20, 20, 2)

	metrics, err := m.Train(context.Background(), rows)
	if err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	if !m.IsTrained() {
		t.Fatal("model must report trained")
	}
	if metrics.Users != 20 || metrics.Items != 20 {
		t.Errorf("got %d users / %d items, want 20 / 20", metrics.Users, metrics.Items)
	}

	recs, err := m.RecommendForUser(rows[0].UserID, 5, nil)
	if err != nil {
		t.Fatalf("RecommendForUser() error: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("expected 5 recommendations, got %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Score > recs[i-1].Score {
			t.Errorf("recommendations not sorted descending at %d", i)
		}
	}
}

func TestALS_ObjectiveDecreases(t *testing.T) {
	// Each half-sweep solves its subproblem exactly, so the full objective
	// is non-increasing across iterations. Train with increasing iteration
	// counts from the same seed and compare final objectives.
	rows := syntheticRatings(5, 20, 20, 2)

	var prev float64
	for n, iters := range []int{1, 3, 6, 10} {
		cfg := testALSConfig()
		cfg.Iterations = iters
		m := NewALS(cfg, zerolog.Nop())
		metrics, err := m.Train(context.Background(), rows)
		if err != nil {
			t.Fatalf("Train(%d iterations) error: %v", iters, err)
		}
		if metrics.Objective <= 0 {
			t.Fatalf("objective must be positive, got %v", metrics.Objective)
		}
		if n > 0 && metrics.Objective > prev+1e-6 {
			t.Errorf("objective increased: %v after %d iterations, was %v", metrics.Objective, iters, prev)
		}
		prev = metrics.Objective
	}
}

func TestALS_ExcludeSeen(t *testing.T) {
	m := NewALS(testALSConfig(), zerolog.Nop())
	if _, err := m.Train(context.Background(), scenarioRows()); err != nil {
		t.Fatalf("Train() error: %v", err)
	}

	exclude := map[string]struct{}{"i1": {}, "i2": {}}
	recs, err := m.RecommendForUser("u3", 10, exclude)
	if err != nil {
		t.Fatalf("RecommendForUser() error: %v", err)
	}
	for _, r := range recs {
		if _, bad := exclude[r.ItemID]; bad {
			t.Errorf("excluded item %s returned", r.ItemID)
		}
	}
}

func TestALS_UnknownUserEmptyNotError(t *testing.T) {
	m := NewALS(testALSConfig(), zerolog.Nop())
	if _, err := m.Train(context.Background(), scenarioRows()); err != nil {
		t.Fatalf("Train() error: %v", err)
	}

	recs, err := m.RecommendForUser("stranger", 5, nil)
	if err != nil {
		t.Fatalf("unknown user must not be an error, got %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty recommendations, got %v", recs)
	}
}

func TestALS_UntrainedErrors(t *testing.T) {
	m := NewALS(testALSConfig(), zerolog.Nop())
	if _, err := m.RecommendForUser("u1", 5, nil); !errors.Is(err, recommend.ErrModelNotTrained) {
		t.Errorf("RecommendForUser() error = %v, want ErrModelNotTrained", err)
	}
	if _, err := m.SimilarItems("i1", 5); !errors.Is(err, recommend.ErrModelNotTrained) {
		t.Errorf("SimilarItems() error = %v, want ErrModelNotTrained", err)
	}
}

func TestALS_InsufficientData(t *testing.T) {
	m := NewALS(testALSConfig(), zerolog.Nop())
	rows := []recommend.RatingRow{{UserID: "u1", ItemID: "i1", Rating: 5.0}}
	if _, err := m.Train(context.Background(), rows); !errors.Is(err, recommend.ErrInsufficientData) {
		t.Errorf("Train() error = %v, want ErrInsufficientData", err)
	}
}

func TestALS_Deterministic(t *testing.T) {
	rows := syntheticRatings(13, 15, 12, 2)

	a := NewALS(testALSConfig(), zerolog.Nop())
	b := NewALS(testALSConfig(), zerolog.Nop())
	if _, err := a.Train(context.Background(), rows); err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	if _, err := b.Train(context.Background(), rows); err != nil {
		t.Fatalf("Train() error: %v", err)
	}

	// Parallel row solves write disjoint rows, so results are independent
	// of worker scheduling.
	ra, _ := a.RecommendForUser(rows[0].UserID, 5, nil)
	rb, _ := b.RecommendForUser(rows[0].UserID, 5, nil)
	for i := range ra {
		if ra[i] != rb[i] {
			t.Errorf("result %d differs: %+v vs %+v", i, ra[i], rb[i])
		}
	}
}

func TestALS_StateRoundTrip(t *testing.T) {
	m := NewALS(testALSConfig(), zerolog.Nop())
	if _, err := m.Train(context.Background(), scenarioRows()); err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	want, err := m.RecommendForUser("u1", 3, nil)
	if err != nil {
		t.Fatalf("RecommendForUser() error: %v", err)
	}

	modelBlob, encBlob, err := m.EncodeState()
	if err != nil {
		t.Fatalf("EncodeState() error: %v", err)
	}
	loaded := NewALS(testALSConfig(), zerolog.Nop())
	if err := loaded.DecodeState(modelBlob, encBlob); err != nil {
		t.Fatalf("DecodeState() error: %v", err)
	}

	got, err := loaded.RecommendForUser("u1", 3, nil)
	if err != nil {
		t.Fatalf("RecommendForUser() after load error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("result lengths differ: %d vs %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d differs after load: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func TestALS_DecodeStateMismatch(t *testing.T) {
	m := NewALS(testALSConfig(), zerolog.Nop())
	if _, err := m.Train(context.Background(), scenarioRows()); err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	modelBlob, _, err := m.EncodeState()
	if err != nil {
		t.Fatalf("EncodeState() error: %v", err)
	}

	other := NewALS(testALSConfig(), zerolog.Nop())
	otherRows := append(scenarioRows(),
		recommend.RatingRow{UserID: "u9", ItemID: "i9", Rating: 4.0},
		recommend.RatingRow{UserID: "u9", ItemID: "i1", Rating: 2.0})
	if _, err := other.Train(context.Background(), otherRows); err != nil {
		t.Fatalf("Train() error: %v", err)
	}
	_, otherEnc, err := other.EncodeState()
	if err != nil {
		t.Fatalf("EncodeState() error: %v", err)
	}

	loaded := NewALS(testALSConfig(), zerolog.Nop())
	if err := loaded.DecodeState(modelBlob, otherEnc); !errors.Is(err, recommend.ErrArtifactMismatch) {
		t.Errorf("DecodeState() error = %v, want ErrArtifactMismatch", err)
	}
}

func TestALS_TrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewALS(testALSConfig(), zerolog.Nop())
	if _, err := m.Train(ctx, scenarioRows()); !errors.Is(err, context.Canceled) {
		t.Errorf("Train() error = %v, want context.Canceled", err)
	}
}
