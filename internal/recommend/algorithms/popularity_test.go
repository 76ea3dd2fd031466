// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package algorithms

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/recommend"
)

func TestPopularity_Ranking(t *testing.T) {
	p := NewPopularity(zerolog.Nop())
	p.Train([]recommend.RatingRow{
		{UserID: "u1", ItemID: "hot", Rating: 5.0},
		{UserID: "u2", ItemID: "hot", Rating: 5.0},
		{UserID: "u3", ItemID: "hot", Rating: 4.0},
		{UserID: "u1", ItemID: "warm", Rating: 5.0},
		{UserID: "u2", ItemID: "warm", Rating: 5.0},
		{UserID: "u1", ItemID: "cold", Rating: 1.0},
	})

	recs := p.Recommend(3, nil)
	if len(recs) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(recs))
	}
	if recs[0].ItemID != "hot" {
		t.Errorf("expected most interacted item first, got %s", recs[0].ItemID)
	}
	if recs[2].ItemID != "cold" {
		t.Errorf("expected least popular item last, got %s", recs[2].ItemID)
	}
}

func TestPopularity_BlendWeights(t *testing.T) {
	p := NewPopularity(zerolog.Nop())
	p.Train([]recommend.RatingRow{
		{UserID: "u1", ItemID: "a", Rating: 5.0},
		{UserID: "u2", ItemID: "a", Rating: 5.0},
		{UserID: "u1", ItemID: "b", Rating: 3.0},
	})

	recs := p.Recommend(2, nil)
	// a: count 2/2, avg 5 -> 0.7*1 + 0.3*1 = 1.0
	// b: count 1/2, avg 3 -> 0.7*0.5 + 0.3*0.5 = 0.5
	if math.Abs(recs[0].Score-1.0) > 1e-9 {
		t.Errorf("score for a = %v, want 1.0", recs[0].Score)
	}
	if math.Abs(recs[1].Score-0.5) > 1e-9 {
		t.Errorf("score for b = %v, want 0.5", recs[1].Score)
	}
}

func TestPopularity_Exclude(t *testing.T) {
	p := NewPopularity(zerolog.Nop())
	p.Train([]recommend.RatingRow{
		{UserID: "u1", ItemID: "a", Rating: 5.0},
		{UserID: "u1", ItemID: "b", Rating: 4.0},
		{UserID: "u1", ItemID: "c", Rating: 3.0},
	})

	recs := p.Recommend(2, map[string]struct{}{"a": {}})
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	for _, r := range recs {
		if r.ItemID == "a" {
			t.Error("excluded item returned")
		}
	}
}

func TestPopularity_Untrained(t *testing.T) {
	p := NewPopularity(zerolog.Nop())
	if p.IsTrained() {
		t.Error("new recommender must not report trained")
	}
	if recs := p.Recommend(5, nil); len(recs) != 0 {
		t.Errorf("untrained recommender returned %v", recs)
	}

	p.Train([]recommend.RatingRow{{UserID: "u1", ItemID: "a", Rating: 5.0}})
	if !p.IsTrained() {
		t.Error("single row must be enough to train the fallback")
	}
}
