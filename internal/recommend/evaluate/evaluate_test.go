// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package evaluate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/recommend"
)

// scriptedModel returns a fixed ranking per user, which makes the expected
// metric values computable by hand.
type scriptedModel struct {
	rankings map[string][]string
}

func (m *scriptedModel) Name() string    { return "scripted" }
func (m *scriptedModel) IsTrained() bool { return true }
func (m *scriptedModel) KnowsUser(userID string) bool {
	_, ok := m.rankings[userID]
	return ok
}
func (m *scriptedModel) KnowsItem(string) bool { return true }
func (m *scriptedModel) Train(context.Context, []recommend.RatingRow) (recommend.TrainMetrics, error) {
	return recommend.TrainMetrics{}, nil
}
func (m *scriptedModel) SimilarItems(string, int) ([]recommend.Recommendation, error) {
	return nil, nil
}
func (m *scriptedModel) RecommendForUser(userID string, topK int, exclude map[string]struct{}) ([]recommend.Recommendation, error) {
	var recs []recommend.Recommendation
	score := float64(len(m.rankings[userID]))
	for _, id := range m.rankings[userID] {
		if _, skip := exclude[id]; skip {
			continue
		}
		recs = append(recs, recommend.Recommendation{ItemID: id, Score: score})
		score--
		if topK > 0 && len(recs) == topK {
			break
		}
	}
	return recs, nil
}

func TestEvaluator_HandComputedMetrics(t *testing.T) {
	// u1's top-5 is [a b c d e]; relevant held-out items are {a, c, x}.
	model := &scriptedModel{rankings: map[string][]string{
		"u1": {"a", "b", "c", "d", "e"},
	}}
	test := []recommend.RatingRow{
		{UserID: "u1", ItemID: "a", Rating: 5.0},
		{UserID: "u1", ItemID: "c", Rating: 4.0},
		{UserID: "u1", ItemID: "x", Rating: 4.5},
		{UserID: "u1", ItemID: "b", Rating: 2.0}, // below threshold
	}

	ev := New(Config{Ks: []int{5}}, zerolog.Nop())
	report, err := ev.Run(context.Background(), model, nil, test)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.UsersEvaluated != 1 {
		t.Fatalf("UsersEvaluated = %d, want 1", report.UsersEvaluated)
	}

	m := report.AtK[5]
	if got, want := m.Precision, 2.0/5.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("Precision@5 = %v, want %v", got, want)
	}
	if got, want := m.Recall, 2.0/3.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("Recall@5 = %v, want %v", got, want)
	}
	// DCG = 1/log2(2) + 1/log2(4); IDCG over min(3,5) positions.
	dcg := 1.0 + 1.0/2.0
	idcg := 1.0 + 1.0/math.Log2(3) + 1.0/2.0
	if got, want := m.NDCG, dcg/idcg; math.Abs(got-want) > 1e-9 {
		t.Errorf("NDCG@5 = %v, want %v", got, want)
	}
	if m.HitRate != 1.0 {
		t.Errorf("HitRate@5 = %v, want 1.0", m.HitRate)
	}
}

func TestEvaluator_SkipsUsersWithoutPositives(t *testing.T) {
	model := &scriptedModel{rankings: map[string][]string{
		"u1": {"a", "b"},
		"u2": {"a", "b"},
	}}
	test := []recommend.RatingRow{
		{UserID: "u1", ItemID: "a", Rating: 5.0},
		{UserID: "u2", ItemID: "a", Rating: 1.0}, // u2 has no positives
		{UserID: "u3", ItemID: "b", Rating: 5.0}, // u3 unknown to model
	}

	ev := New(DefaultConfig(), zerolog.Nop())
	report, err := ev.Run(context.Background(), model, nil, test)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.UsersEvaluated != 1 {
		t.Errorf("UsersEvaluated = %d, want 1", report.UsersEvaluated)
	}
	if report.UsersSkipped != 1 {
		t.Errorf("UsersSkipped = %d, want 1", report.UsersSkipped)
	}
}

func TestEvaluator_ExcludesTrainItems(t *testing.T) {
	model := &scriptedModel{rankings: map[string][]string{
		"u1": {"trained", "a"},
	}}
	train := []recommend.RatingRow{{UserID: "u1", ItemID: "trained", Rating: 5.0}}
	test := []recommend.RatingRow{{UserID: "u1", ItemID: "a", Rating: 5.0}}

	ev := New(Config{Ks: []int{1}}, zerolog.Nop())
	report, err := ev.Run(context.Background(), model, train, test)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	// With "trained" excluded, "a" moves to rank 1.
	if got := report.AtK[1].Precision; got != 1.0 {
		t.Errorf("Precision@1 = %v, want 1.0", got)
	}
}

func TestEvaluator_PerfectAndMissRanking(t *testing.T) {
	model := &scriptedModel{rankings: map[string][]string{
		"hit":  {"a", "b", "c"},
		"miss": {"x", "y", "z"},
	}}
	test := []recommend.RatingRow{
		{UserID: "hit", ItemID: "a", Rating: 5.0},
		{UserID: "hit", ItemID: "b", Rating: 5.0},
		{UserID: "hit", ItemID: "c", Rating: 5.0},
		{UserID: "miss", ItemID: "q", Rating: 5.0},
	}

	ev := New(Config{Ks: []int{3}}, zerolog.Nop())
	report, err := ev.Run(context.Background(), model, nil, test)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	m := report.AtK[3]
	// One perfect user and one complete miss average to 0.5 everywhere.
	for name, got := range map[string]float64{
		"precision": m.Precision,
		"recall":    m.Recall,
		"ndcg":      m.NDCG,
		"hit_rate":  m.HitRate,
	} {
		if math.Abs(got-0.5) > 1e-9 {
			t.Errorf("%s@3 = %v, want 0.5", name, got)
		}
	}
}

func TestEvaluator_ShortRankingKeepsFullDivisor(t *testing.T) {
	// The model only knows 2 items, one of them relevant. At K=5 the
	// precision divisor stays 5 and the IDCG cap stays min(|relevant|, 5).
	model := &scriptedModel{rankings: map[string][]string{
		"u1": {"a", "b"},
	}}
	test := []recommend.RatingRow{
		{UserID: "u1", ItemID: "a", Rating: 5.0},
		{UserID: "u1", ItemID: "q", Rating: 5.0},
	}

	ev := New(Config{Ks: []int{5}}, zerolog.Nop())
	report, err := ev.Run(context.Background(), model, nil, test)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	m := report.AtK[5]
	if got, want := m.Precision, 1.0/5.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("Precision@5 = %v, want %v", got, want)
	}
	if got, want := m.Recall, 1.0/2.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("Recall@5 = %v, want %v", got, want)
	}
	// DCG = 1/log2(2); IDCG over min(2, 5) ideal positions.
	idcg := 1.0 + 1.0/math.Log2(3)
	if got, want := m.NDCG, 1.0/idcg; math.Abs(got-want) > 1e-9 {
		t.Errorf("NDCG@5 = %v, want %v", got, want)
	}
}

func TestEvaluator_UntrainedModel(t *testing.T) {
	ev := New(DefaultConfig(), zerolog.Nop())
	untrained := &untrainedModel{}
	if _, err := ev.Run(context.Background(), untrained, nil, nil); !errors.Is(err, recommend.ErrModelNotTrained) {
		t.Errorf("Run() error = %v, want ErrModelNotTrained", err)
	}
}

type untrainedModel struct{ scriptedModel }

func (m *untrainedModel) IsTrained() bool { return false }

func TestEvaluator_EmptyTestSet(t *testing.T) {
	model := &scriptedModel{rankings: map[string][]string{"u1": {"a"}}}
	ev := New(DefaultConfig(), zerolog.Nop())
	report, err := ev.Run(context.Background(), model, nil, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if report.UsersEvaluated != 0 {
		t.Errorf("UsersEvaluated = %d, want 0", report.UsersEvaluated)
	}
	for k, m := range report.AtK {
		if m != (Metrics{}) {
			t.Errorf("metrics at %d should be zero, got %+v", k, m)
		}
	}
}
