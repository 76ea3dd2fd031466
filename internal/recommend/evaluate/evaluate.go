// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

// Package evaluate measures ranking quality of a trained model against a
// held-out interaction split.
//
// A held-out rating at or above the positive threshold counts as a relevant
// item. For every evaluated user the model ranks the catalog with the
// user's training items excluded, and the top-K prefix is scored with
// precision, recall, NDCG and hit rate. Users without relevant held-out
// items, and users the model never saw, are skipped rather than averaged
// in as zeros.
package evaluate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/recommend"
)

// DefaultPositiveThreshold marks a held-out rating as relevant.
const DefaultPositiveThreshold = 4.0

// Config controls an evaluation run.
type Config struct {
	// Ks are the cutoffs to report. Defaults to 5, 10, 20.
	Ks []int `koanf:"ks" json:"ks"`

	// PositiveThreshold is the minimum held-out rating treated as
	// relevant.
	PositiveThreshold float64 `koanf:"positive_threshold" json:"positive_threshold"`
}

// DefaultConfig returns the standard evaluation settings.
func DefaultConfig() Config {
	return Config{
		Ks:                []int{5, 10, 20},
		PositiveThreshold: DefaultPositiveThreshold,
	}
}

// Metrics is the averaged ranking quality at one cutoff.
type Metrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	NDCG      float64 `json:"ndcg"`
	HitRate   float64 `json:"hit_rate"`
}

// Report is the outcome of one evaluation run.
type Report struct {
	// AtK maps cutoff to averaged metrics.
	AtK map[int]Metrics `json:"at_k"`

	// UsersEvaluated is how many users contributed to the averages.
	UsersEvaluated int `json:"users_evaluated"`

	// UsersSkipped is how many test users were skipped for having no
	// relevant held-out items or being unknown to the model.
	UsersSkipped int `json:"users_skipped"`
}

// Evaluator scores models against held-out data.
type Evaluator struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates an evaluator. Zero-value config fields fall back to defaults.
func New(cfg Config, logger zerolog.Logger) *Evaluator {
	if len(cfg.Ks) == 0 {
		cfg.Ks = DefaultConfig().Ks
	}
	if cfg.PositiveThreshold == 0 {
		cfg.PositiveThreshold = DefaultPositiveThreshold
	}
	ks := make([]int, len(cfg.Ks))
	copy(ks, cfg.Ks)
	sort.Ints(ks)
	cfg.Ks = ks
	return &Evaluator{
		cfg:    cfg,
		logger: logger.With().Str("component", "evaluator").Logger(),
	}
}

// Run evaluates the model: train rows define per-user exclusions, test rows
// define relevance.
func (e *Evaluator) Run(ctx context.Context, model recommend.Model, train, test []recommend.RatingRow) (Report, error) {
	if !model.IsTrained() {
		return Report{}, recommend.ErrModelNotTrained
	}

	seen := make(map[string]map[string]struct{})
	for _, r := range train {
		if seen[r.UserID] == nil {
			seen[r.UserID] = make(map[string]struct{})
		}
		seen[r.UserID][r.ItemID] = struct{}{}
	}

	relevant := make(map[string]map[string]struct{})
	for _, r := range test {
		if r.Rating < e.cfg.PositiveThreshold {
			continue
		}
		if relevant[r.UserID] == nil {
			relevant[r.UserID] = make(map[string]struct{})
		}
		relevant[r.UserID][r.ItemID] = struct{}{}
	}

	users := make([]string, 0, len(relevant))
	for u := range relevant {
		users = append(users, u)
	}
	sort.Strings(users)

	maxK := e.cfg.Ks[len(e.cfg.Ks)-1]
	sums := make(map[int]*Metrics, len(e.cfg.Ks))
	for _, k := range e.cfg.Ks {
		sums[k] = &Metrics{}
	}

	evaluated, skipped := 0, 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return Report{}, fmt.Errorf("evaluation cancelled: %w", err)
		}
		if !model.KnowsUser(u) {
			skipped++
			continue
		}
		recs, err := model.RecommendForUser(u, maxK, seen[u])
		if err != nil {
			return Report{}, fmt.Errorf("recommend for %s: %w", u, err)
		}
		if len(recs) == 0 {
			skipped++
			continue
		}

		rel := relevant[u]
		for _, k := range e.cfg.Ks {
			m := rankMetrics(recs, rel, k)
			s := sums[k]
			s.Precision += m.Precision
			s.Recall += m.Recall
			s.NDCG += m.NDCG
			s.HitRate += m.HitRate
		}
		evaluated++
	}

	report := Report{
		AtK:            make(map[int]Metrics, len(e.cfg.Ks)),
		UsersEvaluated: evaluated,
		UsersSkipped:   skipped,
	}
	for _, k := range e.cfg.Ks {
		m := *sums[k]
		if evaluated > 0 {
			m.Precision /= float64(evaluated)
			m.Recall /= float64(evaluated)
			m.NDCG /= float64(evaluated)
			m.HitRate /= float64(evaluated)
		}
		report.AtK[k] = m
	}

	e.logger.Info().
		Int("users_evaluated", evaluated).
		Int("users_skipped", skipped).
		Ints("ks", e.cfg.Ks).
		Msg("evaluation complete")
	return report, nil
}

// rankMetrics scores one user's top-k prefix against the relevant set. The
// divisor is the requested k even when the model returned fewer items: a
// short list is a worse answer, not a smaller denominator.
func rankMetrics(recs []recommend.Recommendation, relevant map[string]struct{}, k int) Metrics {
	if k <= 0 {
		return Metrics{}
	}
	prefix := len(recs)
	if prefix > k {
		prefix = k
	}

	hits := 0
	dcg := 0.0
	for i := 0; i < prefix; i++ {
		if _, ok := relevant[recs[i].ItemID]; ok {
			hits++
			dcg += 1.0 / math.Log2(float64(i)+2.0)
		}
	}

	ideal := len(relevant)
	if ideal > k {
		ideal = k
	}
	idcg := 0.0
	for i := 0; i < ideal; i++ {
		idcg += 1.0 / math.Log2(float64(i)+2.0)
	}

	m := Metrics{
		Precision: float64(hits) / float64(k),
		Recall:    float64(hits) / float64(len(relevant)),
	}
	if idcg > 0 {
		m.NDCG = dcg / idcg
	}
	if hits > 0 {
		m.HitRate = 1.0
	}
	return m
}
