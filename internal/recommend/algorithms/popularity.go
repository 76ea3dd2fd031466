// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package algorithms

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/recommend"
)

// Popularity blend weights. Interaction volume dominates; average rating
// breaks the tie between similarly popular items.
const (
	popularityCountWeight  = 0.7
	popularityRatingWeight = 0.3
)

// popularityEntry is a precomputed blended score for one item.
type popularityEntry struct {
	itemID string
	score  float64
}

// Popularity is the non-personalized fallback recommender. It blends
// normalized interaction count with normalized average rating and serves a
// precomputed ranking, so recommendation is a filtered prefix scan.
type Popularity struct {
	mu      sync.RWMutex
	logger  zerolog.Logger
	ranked  []popularityEntry
	trained bool
}

// NewPopularity creates an untrained fallback recommender.
func NewPopularity(logger zerolog.Logger) *Popularity {
	return &Popularity{
		logger: logger.With().Str("component", "popularity").Logger(),
	}
}

// Train computes popularity scores from the clean rating table. Unlike the
// factorization models it has no minimum table size: a single row still
// yields a usable ranking.
func (p *Popularity) Train(rows []recommend.RatingRow) {
	type agg struct {
		count int
		sum   float64
	}
	byItem := make(map[string]*agg)
	maxCount := 0
	for _, r := range rows {
		a := byItem[r.ItemID]
		if a == nil {
			a = &agg{}
			byItem[r.ItemID] = a
		}
		a.count++
		a.sum += r.Rating
		if a.count > maxCount {
			maxCount = a.count
		}
	}

	ranked := make([]popularityEntry, 0, len(byItem))
	for id, a := range byItem {
		normCount := float64(a.count) / float64(maxCount)
		// Average rating mapped from [1,5] onto [0,1]. Items somehow
		// lacking ratings are treated as neutral.
		avg := 1.0
		if a.count > 0 {
			avg = a.sum / float64(a.count)
		}
		normRating := (avg - 1.0) / 4.0
		ranked = append(ranked, popularityEntry{
			itemID: id,
			score:  popularityCountWeight*normCount + popularityRatingWeight*normRating,
		})
	}
	ranked = sortPopularity(ranked)

	p.mu.Lock()
	p.ranked = ranked
	p.trained = len(ranked) > 0
	p.mu.Unlock()

	p.logger.Debug().Int("items", len(ranked)).Msg("popularity ranking computed")
}

// Recommend implements recommend.Fallback.
func (p *Popularity) Recommend(topK int, exclude map[string]struct{}) []recommend.Recommendation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	recs := make([]recommend.Recommendation, 0, topK)
	for _, e := range p.ranked {
		if _, skip := exclude[e.itemID]; skip {
			continue
		}
		recs = append(recs, recommend.Recommendation{ItemID: e.itemID, Score: e.score})
		if topK > 0 && len(recs) == topK {
			break
		}
	}
	return recs
}

// IsTrained implements recommend.Fallback.
func (p *Popularity) IsTrained() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trained
}

func sortPopularity(ranked []popularityEntry) []popularityEntry {
	recs := make([]recommend.Recommendation, len(ranked))
	for i, e := range ranked {
		recs[i] = recommend.Recommendation{ItemID: e.itemID, Score: e.score}
	}
	recs = topKRecommendations(recs, 0)
	for i, r := range recs {
		ranked[i] = popularityEntry{itemID: r.ItemID, score: r.Score}
	}
	return ranked
}
