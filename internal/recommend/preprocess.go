// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package recommend

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// maxFilterIterations caps the min-activity filter loop. The filter
// converges quickly in practice; the cap guards pathological inputs.
const maxFilterIterations = 50

// PreprocessorConfig controls the interaction-to-rating pipeline.
type PreprocessorConfig struct {
	// MinUserInteractions is the minimum number of distinct items a user
	// must have rated to survive filtering.
	MinUserInteractions int `koanf:"min_user_interactions" json:"min_user_interactions" validate:"gte=1"`

	// MinItemInteractions is the minimum number of distinct users an item
	// must have been rated by to survive filtering.
	MinItemInteractions int `koanf:"min_item_interactions" json:"min_item_interactions" validate:"gte=1"`
}

// DefaultPreprocessorConfig returns the standard pipeline settings.
func DefaultPreprocessorConfig() PreprocessorConfig {
	return PreprocessorConfig{
		MinUserInteractions: 2,
		MinItemInteractions: 2,
	}
}

// Preprocessor converts raw interaction events into a clean rating table:
// implicit ratings derived per event, max-aggregation per (user, item) pair,
// then iterative minimum-activity filtering to a fixed point.
type Preprocessor struct {
	cfg      PreprocessorConfig
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewPreprocessor creates a preprocessor with the given thresholds.
func NewPreprocessor(cfg PreprocessorConfig, logger zerolog.Logger) *Preprocessor {
	return &Preprocessor{
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "preprocessor").Logger(),
	}
}

// Build runs the full pipeline over raw events. Events failing boundary
// validation are counted and dropped, not fatal. When nothing survives the
// pipeline, the empty table is returned together with an error wrapping
// ErrInsufficientData so callers can decide whether that is fatal.
func (p *Preprocessor) Build(events []Interaction) (RatingTable, error) {
	type pairKey struct{ user, item string }

	best := make(map[pairKey]RatingRow)
	dropped := 0
	for _, ev := range events {
		if err := p.validate.Struct(ev); err != nil {
			dropped++
			continue
		}
		k := pairKey{ev.UserID, ev.ItemID}
		r := ev.DerivedRating()
		cur, ok := best[k]
		// Max-aggregation: the strongest signal per pair wins. Ties keep
		// the most recent timestamp.
		if !ok || r > cur.Rating || (r == cur.Rating && ev.Timestamp.After(cur.Timestamp)) {
			best[k] = RatingRow{
				UserID:    ev.UserID,
				ItemID:    ev.ItemID,
				Rating:    r,
				Timestamp: ev.Timestamp,
			}
		}
	}

	rows := make([]RatingRow, 0, len(best))
	for _, r := range best {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].UserID != rows[j].UserID {
			return rows[i].UserID < rows[j].UserID
		}
		return rows[i].ItemID < rows[j].ItemID
	})

	rows, iterations := p.filterMinActivity(rows)

	stats := tableStats(rows, len(events), iterations)
	if dropped > 0 {
		p.logger.Warn().
			Int("dropped", dropped).
			Int("total", len(events)).
			Msg("invalid interaction events dropped during preprocessing")
	}
	p.logger.Debug().
		Int("raw_events", stats.RawEvents).
		Int("rows", stats.Rows).
		Int("users", stats.Users).
		Int("items", stats.Items).
		Float64("density", stats.Density).
		Int("filter_iterations", iterations).
		Msg("rating table built")

	table := RatingTable{Rows: rows, Stats: stats}
	if len(rows) == 0 {
		if dropped > 0 && dropped == len(events) {
			return table, fmt.Errorf("%w: all %d events failed validation",
				ErrInsufficientData, dropped)
		}
		return table, fmt.Errorf("%w: no rows survived preprocessing (%s)",
			ErrInsufficientData, stats.Describe())
	}
	return table, nil
}

// filterMinActivity repeatedly removes users and items below the activity
// thresholds until no row changes. Removing a sparse item can push a user
// under the threshold and vice versa, so a single pass is not enough.
func (p *Preprocessor) filterMinActivity(rows []RatingRow) ([]RatingRow, int) {
	iterations := 0
	for iterations < maxFilterIterations {
		userCount := make(map[string]int)
		itemCount := make(map[string]int)
		for _, r := range rows {
			userCount[r.UserID]++
			itemCount[r.ItemID]++
		}

		kept := rows[:0:len(rows)]
		for _, r := range rows {
			if userCount[r.UserID] >= p.cfg.MinUserInteractions &&
				itemCount[r.ItemID] >= p.cfg.MinItemInteractions {
				kept = append(kept, r)
			}
		}
		iterations++
		if len(kept) == len(rows) {
			return kept, iterations
		}
		rows = kept
	}
	p.logger.Warn().
		Int("iterations", iterations).
		Msg("min-activity filter hit iteration cap before converging")
	return rows, iterations
}

func tableStats(rows []RatingRow, rawEvents, iterations int) TableStats {
	users := make(map[string]struct{})
	items := make(map[string]struct{})
	sum := 0.0
	for _, r := range rows {
		users[r.UserID] = struct{}{}
		items[r.ItemID] = struct{}{}
		sum += r.Rating
	}
	stats := TableStats{
		Rows:             len(rows),
		RawEvents:        rawEvents,
		Users:            len(users),
		Items:            len(items),
		FilterIterations: iterations,
	}
	if len(rows) > 0 {
		stats.MeanRating = sum / float64(len(rows))
	}
	if stats.Users > 0 && stats.Items > 0 {
		stats.Density = float64(stats.Rows) / float64(stats.Users*stats.Items)
	}
	return stats
}

// Describe returns a one-line human-readable summary, used in train logs.
func (s TableStats) Describe() string {
	return fmt.Sprintf("%d rows from %d events (%d users x %d items, density %.4f)",
		s.Rows, s.RawEvents, s.Users, s.Items, s.Density)
}
