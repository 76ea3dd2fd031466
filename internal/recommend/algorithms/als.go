// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package algorithms

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wayfarerhq/wayfarer/internal/recommend"
	"github.com/wayfarerhq/wayfarer/internal/recommend/encoding"
)

// ALSConfig controls the implicit-feedback factorization model.
type ALSConfig struct {
	// Factors is the latent dimensionality.
	Factors int `koanf:"factors" json:"factors" validate:"gte=1,lte=512"`

	// Iterations is the number of alternating sweeps.
	Iterations int `koanf:"iterations" json:"iterations" validate:"gte=1,lte=200"`

	// Regularization is the L2 penalty on both factor matrices.
	Regularization float64 `koanf:"regularization" json:"regularization" validate:"gt=0"`

	// Alpha scales derived ratings into confidence: c = 1 + alpha*r.
	Alpha float64 `koanf:"alpha" json:"alpha" validate:"gt=0"`

	// Workers bounds the row-solve parallelism. Zero means GOMAXPROCS.
	Workers int `koanf:"workers" json:"workers" validate:"gte=0"`

	// Seed fixes factor initialization for reproducible runs.
	Seed int64 `koanf:"seed" json:"seed"`
}

// DefaultALSConfig returns production defaults.
func DefaultALSConfig() ALSConfig {
	return ALSConfig{
		Factors:        32,
		Iterations:     15,
		Regularization: 0.1,
		Alpha:          40.0,
		Seed:           42,
	}
}

// alsObservation is one observed (row, column) cell with its confidence.
type alsObservation struct {
	idx        int
	confidence float64
}

// ALS is a confidence-weighted implicit-feedback factorization model. Each
// sweep fixes one factor matrix and solves a regularized least-squares
// system per row of the other, using the observed-cell correction so the
// dense confidence matrix is never materialized.
type ALS struct {
	mu     sync.RWMutex
	cfg    ALSConfig
	logger zerolog.Logger

	users *encoding.Encoder
	items *encoding.Encoder

	userFactors [][]float64
	itemFactors [][]float64

	trained bool
}

// NewALS creates an untrained model.
func NewALS(cfg ALSConfig, logger zerolog.Logger) *ALS {
	return &ALS{
		cfg:    cfg,
		logger: logger.With().Str("component", "als").Logger(),
		users:  encoding.NewEncoder(),
		items:  encoding.NewEncoder(),
	}
}

// Name implements recommend.Model.
func (m *ALS) Name() string { return "als" }

// Hyperparameters returns the training configuration for artifact metadata.
func (m *ALS) Hyperparameters() any { return m.cfg }

// IsTrained implements recommend.Model.
func (m *ALS) IsTrained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// KnowsUser implements recommend.Model.
func (m *ALS) KnowsUser(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained && m.users.Contains(userID)
}

// KnowsItem implements recommend.Model.
func (m *ALS) KnowsItem(itemID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained && m.items.Contains(itemID)
}

// Train implements recommend.Model.
func (m *ALS) Train(ctx context.Context, rows []recommend.RatingRow) (recommend.TrainMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := viableTable(rows); err != nil {
		return recommend.TrainMetrics{}, err
	}

	userIDs := make([]string, 0, len(rows))
	itemIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		userIDs = append(userIDs, r.UserID)
		itemIDs = append(itemIDs, r.ItemID)
	}
	m.users.Fit(userIDs)
	m.items.Fit(itemIDs)

	nu, ni := m.users.Len(), m.items.Len()
	byUser := make([][]alsObservation, nu)
	byItem := make([][]alsObservation, ni)
	for _, r := range rows {
		u, _ := m.users.Encode(r.UserID)
		i, _ := m.items.Encode(r.ItemID)
		c := 1.0 + m.cfg.Alpha*r.Rating
		byUser[u] = append(byUser[u], alsObservation{idx: i, confidence: c})
		byItem[i] = append(byItem[i], alsObservation{idx: u, confidence: c})
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	m.userFactors = gaussianMatrix(rng, nu, m.cfg.Factors, 0.1)
	m.itemFactors = gaussianMatrix(rng, ni, m.cfg.Factors, 0.1)

	objective := 0.0
	for iter := 0; iter < m.cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			m.trained = false
			return recommend.TrainMetrics{}, fmt.Errorf("als training cancelled at iteration %d: %w", iter, err)
		}

		if err := m.solveSide(ctx, m.userFactors, m.itemFactors, byUser); err != nil {
			m.trained = false
			return recommend.TrainMetrics{}, fmt.Errorf("als user sweep %d: %w", iter, err)
		}
		if err := m.solveSide(ctx, m.itemFactors, m.userFactors, byItem); err != nil {
			m.trained = false
			return recommend.TrainMetrics{}, fmt.Errorf("als item sweep %d: %w", iter, err)
		}

		objective = m.objectiveLocked(byUser)
		m.logger.Debug().
			Int("iteration", iter+1).
			Float64("objective", objective).
			Msg("als sweep complete")
	}

	m.trained = true
	metrics := recommend.TrainMetrics{
		Objective: objective,
		Users:     nu,
		Items:     ni,
		Rows:      len(rows),
	}
	m.logger.Info().
		Int("users", nu).
		Int("items", ni).
		Int("rows", len(rows)).
		Float64("objective", objective).
		Msg("als training complete")
	return metrics, nil
}

// solveSide recomputes every row of target while fixed stays constant. Rows
// with no observations are left untouched. Row solves are independent, so
// they run across a bounded worker pool; each worker writes only its own
// rows.
func (m *ALS) solveSide(ctx context.Context, target, fixed [][]float64, obs [][]alsObservation) error {
	f := m.cfg.Factors
	gram := gramMatrix(fixed, f)

	workers := m.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(target) {
		workers = len(target)
	}

	g, ctx := errgroup.WithContext(ctx)
	rowCh := make(chan int)
	g.Go(func() error {
		defer close(rowCh)
		for row := range target {
			select {
			case rowCh <- row:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			a := make([][]float64, f)
			for i := range a {
				a[i] = make([]float64, f)
			}
			b := make([]float64, f)
			for row := range rowCh {
				if len(obs[row]) == 0 {
					continue
				}
				// A = YᵗY + λI + Σ (c-1) y yᵗ,  b = Σ c y.
				for i := 0; i < f; i++ {
					copy(a[i], gram[i])
					a[i][i] += m.cfg.Regularization
					b[i] = 0
				}
				for _, o := range obs[row] {
					y := fixed[o.idx]
					cw := o.confidence - 1.0
					for i := 0; i < f; i++ {
						yi := y[i]
						b[i] += o.confidence * yi
						for j := 0; j < f; j++ {
							a[i][j] += cw * yi * y[j]
						}
					}
				}
				x, err := solveCholesky(a, b)
				if err != nil {
					return fmt.Errorf("row %d: %w", row, err)
				}
				copy(target[row], x)
			}
			return nil
		})
	}
	return g.Wait()
}

// objectiveLocked evaluates the confidence-weighted regularized objective
//
//	sum_{u,i} c_ui (p_ui - x_u.y_i)^2 + lambda (sum ||x||^2 + sum ||y||^2)
//
// without materializing the dense term: the all-pairs part reduces to the
// item Gram matrix, and observed cells contribute a correction.
func (m *ALS) objectiveLocked(byUser [][]alsObservation) float64 {
	f := m.cfg.Factors
	gram := gramMatrix(m.itemFactors, f)

	j := 0.0
	for u, x := range m.userFactors {
		// Unobserved baseline: sum_i (0 - x.y)^2 = x' G x.
		for a := 0; a < f; a++ {
			for b := 0; b < f; b++ {
				j += x[a] * gram[a][b] * x[b]
			}
		}
		// Observed cells: replace the baseline s^2 with c (1-s)^2.
		for _, o := range byUser[u] {
			s := dot(x, m.itemFactors[o.idx])
			j += o.confidence*(1.0-s)*(1.0-s) - s*s
		}
	}
	for _, x := range m.userFactors {
		j += m.cfg.Regularization * dot(x, x)
	}
	for _, y := range m.itemFactors {
		j += m.cfg.Regularization * dot(y, y)
	}
	return j
}

// gramMatrix returns Mᵗ M for an n x f factor matrix.
func gramMatrix(rows [][]float64, f int) [][]float64 {
	g := make([][]float64, f)
	for i := range g {
		g[i] = make([]float64, f)
	}
	for _, r := range rows {
		for i := 0; i < f; i++ {
			ri := r[i]
			for j := 0; j < f; j++ {
				g[i][j] += ri * r[j]
			}
		}
	}
	return g
}

// RecommendForUser implements recommend.Model. Scores are raw preference
// estimates, meaningful only for ranking.
func (m *ALS) RecommendForUser(userID string, topK int, exclude map[string]struct{}) ([]recommend.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return nil, recommend.ErrModelNotTrained
	}
	u, err := m.users.Encode(userID)
	if err != nil {
		return []recommend.Recommendation{}, nil
	}

	recs := make([]recommend.Recommendation, 0, m.items.Len())
	for i := 0; i < m.items.Len(); i++ {
		id, _ := m.items.Decode(i)
		if _, skip := exclude[id]; skip {
			continue
		}
		recs = append(recs, recommend.Recommendation{
			ItemID: id,
			Score:  dot(m.userFactors[u], m.itemFactors[i]),
		})
	}
	return topKRecommendations(recs, topK), nil
}

// SimilarItems implements recommend.Model.
func (m *ALS) SimilarItems(itemID string, topK int) ([]recommend.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return nil, recommend.ErrModelNotTrained
	}
	target, err := m.items.Encode(itemID)
	if err != nil {
		return []recommend.Recommendation{}, nil
	}

	recs := make([]recommend.Recommendation, 0, m.items.Len()-1)
	for i := 0; i < m.items.Len(); i++ {
		if i == target {
			continue
		}
		id, _ := m.items.Decode(i)
		recs = append(recs, recommend.Recommendation{
			ItemID: id,
			Score:  cosineSimilarity(m.itemFactors[target], m.itemFactors[i]),
		})
	}
	return topKRecommendations(recs, topK), nil
}

// alsState is the gob wire form of the trained parameters.
type alsState struct {
	Factors     int
	UserFactors [][]float64
	ItemFactors [][]float64
}

// EncodeState implements recommend.PersistableModel.
func (m *ALS) EncodeState() ([]byte, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return nil, nil, recommend.ErrModelNotTrained
	}

	var modelBuf bytes.Buffer
	if err := gob.NewEncoder(&modelBuf).Encode(alsState{
		Factors:     m.cfg.Factors,
		UserFactors: m.userFactors,
		ItemFactors: m.itemFactors,
	}); err != nil {
		return nil, nil, fmt.Errorf("encode als parameters: %w", err)
	}

	var encBuf bytes.Buffer
	if err := gob.NewEncoder(&encBuf).Encode(encoderPair{Users: m.users, Items: m.items}); err != nil {
		return nil, nil, fmt.Errorf("encode identifier encoders: %w", err)
	}
	return modelBuf.Bytes(), encBuf.Bytes(), nil
}

// DecodeState implements recommend.PersistableModel. A parameter blob whose
// matrix dimensions disagree with the encoder class counts comes from a
// different training run and is rejected.
func (m *ALS) DecodeState(model, encoders []byte) error {
	var st alsState
	if err := gob.NewDecoder(bytes.NewReader(model)).Decode(&st); err != nil {
		return fmt.Errorf("decode als parameters: %w", err)
	}
	var pair encoderPair
	if err := gob.NewDecoder(bytes.NewReader(encoders)).Decode(&pair); err != nil {
		return fmt.Errorf("decode identifier encoders: %w", err)
	}
	if pair.Users == nil || pair.Items == nil {
		return fmt.Errorf("%w: encoder blob missing user or item encoder", recommend.ErrArtifactMismatch)
	}
	if len(st.UserFactors) != pair.Users.Len() {
		return fmt.Errorf("%w: %d user rows vs %d encoded users",
			recommend.ErrArtifactMismatch, len(st.UserFactors), pair.Users.Len())
	}
	if len(st.ItemFactors) != pair.Items.Len() {
		return fmt.Errorf("%w: %d item rows vs %d encoded items",
			recommend.ErrArtifactMismatch, len(st.ItemFactors), pair.Items.Len())
	}
	for _, row := range st.UserFactors {
		if len(row) != st.Factors {
			return fmt.Errorf("%w: factor row width %d vs declared %d",
				recommend.ErrArtifactMismatch, len(row), st.Factors)
		}
	}
	for _, row := range st.ItemFactors {
		if len(row) != st.Factors {
			return fmt.Errorf("%w: factor row width %d vs declared %d",
				recommend.ErrArtifactMismatch, len(row), st.Factors)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Factors = st.Factors
	m.userFactors = st.UserFactors
	m.itemFactors = st.ItemFactors
	m.users = pair.Users
	m.items = pair.Items
	m.trained = true
	return nil
}
