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
	"math"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/recommend"
	"github.com/wayfarerhq/wayfarer/internal/recommend/encoding"
)

// SGDConfig controls the explicit-feedback factorization model.
type SGDConfig struct {
	// Factors is the latent dimensionality.
	Factors int `koanf:"factors" json:"factors" validate:"gte=1,lte=512"`

	// Epochs is the number of full passes over the training rows.
	Epochs int `koanf:"epochs" json:"epochs" validate:"gte=1,lte=1000"`

	// LearningRate is the SGD step size.
	LearningRate float64 `koanf:"learning_rate" json:"learning_rate" validate:"gt=0"`

	// Regularization is the L2 penalty applied to biases and factors.
	Regularization float64 `koanf:"regularization" json:"regularization" validate:"gte=0"`

	// HoldoutFraction is the share of rows reserved for RMSE monitoring.
	// Tables too small to split train on everything.
	HoldoutFraction float64 `koanf:"holdout_fraction" json:"holdout_fraction" validate:"gte=0,lt=1"`

	// Seed fixes initialization and shuffling for reproducible runs.
	Seed int64 `koanf:"seed" json:"seed"`
}

// DefaultSGDConfig returns production defaults.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		Factors:         32,
		Epochs:          20,
		LearningRate:    0.005,
		Regularization:  0.02,
		HoldoutFraction: 0.2,
		Seed:            42,
	}
}

// minHoldoutRows is the smallest table that still gets a monitoring split.
const minHoldoutRows = 10

// SGD is a biased matrix-factorization model trained by stochastic gradient
// descent on explicit (derived) ratings. The predicted rating is
//
//	mu + userBias[u] + itemBias[i] + dot(userFactors[u], itemFactors[i])
//
// and each rated pair updates both factor vectors simultaneously against a
// copy of the pre-update user vector.
type SGD struct {
	mu     sync.RWMutex
	cfg    SGDConfig
	logger zerolog.Logger

	users *encoding.Encoder
	items *encoding.Encoder

	globalMean  float64
	userBias    []float64
	itemBias    []float64
	userFactors [][]float64
	itemFactors [][]float64

	trained bool
}

// NewSGD creates an untrained model.
func NewSGD(cfg SGDConfig, logger zerolog.Logger) *SGD {
	return &SGD{
		cfg:    cfg,
		logger: logger.With().Str("component", "sgd").Logger(),
		users:  encoding.NewEncoder(),
		items:  encoding.NewEncoder(),
	}
}

// Name implements recommend.Model.
func (m *SGD) Name() string { return "sgd" }

// Hyperparameters returns the training configuration for artifact metadata.
func (m *SGD) Hyperparameters() any { return m.cfg }

// IsTrained implements recommend.Model.
func (m *SGD) IsTrained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// KnowsUser implements recommend.Model.
func (m *SGD) KnowsUser(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained && m.users.Contains(userID)
}

// KnowsItem implements recommend.Model.
func (m *SGD) KnowsItem(itemID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained && m.items.Contains(itemID)
}

// Train implements recommend.Model. Each epoch visits the training rows in a
// fresh shuffled order; the per-epoch training RMSE and, when a split was
// possible, the holdout RMSE are reported in the returned metrics.
func (m *SGD) Train(ctx context.Context, rows []recommend.RatingRow) (recommend.TrainMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := viableTable(rows); err != nil {
		return recommend.TrainMetrics{}, err
	}

	userIDs := make([]string, 0, len(rows))
	itemIDs := make([]string, 0, len(rows))
	sum := 0.0
	for _, r := range rows {
		userIDs = append(userIDs, r.UserID)
		itemIDs = append(itemIDs, r.ItemID)
		sum += r.Rating
	}
	m.users.Fit(userIDs)
	m.items.Fit(itemIDs)
	m.globalMean = sum / float64(len(rows))

	type triple struct {
		u, i int
		r    float64
	}
	data := make([]triple, len(rows))
	for n, r := range rows {
		u, _ := m.users.Encode(r.UserID)
		i, _ := m.items.Encode(r.ItemID)
		data[n] = triple{u: u, i: i, r: r.Rating}
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))

	nu, ni := m.users.Len(), m.items.Len()
	m.userBias = make([]float64, nu)
	m.itemBias = make([]float64, ni)
	m.userFactors = gaussianMatrix(rng, nu, m.cfg.Factors, 0.1)
	m.itemFactors = gaussianMatrix(rng, ni, m.cfg.Factors, 0.1)

	train, holdout := data, []triple(nil)
	if len(data) >= minHoldoutRows && m.cfg.HoldoutFraction > 0 {
		rng.Shuffle(len(data), func(a, b int) { data[a], data[b] = data[b], data[a] })
		cut := len(data) - int(float64(len(data))*m.cfg.HoldoutFraction)
		if cut < 1 {
			cut = 1
		}
		train, holdout = data[:cut], data[cut:]
	}

	lr, reg := m.cfg.LearningRate, m.cfg.Regularization
	epochRMSE := make([]float64, 0, m.cfg.Epochs)
	holdoutRMSE := 0.0

	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			m.trained = false
			return recommend.TrainMetrics{}, fmt.Errorf("sgd training cancelled at epoch %d: %w", epoch, err)
		}

		rng.Shuffle(len(train), func(a, b int) { train[a], train[b] = train[b], train[a] })

		sqErr := 0.0
		for _, t := range train {
			pu, qi := m.userFactors[t.u], m.itemFactors[t.i]
			pred := m.globalMean + m.userBias[t.u] + m.itemBias[t.i] + dot(pu, qi)
			err := t.r - pred
			sqErr += err * err

			m.userBias[t.u] += lr * (err - reg*m.userBias[t.u])
			m.itemBias[t.i] += lr * (err - reg*m.itemBias[t.i])

			// Update against the pre-step user vector so the two
			// gradients come from the same prediction.
			for f := 0; f < m.cfg.Factors; f++ {
				puf := pu[f]
				pu[f] += lr * (err*qi[f] - reg*puf)
				qi[f] += lr * (err*puf - reg*qi[f])
			}
		}
		trainRMSE := math.Sqrt(sqErr / float64(len(train)))
		epochRMSE = append(epochRMSE, trainRMSE)

		if len(holdout) > 0 {
			hs := 0.0
			for _, t := range holdout {
				pred := m.predictIndexLocked(t.u, t.i)
				hs += (t.r - pred) * (t.r - pred)
			}
			holdoutRMSE = math.Sqrt(hs / float64(len(holdout)))
		} else {
			holdoutRMSE = trainRMSE
		}

		m.logger.Debug().
			Int("epoch", epoch+1).
			Float64("train_rmse", trainRMSE).
			Float64("holdout_rmse", holdoutRMSE).
			Msg("sgd epoch complete")
	}

	m.trained = true
	metrics := recommend.TrainMetrics{
		TrainRMSE:   epochRMSE[len(epochRMSE)-1],
		HoldoutRMSE: holdoutRMSE,
		EpochRMSE:   epochRMSE,
		Users:       nu,
		Items:       ni,
		Rows:        len(rows),
	}
	m.logger.Info().
		Int("users", nu).
		Int("items", ni).
		Int("rows", len(rows)).
		Float64("train_rmse", metrics.TrainRMSE).
		Float64("holdout_rmse", metrics.HoldoutRMSE).
		Msg("sgd training complete")
	return metrics, nil
}

// predictIndexLocked scores an encoded (user, item) pair, clamped to the
// rating scale. Callers hold at least a read lock.
func (m *SGD) predictIndexLocked(u, i int) float64 {
	pred := m.globalMean + m.userBias[u] + m.itemBias[i] + dot(m.userFactors[u], m.itemFactors[i])
	if pred < 1.0 {
		return 1.0
	}
	if pred > 5.0 {
		return 5.0
	}
	return pred
}

// PredictRating scores a single (user, item) pair on the 1..5 scale.
func (m *SGD) PredictRating(userID, itemID string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return 0, recommend.ErrModelNotTrained
	}
	u, err := m.users.Encode(userID)
	if err != nil {
		return 0, err
	}
	i, err := m.items.Encode(itemID)
	if err != nil {
		return 0, err
	}
	return m.predictIndexLocked(u, i), nil
}

// RecommendForUser implements recommend.Model.
func (m *SGD) RecommendForUser(userID string, topK int, exclude map[string]struct{}) ([]recommend.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return nil, recommend.ErrModelNotTrained
	}
	u, err := m.users.Encode(userID)
	if err != nil {
		// Cold-start user: empty result, the caller falls back.
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
			Score:  m.predictIndexLocked(u, i),
		})
	}
	return topKRecommendations(recs, topK), nil
}

// SimilarItems implements recommend.Model.
func (m *SGD) SimilarItems(itemID string, topK int) ([]recommend.Recommendation, error) {
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

// sgdState is the gob wire form of the trained parameters.
type sgdState struct {
	Factors     int
	GlobalMean  float64
	UserBias    []float64
	ItemBias    []float64
	UserFactors [][]float64
	ItemFactors [][]float64
}

// encoderPair is the gob wire form of the matched identifier encoders.
type encoderPair struct {
	Users *encoding.Encoder
	Items *encoding.Encoder
}

// EncodeState implements recommend.PersistableModel.
func (m *SGD) EncodeState() ([]byte, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.trained {
		return nil, nil, recommend.ErrModelNotTrained
	}

	var modelBuf bytes.Buffer
	if err := gob.NewEncoder(&modelBuf).Encode(sgdState{
		Factors:     m.cfg.Factors,
		GlobalMean:  m.globalMean,
		UserBias:    m.userBias,
		ItemBias:    m.itemBias,
		UserFactors: m.userFactors,
		ItemFactors: m.itemFactors,
	}); err != nil {
		return nil, nil, fmt.Errorf("encode sgd parameters: %w", err)
	}

	var encBuf bytes.Buffer
	if err := gob.NewEncoder(&encBuf).Encode(encoderPair{Users: m.users, Items: m.items}); err != nil {
		return nil, nil, fmt.Errorf("encode identifier encoders: %w", err)
	}
	return modelBuf.Bytes(), encBuf.Bytes(), nil
}

// DecodeState implements recommend.PersistableModel. The parameter matrices
// must agree with the encoder class counts; a disagreement means the two
// blobs come from different training runs and is rejected.
func (m *SGD) DecodeState(model, encoders []byte) error {
	var st sgdState
	if err := gob.NewDecoder(bytes.NewReader(model)).Decode(&st); err != nil {
		return fmt.Errorf("decode sgd parameters: %w", err)
	}
	var pair encoderPair
	if err := gob.NewDecoder(bytes.NewReader(encoders)).Decode(&pair); err != nil {
		return fmt.Errorf("decode identifier encoders: %w", err)
	}
	if pair.Users == nil || pair.Items == nil {
		return fmt.Errorf("%w: encoder blob missing user or item encoder", recommend.ErrArtifactMismatch)
	}
	if len(st.UserFactors) != pair.Users.Len() || len(st.UserBias) != pair.Users.Len() {
		return fmt.Errorf("%w: %d user rows vs %d encoded users",
			recommend.ErrArtifactMismatch, len(st.UserFactors), pair.Users.Len())
	}
	if len(st.ItemFactors) != pair.Items.Len() || len(st.ItemBias) != pair.Items.Len() {
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
	m.globalMean = st.GlobalMean
	m.userBias = st.UserBias
	m.itemBias = st.ItemBias
	m.userFactors = st.UserFactors
	m.itemFactors = st.ItemFactors
	m.users = pair.Users
	m.items = pair.Items
	m.trained = true
	return nil
}

// viableTable rejects tables too small to factorize.
func viableTable(rows []recommend.RatingRow) error {
	users := make(map[string]struct{})
	items := make(map[string]struct{})
	for _, r := range rows {
		users[r.UserID] = struct{}{}
		items[r.ItemID] = struct{}{}
	}
	if len(rows) < 2 || len(users) < 2 || len(items) < 2 {
		return fmt.Errorf("%w: %d rows, %d users, %d items",
			recommend.ErrInsufficientData, len(rows), len(users), len(items))
	}
	return nil
}
