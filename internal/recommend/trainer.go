// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/recommend/storage"
)

// FallbackTrainer is a Fallback that can be fitted from a rating table.
type FallbackTrainer interface {
	Fallback
	Train(rows []RatingRow)
}

// EvalFunc receives the trained model together with the split it was
// trained on, for offline ranking evaluation. Wired by the caller so this
// package stays free of a dependency on the evaluation code. The returned
// map ("precision@10", "ndcg@5", ...) is stored in the artifact metadata;
// nil skips that.
type EvalFunc func(ctx context.Context, model Model, train, test []RatingRow) map[string]float64

// TrainerConfig controls the retrain pipeline.
type TrainerConfig struct {
	// Algorithm selects the factorization variant to train.
	Algorithm string `koanf:"algorithm" json:"algorithm" validate:"oneof=sgd als"`

	// Interval is the scheduled retrain cadence. Zero disables the
	// scheduler; Run can still be invoked manually.
	Interval time.Duration `koanf:"interval" json:"interval" validate:"gte=0"`

	// MinRows is the smallest preprocessed table worth training on.
	MinRows int `koanf:"min_rows" json:"min_rows" validate:"gte=2"`

	// EvalFraction is the share of rows held out for ranking evaluation
	// when an EvalFunc is wired. The served model trains on the rest.
	EvalFraction float64 `koanf:"eval_fraction" json:"eval_fraction" validate:"gte=0,lt=1"`

	// EvalSeed fixes the evaluation split.
	EvalSeed int64 `koanf:"eval_seed" json:"eval_seed"`

	// KeepVersions bounds how many artifact versions survive pruning.
	KeepVersions int `koanf:"keep_versions" json:"keep_versions" validate:"gte=1"`
}

// DefaultTrainerConfig returns production defaults.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Algorithm:    "sgd",
		Interval:     6 * time.Hour,
		MinRows:      10,
		EvalFraction: 0.2,
		EvalSeed:     42,
		KeepVersions: 3,
	}
}

// TrainResult reports one completed retrain.
type TrainResult struct {
	// Algorithm is the trained variant.
	Algorithm string `json:"algorithm"`

	// Metrics is the model's own training report.
	Metrics TrainMetrics `json:"metrics"`

	// TableStats describes the preprocessed input.
	TableStats TableStats `json:"table_stats"`

	// ArtifactVersion is the persisted artifact version, zero when
	// persistence is disabled.
	ArtifactVersion int `json:"artifact_version,omitempty"`

	// ModelVersion is the served model version after the swap.
	ModelVersion int `json:"model_version"`

	// TrainedAt is when training finished.
	TrainedAt time.Time `json:"trained_at"`

	// Duration is the wall-clock time of the whole pipeline.
	Duration time.Duration `json:"duration"`
}

// Trainer runs the retrain pipeline: load interactions, preprocess, fit the
// popularity fallback and the factorization model, evaluate, persist, and
// swap the live bundle. Runs never overlap; a second request while one is
// in flight fails fast with ErrTrainingInProgress.
type Trainer struct {
	cfg    TrainerConfig
	logger zerolog.Logger

	provider DataProvider
	pre      *Preprocessor
	service  *Service
	store    *storage.Store

	newModel    func() PersistableModel
	newFallback func() FallbackTrainer
	evalFn      EvalFunc
	onResult    func(TrainResult, error)

	runMu sync.Mutex
}

// OnResult registers a hook invoked after every completed training attempt,
// successful or not. Set it before Start; it is not safe to change while
// runs are in flight.
func (t *Trainer) OnResult(fn func(TrainResult, error)) {
	t.onResult = fn
}

// NewTrainer wires the pipeline. store may be nil to disable persistence;
// evalFn may be nil to skip offline evaluation.
func NewTrainer(
	cfg TrainerConfig,
	provider DataProvider,
	pre *Preprocessor,
	service *Service,
	store *storage.Store,
	newModel func() PersistableModel,
	newFallback func() FallbackTrainer,
	evalFn EvalFunc,
	logger zerolog.Logger,
) *Trainer {
	return &Trainer{
		cfg:         cfg,
		logger:      logger.With().Str("component", "trainer").Logger(),
		provider:    provider,
		pre:         pre,
		service:     service,
		store:       store,
		newModel:    newModel,
		newFallback: newFallback,
		evalFn:      evalFn,
	}
}

// Run executes one full retrain. On ErrInsufficientData the previously
// served model stays live.
func (t *Trainer) Run(ctx context.Context) (result TrainResult, err error) {
	if !t.runMu.TryLock() {
		return TrainResult{}, ErrTrainingInProgress
	}
	defer t.runMu.Unlock()
	defer func() {
		if t.onResult != nil {
			t.onResult(result, err)
		}
	}()

	start := time.Now()

	events, err := t.provider.Interactions(ctx)
	if err != nil {
		return TrainResult{}, fmt.Errorf("load interactions: %w", err)
	}
	table, err := t.pre.Build(events)
	if err != nil {
		return TrainResult{}, fmt.Errorf("build rating table: %w", err)
	}
	if table.Stats.Rows < t.cfg.MinRows {
		return TrainResult{}, fmt.Errorf("%w: %d rows, need %d",
			ErrInsufficientData, table.Stats.Rows, t.cfg.MinRows)
	}
	t.logger.Info().Str("table", table.Stats.Describe()).Msg("training input ready")

	trainRows, testRows := t.evalSplit(table.Rows)

	fallback := t.newFallback()
	fallback.Train(table.Rows)

	model := t.newModel()
	metrics, err := model.Train(ctx, trainRows)
	if err != nil {
		return TrainResult{}, fmt.Errorf("train %s: %w", t.cfg.Algorithm, err)
	}

	var evalMetrics map[string]float64
	if t.evalFn != nil && len(testRows) > 0 {
		evalMetrics = t.evalFn(ctx, model, trainRows, testRows)
	}

	trainedAt := time.Now().UTC()
	result = TrainResult{
		Algorithm:  t.cfg.Algorithm,
		Metrics:    metrics,
		TableStats: table.Stats,
		TrainedAt:  trainedAt,
	}

	if t.store != nil {
		version, err := t.persist(model, metrics, evalMetrics, trainedAt, time.Since(start))
		if err != nil {
			// Persistence failure is not fatal to serving; the fresh
			// model still goes live.
			t.logger.Error().Err(err).Msg("persist model artifact")
		} else {
			result.ArtifactVersion = version
		}
	}

	result.ModelVersion = t.service.SwapModel(ctx, model, fallback, trainedAt)
	result.Duration = time.Since(start)

	t.logger.Info().
		Str("algorithm", result.Algorithm).
		Int("model_version", result.ModelVersion).
		Int("artifact_version", result.ArtifactVersion).
		Dur("duration", result.Duration).
		Msg("retrain complete")
	return result, nil
}

// Running reports whether a training run is currently in flight.
func (t *Trainer) Running() bool {
	if t.runMu.TryLock() {
		t.runMu.Unlock()
		return false
	}
	return true
}

// evalSplit carves a seeded holdout off the rating table when evaluation is
// enabled. Tables too small to split train on everything.
func (t *Trainer) evalSplit(rows []RatingRow) (train, test []RatingRow) {
	if t.evalFn == nil || t.cfg.EvalFraction <= 0 || len(rows) < 10 {
		return rows, nil
	}
	shuffled := append([]RatingRow(nil), rows...)
	rng := rand.New(rand.NewSource(t.cfg.EvalSeed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	cut := len(shuffled) - int(float64(len(shuffled))*t.cfg.EvalFraction)
	if cut < 1 {
		cut = 1
	}
	return shuffled[:cut], shuffled[cut:]
}

func (t *Trainer) persist(model PersistableModel, metrics TrainMetrics, evalMetrics map[string]float64, trainedAt time.Time, elapsed time.Duration) (int, error) {
	modelBlob, encBlob, err := model.EncodeState()
	if err != nil {
		return 0, fmt.Errorf("encode state: %w", err)
	}
	hyper, err := json.Marshal(model.Hyperparameters())
	if err != nil {
		return 0, fmt.Errorf("encode hyperparameters: %w", err)
	}
	meta, err := t.store.Save(storage.Artifact{
		Metadata: storage.Metadata{
			Algorithm:          model.Name(),
			TrainedAt:          trainedAt,
			Users:              metrics.Users,
			Items:              metrics.Items,
			Rows:               metrics.Rows,
			Hyperparameters:    hyper,
			Metrics:            metadataMetrics(metrics, evalMetrics),
			TrainingDurationMS: elapsed.Milliseconds(),
		},
		Model:    modelBlob,
		Encoders: encBlob,
	})
	if err != nil {
		return 0, err
	}
	if err := t.store.Prune(model.Name(), t.cfg.KeepVersions); err != nil {
		t.logger.Warn().Err(err).Msg("prune old artifacts")
	}
	return meta.Version, nil
}

// metadataMetrics merges the model's own training report with the offline
// ranking metrics into the flat map stored in the artifact sidecar.
func metadataMetrics(m TrainMetrics, evalMetrics map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(evalMetrics)+3)
	for k, v := range evalMetrics {
		out[k] = v
	}
	if m.TrainRMSE > 0 {
		out["train_rmse"] = m.TrainRMSE
	}
	if m.HoldoutRMSE > 0 {
		out["holdout_rmse"] = m.HoldoutRMSE
	}
	if m.Objective > 0 {
		out["objective"] = m.Objective
	}
	return out
}

// LoadLatest restores the most recent persisted model and swaps it live,
// refitting the popularity fallback from current interactions. With no
// stored artifact it publishes the fallback alone, so cold deployments can
// serve popularity until the first retrain.
func (t *Trainer) LoadLatest(ctx context.Context) error {
	events, err := t.provider.Interactions(ctx)
	if err != nil {
		return fmt.Errorf("load interactions: %w", err)
	}
	// An empty table is survivable here: a stored artifact can still be
	// restored, and the fallback simply starts cold.
	table, err := t.pre.Build(events)
	if err != nil {
		t.logger.Warn().Err(err).Msg("no usable interactions, fallback starts cold")
	}

	fallback := t.newFallback()
	fallback.Train(table.Rows)

	var model PersistableModel
	trainedAt := time.Now().UTC()
	if t.store != nil {
		artifact, err := t.store.Load(t.cfg.Algorithm, 0)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			t.logger.Info().Str("algorithm", t.cfg.Algorithm).Msg("no stored artifact, serving fallback only")
		case err != nil:
			return fmt.Errorf("load artifact: %w", err)
		default:
			m := t.newModel()
			if err := m.DecodeState(artifact.Model, artifact.Encoders); err != nil {
				return fmt.Errorf("restore %s v%d: %w", t.cfg.Algorithm, artifact.Metadata.Version, err)
			}
			model = m
			trainedAt = artifact.Metadata.TrainedAt
			t.logger.Info().
				Str("algorithm", t.cfg.Algorithm).
				Int("artifact_version", artifact.Metadata.Version).
				Msg("model restored from artifact")
		}
	}

	t.service.SwapModel(ctx, model, fallback, trainedAt)
	return nil
}

// Start runs the retrain scheduler until the context is cancelled. An
// immediate run happens first so a fresh deployment does not wait a full
// interval for its model.
func (t *Trainer) Start(ctx context.Context) {
	if _, err := t.Run(ctx); err != nil && !errors.Is(err, ErrInsufficientData) {
		t.logger.Error().Err(err).Msg("initial training run failed")
	}
	if t.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.Run(ctx); err != nil {
				if errors.Is(err, ErrInsufficientData) {
					t.logger.Warn().Err(err).Msg("scheduled retrain skipped")
				} else {
					t.logger.Error().Err(err).Msg("scheduled retrain failed")
				}
			}
		}
	}
}
