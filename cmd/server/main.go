// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

// Package main is the entry point for the Wayfarer recommendation server.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered Koanf v2 loading (defaults, YAML file, env vars)
//  2. Logging: global zerolog setup
//  3. Cache: in-memory TTL store or shared Redis
//  4. Artifact store: on-disk model persistence (optional)
//  5. Service: recommendation serving with atomic model swaps
//  6. Trainer: scheduled retraining with offline evaluation
//  7. HTTP server: chi-routed REST API with Prometheus metrics
//
// On startup the trainer restores the newest persisted model artifact so the
// service answers immediately; the retrain loop then keeps the model fresh
// at the configured interval.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP listener stops
// accepting connections, in-flight requests drain within the configured
// shutdown timeout, and the training scheduler exits.
//
// # Example Usage
//
//	export RECOMMEND_ALGORITHM=als
//	export CACHE_BACKEND=redis
//	export REDIS_ADDR=localhost:6379
//	export MODEL_STORAGE_DIR=/data/wayfarer/models
//	./wayfarer
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/wayfarerhq/wayfarer/internal/api"
	"github.com/wayfarerhq/wayfarer/internal/cache"
	"github.com/wayfarerhq/wayfarer/internal/config"
	"github.com/wayfarerhq/wayfarer/internal/logging"
	"github.com/wayfarerhq/wayfarer/internal/metrics"
	"github.com/wayfarerhq/wayfarer/internal/recommend"
	"github.com/wayfarerhq/wayfarer/internal/recommend/algorithms"
	"github.com/wayfarerhq/wayfarer/internal/recommend/evaluate"
	"github.com/wayfarerhq/wayfarer/internal/recommend/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load configuration")
	}

	logging.Init(cfg.Logging)
	logging.Info().
		Str("algorithm", cfg.Recommend.Trainer.Algorithm).
		Str("cache_backend", string(cfg.Cache.Backend)).
		Msg("starting wayfarer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
	logging.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := cache.NewStore(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("close cache store")
		}
	}()

	var artifacts *storage.Store
	if cfg.Storage.Enabled {
		artifacts, err = storage.NewStore(cfg.Storage.Dir)
		if err != nil {
			return fmt.Errorf("artifact store: %w", err)
		}
	}

	// The in-process provider is the default event source. Deployments
	// with an external event pipeline implement recommend.DataProvider
	// against it and swap this out.
	provider := recommend.NewMemoryProvider()

	service := recommend.NewService(cfg.Recommend.Service, provider, store, logging.WithComponent("service"))
	pre := recommend.NewPreprocessor(cfg.Recommend.Preprocessor, logging.WithComponent("preprocessor"))

	trainer := recommend.NewTrainer(
		cfg.Recommend.Trainer,
		provider,
		pre,
		service,
		artifacts,
		modelFactory(cfg),
		func() recommend.FallbackTrainer {
			return algorithms.NewPopularity(logging.WithComponent("popularity"))
		},
		evalHook(cfg),
		logging.Logger(),
	)
	trainer.OnResult(trainResultRecorder(cfg.Recommend.Trainer.Algorithm))

	if err := trainer.LoadLatest(ctx); err != nil {
		// Serving starts cold; the first scheduled run publishes a model.
		logging.Warn().Err(err).Msg("no model restored at startup")
	}

	go trainer.Start(ctx)

	handler := api.NewHandler(service, trainer)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// modelFactory picks the configured factorization algorithm.
func modelFactory(cfg *config.Config) func() recommend.PersistableModel {
	switch cfg.Recommend.Trainer.Algorithm {
	case "als":
		return func() recommend.PersistableModel {
			return algorithms.NewALS(cfg.ALS, logging.WithComponent("als"))
		}
	default:
		return func() recommend.PersistableModel {
			return algorithms.NewSGD(cfg.SGD, logging.WithComponent("sgd"))
		}
	}
}

// evalHook builds the post-training offline evaluation callback, publishing
// ranking metrics to the Prometheus registry and the log.
func evalHook(cfg *config.Config) recommend.EvalFunc {
	if !cfg.Eval.Enabled {
		return nil
	}
	evaluator := evaluate.New(cfg.Eval.Metrics, logging.WithComponent("evaluate"))

	return func(ctx context.Context, model recommend.Model, train, test []recommend.RatingRow) map[string]float64 {
		report, err := evaluator.Run(ctx, model, train, test)
		if err != nil {
			logging.Error().Err(err).Msg("offline evaluation failed")
			return nil
		}
		out := make(map[string]float64, len(report.AtK)*4)
		for k, m := range report.AtK {
			metrics.RecordEvalMetric("precision", k, m.Precision)
			metrics.RecordEvalMetric("recall", k, m.Recall)
			metrics.RecordEvalMetric("ndcg", k, m.NDCG)
			metrics.RecordEvalMetric("hit_rate", k, m.HitRate)
			out[fmt.Sprintf("precision@%d", k)] = m.Precision
			out[fmt.Sprintf("recall@%d", k)] = m.Recall
			out[fmt.Sprintf("ndcg@%d", k)] = m.NDCG
			out[fmt.Sprintf("hit_rate@%d", k)] = m.HitRate
			logging.Info().
				Int("k", k).
				Float64("precision", m.Precision).
				Float64("recall", m.Recall).
				Float64("ndcg", m.NDCG).
				Float64("hit_rate", m.HitRate).
				Int("users", report.UsersEvaluated).
				Msg("offline evaluation")
		}
		return out
	}
}

// trainResultRecorder publishes training run outcomes to Prometheus. The
// configured algorithm labels failed runs, whose results carry no metadata.
func trainResultRecorder(algorithm string) func(recommend.TrainResult, error) {
	return func(result recommend.TrainResult, err error) {
		switch {
		case err == nil:
			metrics.RecordTrainingRun(result.Algorithm, "success", result.Duration)
			metrics.RecordModelSwap(result.ModelVersion, result.TableStats.Rows)
		case errors.Is(err, recommend.ErrInsufficientData):
			metrics.RecordTrainingRun(algorithm, "insufficient_data", 0)
		default:
			metrics.RecordTrainingRun(algorithm, "error", 0)
		}
	}
}
