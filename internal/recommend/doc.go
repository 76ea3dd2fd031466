// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

// Package recommend is the core of the experience recommendation engine:
// interaction preprocessing, model lifecycle, and request serving.
//
// # Architecture
//
// The package owns the domain types and the two long-lived components:
//
//   - Service: answers recommendation, similarity, and interaction requests
//     against the currently served model, with a cache in front and a
//     popularity fallback behind it.
//   - Trainer: runs the retrain pipeline (load, preprocess, fit, evaluate,
//     persist, swap) on a schedule or on demand.
//
// Concrete factorization models live in the algorithms subpackage and are
// injected through the Model, PersistableModel, and FallbackTrainer
// interfaces, keeping this package free of algorithm imports.
//
// # Design Principles
//
//   - Deterministic: seeded RNG everywhere, identical inputs give identical
//     models and rankings
//   - Observable: structured zerolog fields on every pipeline stage
//   - Non-blocking: model swaps are atomic pointer exchanges, serving never
//     waits on training
//   - Degradable: cache failures count as misses, persistence failures do
//     not fail a training run
//
// # Usage
//
//	svc := recommend.NewService(cfg.Service, provider, cacheStore, logger)
//	trainer := recommend.NewTrainer(cfg.Trainer, provider, pre, svc,
//	    artifacts, newModel, newFallback, evalFn, logger)
//
//	go trainer.Start(ctx)
//
//	resp, err := svc.Recommend(ctx, recommend.Request{
//	    UserID: userID,
//	    TopK:   20,
//	})
//
// # Thread Safety
//
// Service is safe for concurrent use; the served model is read through an
// atomic snapshot. Trainer serializes runs with a mutex and reports
// ErrTrainingInProgress to overlapping callers.
package recommend
