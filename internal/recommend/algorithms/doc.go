// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

// Package algorithms implements the matrix-factorization models and the
// popularity fallback behind the recommendation service.
//
// Two factorization variants ship. The explicit-feedback model learns biased
// latent factors by stochastic gradient descent over derived ratings. The
// implicit-feedback model learns confidence-weighted factors by alternating
// least squares. Both satisfy recommend.PersistableModel and are safe for
// concurrent scoring while a retrain is in flight elsewhere; callers swap
// whole model instances rather than mutating a live one.
//
// The popularity recommender is the non-personalized fallback used for
// cold-start users and as a safety net when a factorization model returns
// too few results.
package algorithms
