// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package recommend

import "errors"

var (
	// ErrInsufficientData is returned when the preprocessed rating table
	// is too small to train a viable model. Callers are expected to keep
	// serving from the previous model or the popularity fallback.
	ErrInsufficientData = errors.New("recommend: insufficient interaction data")

	// ErrModelNotTrained is returned when scoring is attempted before the
	// model has been trained or loaded.
	ErrModelNotTrained = errors.New("recommend: model not trained")

	// ErrArtifactMismatch is returned when a persisted model blob and
	// encoder blob do not belong to the same training run.
	ErrArtifactMismatch = errors.New("recommend: model and encoder artifacts do not match")

	// ErrTrainingInProgress is returned when a retrain is requested while
	// another run holds the training lock.
	ErrTrainingInProgress = errors.New("recommend: training already in progress")
)
