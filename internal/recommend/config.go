// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package recommend

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config aggregates the settings of this package's components. Model
// hyperparameters live with the algorithms; this struct covers the serving
// and pipeline side.
type Config struct {
	// Service controls request handling.
	Service ServiceConfig `koanf:"service" json:"service"`

	// Preprocessor controls the interaction-to-rating pipeline.
	Preprocessor PreprocessorConfig `koanf:"preprocessor" json:"preprocessor"`

	// Trainer controls the retrain pipeline and schedule.
	Trainer TrainerConfig `koanf:"trainer" json:"trainer"`
}

// DefaultConfig returns production defaults for every component.
func DefaultConfig() Config {
	return Config{
		Service:      DefaultServiceConfig(),
		Preprocessor: DefaultPreprocessorConfig(),
		Trainer:      DefaultTrainerConfig(),
	}
}

// Validate checks field constraints and cross-field consistency.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid recommend config: %w", err)
	}
	if c.Service.DefaultTopK > c.Service.MaxTopK {
		return fmt.Errorf("invalid recommend config: default_top_k %d exceeds max_top_k %d",
			c.Service.DefaultTopK, c.Service.MaxTopK)
	}
	return nil
}
