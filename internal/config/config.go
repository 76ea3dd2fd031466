// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

// Package config loads and validates the Wayfarer application configuration.
//
// Configuration is layered with Koanf v2: built-in defaults, then an optional
// YAML file, then environment variables. Environment variables take the
// highest precedence:
//
//	HTTP_PORT=8080 LOG_LEVEL=debug CACHE_BACKEND=redis ./wayfarer
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wayfarerhq/wayfarer/internal/cache"
	"github.com/wayfarerhq/wayfarer/internal/logging"
	"github.com/wayfarerhq/wayfarer/internal/recommend"
	"github.com/wayfarerhq/wayfarer/internal/recommend/algorithms"
	"github.com/wayfarerhq/wayfarer/internal/recommend/evaluate"
)

// Config is the root application configuration.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `koanf:"server" json:"server"`

	// Logging configures the zerolog global logger.
	Logging logging.Config `koanf:"logging" json:"logging"`

	// Cache configures the recommendation cache backend.
	Cache cache.Config `koanf:"cache" json:"cache"`

	// Recommend configures serving, preprocessing, and the training schedule.
	Recommend recommend.Config `koanf:"recommend" json:"recommend"`

	// SGD holds hyperparameters for the explicit-feedback factorization model.
	SGD algorithms.SGDConfig `koanf:"sgd" json:"sgd"`

	// ALS holds hyperparameters for the implicit-feedback factorization model.
	ALS algorithms.ALSConfig `koanf:"als" json:"als"`

	// Eval configures offline ranking evaluation after each training run.
	Eval EvalConfig `koanf:"eval" json:"eval"`

	// Storage configures model artifact persistence.
	Storage StorageConfig `koanf:"storage" json:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the listen address. Default: 0.0.0.0
	Host string `koanf:"host" json:"host" validate:"required"`

	// Port is the listen port. Default: 8680
	Port int `koanf:"port" json:"port" validate:"gte=1,lte=65535"`

	// ReadTimeout bounds request reads. Default: 15s
	ReadTimeout time.Duration `koanf:"read_timeout" json:"read_timeout" validate:"gt=0"`

	// WriteTimeout bounds response writes. Default: 30s
	WriteTimeout time.Duration `koanf:"write_timeout" json:"write_timeout" validate:"gt=0"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" validate:"gt=0"`
}

// EvalConfig holds offline evaluation settings.
type EvalConfig struct {
	// Enabled turns on the post-training evaluation hook.
	Enabled bool `koanf:"enabled" json:"enabled"`

	// Ranking metric cutoffs and relevance threshold.
	Metrics evaluate.Config `koanf:"metrics" json:"metrics"`
}

// StorageConfig holds model artifact persistence settings.
type StorageConfig struct {
	// Enabled turns on artifact persistence. When disabled the engine
	// retrains from scratch on every start.
	Enabled bool `koanf:"enabled" json:"enabled"`

	// Dir is the directory artifacts are written to.
	Dir string `koanf:"dir" json:"dir"`
}

// Default returns a Config with all default values applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8680,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging:   logging.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Recommend: recommend.DefaultConfig(),
		SGD:       algorithms.DefaultSGDConfig(),
		ALS:       algorithms.DefaultALSConfig(),
		Eval: EvalConfig{
			Enabled: true,
			Metrics: evaluate.DefaultConfig(),
		},
		Storage: StorageConfig{
			Enabled: true,
			Dir:     "/data/wayfarer/models",
		},
	}
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Recommend.Validate(); err != nil {
		return err
	}
	if c.Storage.Enabled && c.Storage.Dir == "" {
		return fmt.Errorf("config: storage.dir is required when storage is enabled")
	}
	for _, k := range c.Eval.Metrics.Ks {
		if k < 1 {
			return fmt.Errorf("config: eval cutoff %d must be positive", k)
		}
	}
	return nil
}
