// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/wayfarer/config.yaml",
	"/etc/wayfarer/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file (if one exists)
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches for a config file, honoring CONFIG_PATH first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive from environment variables.
var sliceConfigPaths = []string{
	"eval.metrics.ks",
}

// processSliceFields converts comma-separated env values to slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("config: set %s: %w", path, err)
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so unrelated environment keys cannot
// pollute the configuration.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - LOG_LEVEL -> logging.level
//   - CACHE_BACKEND -> cache.backend
//   - RECOMMEND_ALGORITHM -> recommend.trainer.algorithm
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_read_timeout":     "server.read_timeout",
		"http_write_timeout":    "server.write_timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",

		// Logging mappings
		"log_level":     "logging.level",
		"log_format":    "logging.format",
		"log_caller":    "logging.caller",
		"log_timestamp": "logging.timestamp",

		// Cache mappings
		"cache_backend":    "cache.backend",
		"cache_ttl":        "cache.ttl",
		"cache_key_prefix": "cache.key_prefix",
		"redis_addr":       "cache.redis_addr",
		"redis_password":   "cache.redis_password",
		"redis_db":         "cache.redis_db",

		// Serving mappings
		"recommend_default_top_k": "recommend.service.default_top_k",
		"recommend_max_top_k":     "recommend.service.max_top_k",
		"recommend_cache_ttl":     "recommend.service.cache_ttl",

		// Preprocessing mappings
		"recommend_min_user_interactions": "recommend.preprocessor.min_user_interactions",
		"recommend_min_item_interactions": "recommend.preprocessor.min_item_interactions",

		// Training schedule mappings
		"recommend_algorithm":      "recommend.trainer.algorithm",
		"recommend_train_interval": "recommend.trainer.interval",
		"recommend_min_rows":       "recommend.trainer.min_rows",
		"recommend_eval_fraction":  "recommend.trainer.eval_fraction",
		"recommend_eval_seed":      "recommend.trainer.eval_seed",
		"recommend_keep_versions":  "recommend.trainer.keep_versions",

		// SGD hyperparameter mappings
		"sgd_factors":          "sgd.factors",
		"sgd_epochs":           "sgd.epochs",
		"sgd_learning_rate":    "sgd.learning_rate",
		"sgd_regularization":   "sgd.regularization",
		"sgd_holdout_fraction": "sgd.holdout_fraction",
		"sgd_seed":             "sgd.seed",

		// ALS hyperparameter mappings
		"als_factors":        "als.factors",
		"als_iterations":     "als.iterations",
		"als_regularization": "als.regularization",
		"als_alpha":          "als.alpha",
		"als_workers":        "als.workers",
		"als_seed":           "als.seed",

		// Evaluation mappings
		"eval_enabled":            "eval.enabled",
		"eval_ks":                 "eval.metrics.ks",
		"eval_positive_threshold": "eval.metrics.positive_threshold",

		// Artifact storage mappings
		"model_storage_enabled": "storage.enabled",
		"model_storage_dir":     "storage.dir",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
