package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the YAML file loaded from the config directory.
const ConfigFileName = "clinscribe.yaml"

// Initialize loads, defaults, and validates configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load clinscribe.yaml from configDir (missing file means all-defaults)
//  2. Apply default values
//  3. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.applyDefaults()

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"scrub_policy", cfg.Scrub.Policy,
		"stream_min_interval", cfg.Stream.MinInterval,
		"stable_cache_size", cfg.Prompt.StableCacheSize)
	return cfg, nil
}

// load reads and parses the YAML file. A missing file is not an error; the
// service runs on defaults.
func load(configDir string) (*Config, error) {
	cfg := &Config{}

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}
