// Package config loads and validates clinscribe configuration from YAML with
// environment overrides for secrets and ports.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration object handed to services at startup.
type Config struct {
	Gate    GateConfig    `yaml:"gate"`
	Models  ModelsConfig  `yaml:"models"`
	Scrub   ScrubConfig   `yaml:"scrub"`
	Prompt  PromptConfig  `yaml:"prompt"`
	Stream  StreamConfig  `yaml:"stream"`
	Compose ComposeConfig `yaml:"compose"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// GateConfig holds the meaningful-change gate thresholds.
type GateConfig struct {
	AutoThresholdChars        int     `yaml:"auto_threshold_chars"`
	AutoThresholdPct          float64 `yaml:"auto_threshold_pct"`
	ManualThresholdChars      int     `yaml:"manual_threshold_chars"`
	ManualThresholdPct        float64 `yaml:"manual_threshold_pct"`
	ColdStartChars            int     `yaml:"cold_start_chars"`
	SemanticDistanceAutoMin   float64 `yaml:"semantic_distance_auto_min"`
	SemanticDistanceManualMin float64 `yaml:"semantic_distance_manual_min"`
	EmbeddingModel            string  `yaml:"embedding_model"`
}

// ModelsConfig maps request intents to model ids.
type ModelsConfig struct {
	ByIntent map[string]string `yaml:"by_intent"`
}

// ScrubConfig holds PHI scrubbing settings.
type ScrubConfig struct {
	Policy string `yaml:"policy"`
}

// PromptConfig holds prompt-builder settings.
type PromptConfig struct {
	StableCacheSize int    `yaml:"stable_cache_size"`
	SchemaVersion   string `yaml:"schema_version"`
	PolicyVersion   string `yaml:"policy_version"`
}

// StreamConfig holds encounter delta stream settings. Durations are given in
// YAML as Go duration strings ("500ms", "10s") and parsed at initialization.
type StreamConfig struct {
	MinIntervalRaw  string `yaml:"min_interval"`
	WriteTimeoutRaw string `yaml:"write_timeout"`

	MinInterval  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
}

// ComposeConfig holds compose-pipeline settings.
type ComposeConfig struct {
	BeautifyModel string  `yaml:"beautify_model"`
	Temperature   float64 `yaml:"temperature"`
}

// HTTPConfig holds the HTTP server settings.
type HTTPConfig struct {
	Port string `yaml:"port"`
}

// Intent constants recognized by the gate's model mapping.
const (
	IntentAuto           = "auto"
	IntentFinalize       = "finalize"
	IntentBeautify       = "beautify"
	IntentPatientSummary = "patient_summary"
	IntentPlanAssist     = "plan_assist"
	IntentManual         = "manual"
)

// applyDefaults fills zero values with production defaults.
func (c *Config) applyDefaults() {
	if c.Gate.AutoThresholdChars == 0 {
		c.Gate.AutoThresholdChars = 40
	}
	if c.Gate.AutoThresholdPct == 0 {
		c.Gate.AutoThresholdPct = 0.05
	}
	if c.Gate.ManualThresholdChars == 0 {
		c.Gate.ManualThresholdChars = 24
	}
	if c.Gate.ManualThresholdPct == 0 {
		c.Gate.ManualThresholdPct = 0.03
	}
	if c.Gate.ColdStartChars == 0 {
		c.Gate.ColdStartChars = 500
	}
	if c.Gate.SemanticDistanceAutoMin == 0 {
		c.Gate.SemanticDistanceAutoMin = 0.15
	}
	if c.Gate.SemanticDistanceManualMin == 0 {
		c.Gate.SemanticDistanceManualMin = 0.08
	}
	if c.Gate.EmbeddingModel == "" {
		c.Gate.EmbeddingModel = "text-embedding-3-small"
	}

	if c.Models.ByIntent == nil {
		c.Models.ByIntent = map[string]string{}
	}
	defaults := map[string]string{
		IntentAuto:           "gpt-4o",
		IntentFinalize:       "gpt-4o",
		IntentBeautify:       "gpt-4o-mini",
		IntentPatientSummary: "gpt-4o-mini",
		IntentPlanAssist:     "gpt-4o",
		IntentManual:         "gpt-4o-mini",
	}
	for intent, model := range defaults {
		if _, ok := c.Models.ByIntent[intent]; !ok {
			c.Models.ByIntent[intent] = model
		}
	}

	if c.Scrub.Policy == "" {
		c.Scrub.Policy = "minimum"
	}
	if c.Prompt.StableCacheSize == 0 {
		c.Prompt.StableCacheSize = 32
	}
	if c.Prompt.SchemaVersion == "" {
		c.Prompt.SchemaVersion = "2025-06"
	}
	if c.Prompt.PolicyVersion == "" {
		c.Prompt.PolicyVersion = "v3"
	}
	if c.Stream.MinIntervalRaw == "" {
		c.Stream.MinInterval = 500 * time.Millisecond
	}
	if c.Stream.WriteTimeoutRaw == "" {
		c.Stream.WriteTimeout = 10 * time.Second
	}
	if c.Compose.BeautifyModel == "" {
		c.Compose.BeautifyModel = "gpt-4o-mini"
	}
	if c.Compose.Temperature == 0 {
		c.Compose.Temperature = 0.3
	}
	if c.HTTP.Port == "" {
		c.HTTP.Port = "8080"
	}
}

// validate rejects configurations the services cannot operate under.
func validate(c *Config) error {
	if c.Gate.AutoThresholdChars < 0 || c.Gate.ManualThresholdChars < 0 {
		return fmt.Errorf("gate thresholds must be non-negative")
	}
	if c.Gate.AutoThresholdPct < 0 || c.Gate.AutoThresholdPct > 1 {
		return fmt.Errorf("gate.auto_threshold_pct must be in [0,1], got %v", c.Gate.AutoThresholdPct)
	}
	if c.Gate.ManualThresholdPct < 0 || c.Gate.ManualThresholdPct > 1 {
		return fmt.Errorf("gate.manual_threshold_pct must be in [0,1], got %v", c.Gate.ManualThresholdPct)
	}
	if c.Gate.SemanticDistanceAutoMin < 0 || c.Gate.SemanticDistanceAutoMin > 1 ||
		c.Gate.SemanticDistanceManualMin < 0 || c.Gate.SemanticDistanceManualMin > 1 {
		return fmt.Errorf("gate semantic distance minimums must be in [0,1]")
	}
	if p := c.Scrub.Policy; p != "minimum" && p != "off" {
		return fmt.Errorf("scrub.policy must be \"minimum\" or \"off\", got %q", p)
	}
	if c.Stream.MinIntervalRaw != "" {
		d, err := time.ParseDuration(c.Stream.MinIntervalRaw)
		if err != nil {
			return fmt.Errorf("stream.min_interval: %w", err)
		}
		c.Stream.MinInterval = d
	}
	if c.Stream.WriteTimeoutRaw != "" {
		d, err := time.ParseDuration(c.Stream.WriteTimeoutRaw)
		if err != nil {
			return fmt.Errorf("stream.write_timeout: %w", err)
		}
		c.Stream.WriteTimeout = d
	}
	if c.Prompt.StableCacheSize < 16 {
		return fmt.Errorf("prompt.stable_cache_size must be at least 16, got %d", c.Prompt.StableCacheSize)
	}
	if c.Stream.MinInterval < 0 {
		return fmt.Errorf("stream.min_interval must be non-negative")
	}
	for _, intent := range []string{IntentAuto, IntentManual} {
		if c.Models.ByIntent[intent] == "" {
			return fmt.Errorf("models.by_intent missing required intent %q", intent)
		}
	}
	return nil
}
