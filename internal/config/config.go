// Package config holds the process configuration for the triage engine.
// All values are fixed at process start; nothing here is runtime-tunable.
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// Config is the full configuration surface. Zero values are filled in from
// Default() on load, so a partial YAML file only overrides what it names.
type Config struct {
	// MaxFeatures bounds the TF-IDF vocabulary size.
	MaxFeatures int `yaml:"max_features"`
	// NgramMin and NgramMax select the n-gram range (1..2 = unigrams+bigrams).
	NgramMin int `yaml:"ngram_min"`
	NgramMax int `yaml:"ngram_max"`
	// DuplicateThreshold is the inclusive cosine-similarity cutoff for
	// marking a bug as a duplicate.
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	// ConfidenceThreshold is the cutoff below which a classification is
	// counted as needing human review.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// RetrainOverrideCount is the number of human overrides since the active
	// model version that triggers a retrain.
	RetrainOverrideCount int `yaml:"retrain_override_count"`
	// Labels is the fixed classification label set.
	Labels []string `yaml:"labels"`
	// Lemmatizer selects the token-reduction capability: "none" or "plural".
	// Resolved once at startup; the normalizer never probes per call.
	Lemmatizer string `yaml:"lemmatizer"`

	ModelDir string `yaml:"model_dir"`
	DBPath   string `yaml:"db_path"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxFeatures:          250,
		NgramMin:             1,
		NgramMax:             2,
		DuplicateThreshold:   0.92,
		ConfidenceThreshold:  0.60,
		RetrainOverrideCount: 50,
		Labels:               []string{"valid", "invalid", "duplicate", "enhancement", "wont_fix"},
		Lemmatizer:           "plural",
		ModelDir:             ".bugtriage/models",
		DBPath:               ".bugtriage/bugtriage.db",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load reads a YAML config file and merges it over the defaults.
// A missing path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg.withDefaults(), nil
}

// withDefaults backfills zero values so partial files stay valid.
func (c Config) withDefaults() Config {
	d := Default()
	if c.MaxFeatures <= 0 {
		c.MaxFeatures = d.MaxFeatures
	}
	if c.NgramMin <= 0 {
		c.NgramMin = d.NgramMin
	}
	if c.NgramMax < c.NgramMin {
		c.NgramMax = c.NgramMin
	}
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = d.DuplicateThreshold
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.RetrainOverrideCount <= 0 {
		c.RetrainOverrideCount = d.RetrainOverrideCount
	}
	if len(c.Labels) == 0 {
		c.Labels = d.Labels
	}
	if c.Lemmatizer == "" {
		c.Lemmatizer = d.Lemmatizer
	}
	if c.ModelDir == "" {
		c.ModelDir = d.ModelDir
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	return c
}
