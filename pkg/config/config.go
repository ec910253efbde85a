// Package config loads gridpilot.yaml. Unknown keys are rejected so a typo
// in a rule name fails loudly instead of silently using defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full tool configuration.
type Config struct {
	// Document is the default workbook path; the CLI flag overrides it.
	Document string `yaml:"document,omitempty"`
	// ArtifactsDir is where per-turn traces and manifests land.
	ArtifactsDir string `yaml:"artifacts_dir,omitempty"`

	Agent      AgentConfig      `yaml:"agent,omitempty"`
	Correction CorrectionConfig `yaml:"correction,omitempty"`

	// ActionTimeoutSeconds bounds formula-driven actions.
	ActionTimeoutSeconds int `yaml:"action_timeout_seconds,omitempty"`

	// SuspicionRules override the built-in rules. Each entry is a boolean
	// expression over the batch stats environment.
	SuspicionRules []string `yaml:"suspicion_rules,omitempty"`
}

// AgentConfig selects the model endpoint. The API key is always read from
// the environment, never from the file.
type AgentConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// CorrectionConfig bounds the self-correction loop.
type CorrectionConfig struct {
	MaxFailureRounds   int `yaml:"max_failure_rounds"`
	MaxSuspicionRounds int `yaml:"max_suspicion_rounds"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ArtifactsDir:         ".gridpilot/turns",
		ActionTimeoutSeconds: 30,
		Correction: CorrectionConfig{
			MaxFailureRounds:   1,
			MaxSuspicionRounds: 1,
		},
	}
}

// Load reads and strictly decodes a config file, filling unset fields from
// defaults. A missing file returns defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var loaded Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&loaded); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if loaded.Document != "" {
		cfg.Document = loaded.Document
	}
	if loaded.ArtifactsDir != "" {
		cfg.ArtifactsDir = loaded.ArtifactsDir
	}
	if loaded.Agent.BaseURL != "" {
		cfg.Agent.BaseURL = loaded.Agent.BaseURL
	}
	if loaded.Agent.Model != "" {
		cfg.Agent.Model = loaded.Agent.Model
	}
	if loaded.ActionTimeoutSeconds > 0 {
		cfg.ActionTimeoutSeconds = loaded.ActionTimeoutSeconds
	}
	if loaded.Correction.MaxFailureRounds > 0 {
		cfg.Correction.MaxFailureRounds = loaded.Correction.MaxFailureRounds
	}
	if loaded.Correction.MaxSuspicionRounds > 0 {
		cfg.Correction.MaxSuspicionRounds = loaded.Correction.MaxSuspicionRounds
	}
	if len(loaded.SuspicionRules) > 0 {
		cfg.SuspicionRules = loaded.SuspicionRules
	}
	return cfg, nil
}

// ActionTimeout converts the configured timeout to a duration.
func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSeconds) * time.Second
}
