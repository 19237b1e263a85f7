// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/sandbox"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/strategy"
)

// configValidate is the validator instance for engine configuration.
var configValidate = validator.New()

// Config controls one evolution run.
type Config struct {
	// Strategy is the registry name of the proposal strategy.
	Strategy string `yaml:"strategy" validate:"required"`

	// MaxAttempts bounds propose-evaluate rounds per run.
	MaxAttempts int `yaml:"max_attempts" validate:"min=1,max=1000"`

	// AcceptThreshold is the exclusive score floor a candidate must
	// beat to be committed.
	AcceptThreshold float64 `yaml:"accept_threshold" validate:"gte=0,lte=1"`

	// AttemptTimeout bounds one full round including every sandbox
	// execution in it. Accepts Go duration strings ("90s") in YAML.
	AttemptTimeout time.Duration `yaml:"attempt_timeout" validate:"min=1ms"`

	// MinConfidence filters proposals below this confidence.
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`

	// MaxRisk filters proposals riskier than this ceiling.
	MaxRisk strategy.RiskLevel `yaml:"max_risk" validate:"oneof=low medium high"`

	// MaxParallel bounds concurrent candidate evaluations per round.
	MaxParallel int `yaml:"max_parallel" validate:"min=1,max=64"`

	// Goal is an optional natural-language improvement target passed
	// to proposal strategies.
	Goal string `yaml:"goal"`

	// Input is fed to candidate programs' stdin.
	Input string `yaml:"input"`

	// TargetOutput, when set, is handed to strategies that score by
	// output similarity.
	TargetOutput string `yaml:"target_output"`

	// VerifyCommit re-executes the committed code once and rolls back
	// when the re-run fails, guarding against flaky candidates.
	VerifyCommit bool `yaml:"verify_commit"`

	// Sandbox configures candidate execution.
	Sandbox sandbox.Config `yaml:"sandbox"`
}

// DefaultConfig returns production defaults: random strategy, ten
// attempts, medium risk ceiling, commit verification on.
func DefaultConfig() Config {
	return Config{
		Strategy:        "random",
		MaxAttempts:     10,
		AcceptThreshold: 0.7,
		AttemptTimeout:  2 * time.Minute,
		MinConfidence:   0.1,
		MaxRisk:         strategy.RiskMedium,
		MaxParallel:     4,
		VerifyCommit:    true,
		Sandbox:         sandbox.DefaultConfig(),
	}
}

// Validate checks structural constraints via validation tags, then
// the embedded sandbox config.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	if err := c.Sandbox.Validate(); err != nil {
		return fmt.Errorf("invalid sandbox config: %w", err)
	}
	return nil
}

// UnmarshalYAML layers the document's keys over the receiver, so a
// partial config keeps the receiver's values (typically defaults) for
// everything it omits.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Strategy        *string             `yaml:"strategy"`
		MaxAttempts     *int                `yaml:"max_attempts"`
		AcceptThreshold *float64            `yaml:"accept_threshold"`
		AttemptTimeout  *string             `yaml:"attempt_timeout"`
		MinConfidence   *float64            `yaml:"min_confidence"`
		MaxRisk         *strategy.RiskLevel `yaml:"max_risk"`
		MaxParallel     *int                `yaml:"max_parallel"`
		Goal            *string             `yaml:"goal"`
		Input           *string             `yaml:"input"`
		TargetOutput    *string             `yaml:"target_output"`
		VerifyCommit    *bool               `yaml:"verify_commit"`
		Sandbox         *sandbox.Config     `yaml:"sandbox"`
	}{Sandbox: &c.Sandbox}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Strategy != nil {
		c.Strategy = *raw.Strategy
	}
	if raw.MaxAttempts != nil {
		c.MaxAttempts = *raw.MaxAttempts
	}
	if raw.AcceptThreshold != nil {
		c.AcceptThreshold = *raw.AcceptThreshold
	}
	if raw.AttemptTimeout != nil {
		d, err := time.ParseDuration(*raw.AttemptTimeout)
		if err != nil {
			return fmt.Errorf("attempt_timeout: %w", err)
		}
		c.AttemptTimeout = d
	}
	if raw.MinConfidence != nil {
		c.MinConfidence = *raw.MinConfidence
	}
	if raw.MaxRisk != nil {
		c.MaxRisk = *raw.MaxRisk
	}
	if raw.MaxParallel != nil {
		c.MaxParallel = *raw.MaxParallel
	}
	if raw.Goal != nil {
		c.Goal = *raw.Goal
	}
	if raw.Input != nil {
		c.Input = *raw.Input
	}
	if raw.TargetOutput != nil {
		c.TargetOutput = *raw.TargetOutput
	}
	if raw.VerifyCommit != nil {
		c.VerifyCommit = *raw.VerifyCommit
	}
	return nil
}

// LoadConfig reads a YAML config file, layering it over defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Option mutates a Config.
type Option func(*Config)

// WithStrategy selects the proposal strategy by registry name.
func WithStrategy(name string) Option {
	return func(c *Config) { c.Strategy = name }
}

// WithMaxAttempts bounds rounds per run.
func WithMaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

// WithAcceptThreshold sets the exclusive acceptance floor.
func WithAcceptThreshold(t float64) Option {
	return func(c *Config) { c.AcceptThreshold = t }
}

// WithMaxRisk sets the proposal risk ceiling.
func WithMaxRisk(r strategy.RiskLevel) Option {
	return func(c *Config) { c.MaxRisk = r }
}

// WithInput sets candidate stdin.
func WithInput(input string) Option {
	return func(c *Config) { c.Input = input }
}

// NewConfig builds a validated config from defaults plus options.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
