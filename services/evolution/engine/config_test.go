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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/strategy"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("defaults_are_valid", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing_strategy", func(c *Config) { c.Strategy = "" }},
		{"zero_attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"threshold_above_one", func(c *Config) { c.AcceptThreshold = 1.5 }},
		{"zero_attempt_timeout", func(c *Config) { c.AttemptTimeout = 0 }},
		{"unknown_risk", func(c *Config) { c.MaxRisk = "extreme" }},
		{"zero_parallelism", func(c *Config) { c.MaxParallel = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want validation failure")
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(
		WithStrategy("evolutionary"),
		WithMaxAttempts(3),
		WithAcceptThreshold(0.5),
		WithMaxRisk(strategy.RiskHigh),
		WithInput("stdin data"),
	)
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.Strategy != "evolutionary" || cfg.MaxAttempts != 3 {
		t.Errorf("NewConfig() = %+v, want options applied", cfg)
	}
	if cfg.AcceptThreshold != 0.5 || cfg.MaxRisk != strategy.RiskHigh || cfg.Input != "stdin data" {
		t.Errorf("NewConfig() = %+v, want options applied", cfg)
	}

	if _, err := NewConfig(WithMaxAttempts(-1)); err == nil {
		t.Error("NewConfig() error = nil for invalid option, want failure")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("layers_yaml_over_defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.yaml")
		doc := `strategy: llm_guided
max_attempts: 5
accept_threshold: 0.8
attempt_timeout: 90s
sandbox:
  language: python
  wall_clock_timeout: 3s
`
		if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Strategy != "llm_guided" || cfg.MaxAttempts != 5 || cfg.AcceptThreshold != 0.8 {
			t.Errorf("LoadConfig() = %+v, want yaml values", cfg)
		}
		if cfg.AttemptTimeout != 90*time.Second {
			t.Errorf("LoadConfig() AttemptTimeout = %v, want 90s", cfg.AttemptTimeout)
		}
		if cfg.Sandbox.Language != "python" || cfg.Sandbox.WallClockTimeout != 3*time.Second {
			t.Errorf("LoadConfig() Sandbox = %+v, want yaml values", cfg.Sandbox)
		}
		// Untouched fields keep their defaults, including the sandbox
		// fields the partial sandbox section omits.
		if cfg.MaxParallel != DefaultConfig().MaxParallel {
			t.Errorf("LoadConfig() MaxParallel = %d, want default", cfg.MaxParallel)
		}
		if cfg.Sandbox.MaxOutputBytes != DefaultConfig().Sandbox.MaxOutputBytes {
			t.Errorf("LoadConfig() Sandbox.MaxOutputBytes = %d, want default", cfg.Sandbox.MaxOutputBytes)
		}
	})

	t.Run("malformed_duration_rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad-duration.yaml")
		if err := os.WriteFile(path, []byte("attempt_timeout: ninety\n"), 0600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("LoadConfig() error = nil for malformed duration, want failure")
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("LoadConfig() error = nil for missing file, want failure")
		}
	})

	t.Run("invalid_values_rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("strategy: \"\"\n"), 0600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("LoadConfig() error = nil for invalid config, want failure")
		}
	})
}
