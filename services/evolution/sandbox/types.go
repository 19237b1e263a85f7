// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config bounds a single sandboxed execution. Duration fields accept
// Go duration strings ("3s", "500ms") in YAML.
type Config struct {
	// Language selects the execution command from the language registry.
	// Default: "go".
	Language string `yaml:"language"`

	// WallClockTimeout is the hard deadline for the whole execution.
	// The process group is killed when it elapses. Default: 10s.
	WallClockTimeout time.Duration `yaml:"wall_clock_timeout"`

	// CPUTimeLimit caps CPU seconds via RLIMIT_CPU on the child.
	// Zero disables the cap. Default: 5s.
	CPUTimeLimit time.Duration `yaml:"cpu_time_limit"`

	// MemoryLimitBytes caps the child's address space via RLIMIT_AS.
	// Zero disables the cap. Default: 512MB.
	MemoryLimitBytes int64 `yaml:"memory_limit_bytes"`

	// MaxOutputBytes truncates captured stdout+stderr beyond this size.
	// Default: 65536 (64KB).
	MaxOutputBytes int `yaml:"max_output_bytes"`

	// AllowNetwork keeps proxy/network environment variables visible to
	// the child. When false (default) the environment is scrubbed to a
	// minimal allowlist. Process-level network namespacing is the host
	// deployment's responsibility.
	AllowNetwork bool `yaml:"allow_network"`
}

// UnmarshalYAML layers the document's keys over the receiver, so a
// partial sandbox section keeps the receiver's values for everything
// it omits.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Language         *string `yaml:"language"`
		WallClockTimeout *string `yaml:"wall_clock_timeout"`
		CPUTimeLimit     *string `yaml:"cpu_time_limit"`
		MemoryLimitBytes *int64  `yaml:"memory_limit_bytes"`
		MaxOutputBytes   *int    `yaml:"max_output_bytes"`
		AllowNetwork     *bool   `yaml:"allow_network"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Language != nil {
		c.Language = *raw.Language
	}
	if raw.WallClockTimeout != nil {
		d, err := time.ParseDuration(*raw.WallClockTimeout)
		if err != nil {
			return fmt.Errorf("wall_clock_timeout: %w", err)
		}
		c.WallClockTimeout = d
	}
	if raw.CPUTimeLimit != nil {
		d, err := time.ParseDuration(*raw.CPUTimeLimit)
		if err != nil {
			return fmt.Errorf("cpu_time_limit: %w", err)
		}
		c.CPUTimeLimit = d
	}
	if raw.MemoryLimitBytes != nil {
		c.MemoryLimitBytes = *raw.MemoryLimitBytes
	}
	if raw.MaxOutputBytes != nil {
		c.MaxOutputBytes = *raw.MaxOutputBytes
	}
	if raw.AllowNetwork != nil {
		c.AllowNetwork = *raw.AllowNetwork
	}
	return nil
}

// DefaultConfig returns execution bounds suitable for untrusted
// candidate code.
func DefaultConfig() Config {
	return Config{
		Language:         "go",
		WallClockTimeout: 10 * time.Second,
		CPUTimeLimit:     5 * time.Second,
		MemoryLimitBytes: 512 << 20,
		MaxOutputBytes:   64 * 1024,
	}
}

// Validate normalizes out-of-range values to safe minimums.
func (c *Config) Validate() error {
	if c.Language == "" {
		c.Language = "go"
	}
	if c.WallClockTimeout < 100*time.Millisecond {
		c.WallClockTimeout = 100 * time.Millisecond
	}
	if c.MaxOutputBytes < 1024 {
		c.MaxOutputBytes = 1024
	}
	return nil
}

// =============================================================================
// RESULT
// =============================================================================

// ResourceUsage captures what the child process consumed.
type ResourceUsage struct {
	// CPUTime is user+system CPU time.
	CPUTime time.Duration `json:"cpu_time"`

	// MaxRSSBytes is the peak resident set size.
	MaxRSSBytes int64 `json:"max_rss_bytes"`
}

// Result is the outcome of one sandboxed execution.
//
// A timeout is a normal Result (TimedOut=true, Success=false), not an
// error: callers score timed-out candidates as failed rather than
// aborting the run.
type Result struct {
	// Output is the captured stdout followed by stderr.
	Output string `json:"output"`

	// ExitCode is the process exit code, -1 if the process was killed.
	ExitCode int `json:"exit_code"`

	// Success is true when the process exited zero within bounds.
	Success bool `json:"success"`

	// TimedOut is true when the wall-clock deadline killed the process.
	TimedOut bool `json:"timed_out"`

	// Truncated is true when output exceeded MaxOutputBytes.
	Truncated bool `json:"truncated"`

	// Duration is wall-clock time spent executing.
	Duration time.Duration `json:"duration"`

	// Usage is the child's resource consumption, best effort.
	Usage ResourceUsage `json:"usage"`

	// Diagnostic describes a resource-exhaustion or setup failure.
	// Empty on clean runs and plain test failures.
	Diagnostic string `json:"diagnostic,omitempty"`
}
