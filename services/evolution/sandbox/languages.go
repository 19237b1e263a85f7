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
	"strings"
	"sync"
)

// =============================================================================
// LANGUAGE REGISTRY
// =============================================================================

// LanguageConfig describes how to execute candidate code for one
// language inside the sandbox workspace.
type LanguageConfig struct {
	// Name is the registry key ("go", "python").
	Name string

	// FileName is the name the candidate source is written under
	// inside the workspace.
	FileName string

	// RunCommand is the command template. "{file}" is replaced with
	// the candidate file path. The command runs with the workspace as
	// its working directory.
	RunCommand []string

	// Env is extra environment set for the child beyond the scrubbed
	// allowlist.
	Env []string
}

// LanguageConfigRegistry maps language names to execution commands.
//
// Thread Safety: safe for concurrent use.
type LanguageConfigRegistry struct {
	mu      sync.RWMutex
	configs map[string]LanguageConfig
}

// NewLanguageConfigRegistry returns an empty registry.
func NewLanguageConfigRegistry() *LanguageConfigRegistry {
	return &LanguageConfigRegistry{configs: make(map[string]LanguageConfig)}
}

// Register adds or replaces a language configuration.
func (r *LanguageConfigRegistry) Register(cfg LanguageConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
}

// Get returns the configuration for a language.
func (r *LanguageConfigRegistry) Get(language string) (LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[strings.ToLower(language)]
	return cfg, ok
}

// Languages returns the registered language names.
func (r *LanguageConfigRegistry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	return names
}

// DefaultLanguageConfigs holds the built-in language set.
//
// Go candidates run through "go run"; the compiler needs generous
// virtual memory, so RLIMIT_AS applies to the whole run including the
// build step. Python candidates run the interpreter directly.
var DefaultLanguageConfigs = func() *LanguageConfigRegistry {
	r := NewLanguageConfigRegistry()
	r.Register(LanguageConfig{
		Name:       "go",
		FileName:   "candidate.go",
		RunCommand: []string{"go", "run", "{file}"},
		Env:        []string{"GOFLAGS=-mod=mod", "GO111MODULE=auto", "CGO_ENABLED=0"},
	})
	r.Register(LanguageConfig{
		Name:       "python",
		FileName:   "candidate.py",
		RunCommand: []string{"python3", "{file}"},
		Env:        []string{"PYTHONDONTWRITEBYTECODE=1"},
	})
	return r
}()
