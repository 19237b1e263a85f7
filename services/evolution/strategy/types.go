// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package strategy defines how mutation proposals are generated and
// scored. Concrete strategies (random, LLM-guided, error-fix,
// evolutionary) implement a single closed interface and are selected
// by name through a Registry.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/mutation"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/sandbox"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/validate"
)

// =============================================================================
// RISK
// =============================================================================

// RiskLevel classifies how invasive a proposal is. Levels are totally
// ordered: low < medium < high.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank returns the ordinal of the risk level (low=0, medium=1,
// high=2). Unknown levels rank highest so they never slip past a
// risk filter.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 3
	}
}

// Valid reports whether r is one of the three defined levels.
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// =============================================================================
// PROPOSALS
// =============================================================================

// Proposal is a candidate change produced by a strategy: an ordered
// list of structural edits plus the strategy's own assessment of the
// change.
type Proposal struct {
	// StrategyName identifies the producing strategy.
	StrategyName string `json:"strategy_name"`

	// Mutations are applied in order; a proposal whose first mutation
	// fails to apply is dropped as a whole.
	Mutations []mutation.Mutation `json:"mutations"`

	// Rationale is a short human-readable justification.
	Rationale string `json:"rationale"`

	// Confidence is the strategy's self-assessed probability of
	// improvement, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Risk classifies how invasive the change is.
	Risk RiskLevel `json:"risk"`
}

// Context carries the run state a strategy may condition on when
// proposing mutations.
type Context struct {
	// Goal is an optional natural-language description of the desired
	// improvement.
	Goal string

	// LastFailure is the failure trace from the most recent rejected
	// attempt, empty on the first attempt.
	LastFailure string

	// Input is fed to the candidate program's stdin during evaluation.
	Input string

	// TargetOutput, when non-empty, is the output the evolved program
	// should produce. Strategies that score by output similarity use it.
	TargetOutput string

	// Attempt is the 1-based attempt number within the run.
	Attempt int
}

// =============================================================================
// STRATEGY INTERFACE
// =============================================================================

// Evaluation bundles everything known about a candidate after it has
// cleared the sandbox: the execution result and the full validation
// result. Strategies turn this into a fitness score.
type Evaluation struct {
	Code       string
	Sandbox    *sandbox.Result
	Validation *validate.Result
}

// Strategy generates and scores mutation proposals.
//
// Thread Safety: implementations must be safe for concurrent
// EvaluateMutation calls; ProposeMutations is invoked serially per
// run.
type Strategy interface {
	// Name returns the registry key for this strategy.
	Name() string

	// ProposeMutations generates candidate changes for the given
	// source. An empty slice with a nil error is a valid outcome and
	// means the strategy has nothing to offer this attempt.
	ProposeMutations(ctx context.Context, code string, ectx *Context) ([]*Proposal, error)

	// EvaluateMutation maps a sandboxed candidate to a fitness score
	// on the canonical [0, 1] scale, where 0 means the candidate
	// failed to execute and 1 is a flawless candidate.
	EvaluateMutation(ctx context.Context, eval *Evaluation) (float64, error)
}

// CandidateEvaluator runs a candidate through the full gauntlet
// (static gate, sandbox, full validation) and reports its fitness.
// The engine supplies an implementation to strategies that need to
// evaluate intermediate candidates themselves, such as the
// evolutionary strategy.
type CandidateEvaluator interface {
	Evaluate(ctx context.Context, code string) (float64, error)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps strategy names to instances.
//
// Thread Safety: safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy under its own name. Registering a
// duplicate name is an error.
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return fmt.Errorf("%w: nil strategy", ErrInvalidStrategy)
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidStrategy)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	r.strategies[name] = s
	return nil
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names returns the registered strategy names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
