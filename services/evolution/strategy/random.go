// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/mutation"
)

// =============================================================================
// OPERATOR CATALOGUE
// =============================================================================

// operatorSwaps maps each mutable operator to its swap candidates.
// Swapping within a family (arithmetic, comparison, logical) keeps the
// mutant syntactically valid in both Go and Python.
var operatorSwaps = map[string][]string{
	"+":   {"-", "*"},
	"-":   {"+"},
	"*":   {"+", "/"},
	"/":   {"*", "%"},
	"%":   {"/"},
	"==":  {"!="},
	"!=":  {"=="},
	"<":   {"<=", ">"},
	">":   {">=", "<"},
	"<=":  {"<"},
	">=":  {">"},
	"&&":  {"||"},
	"||":  {"&&"},
	"and": {"or"},
	"or":  {"and"},
}

// mutableKinds lists the tree-sitter node types each language exposes
// as mutation targets.
var mutableKinds = map[string][]string{
	"go":     {"binary_expression", "true", "false", "int_literal"},
	"python": {"binary_operator", "comparison_operator", "boolean_operator", "integer", "true", "false"},
}

// boolFlips maps boolean literal text to its negation, covering both
// Go and Python spellings.
var boolFlips = map[string]string{
	"true":  "false",
	"false": "true",
	"True":  "False",
	"False": "True",
}

// mutationForTarget derives a point mutation for a discovered target.
// Returns false when the target admits no catalogue edit.
func mutationForTarget(target mutation.Target, rng *rand.Rand) (mutation.Mutation, bool) {
	if target.Operator != "" {
		swaps, ok := operatorSwaps[target.Operator]
		if ok && len(swaps) > 0 {
			replacement, ok := target.SwapOperator(swaps[rng.Intn(len(swaps))])
			if ok {
				return mutation.Mutation{
					Path:        target.Path,
					Original:    target.Text,
					Replacement: replacement,
					Kind:        mutation.KindOperatorSwap,
				}, true
			}
		}
		return mutation.Mutation{}, false
	}

	if flipped, ok := boolFlips[target.Text]; ok {
		return mutation.Mutation{
			Path:        target.Path,
			Original:    target.Text,
			Replacement: flipped,
			Kind:        mutation.KindLiteralTweak,
		}, true
	}

	if n, err := strconv.ParseInt(target.Text, 10, 64); err == nil {
		tweaked := n + 1
		if rng.Intn(2) == 0 {
			tweaked = n - 1
		}
		return mutation.Mutation{
			Path:        target.Path,
			Original:    target.Text,
			Replacement: strconv.FormatInt(tweaked, 10),
			Kind:        mutation.KindLiteralTweak,
		}, true
	}

	return mutation.Mutation{}, false
}

// riskForKind maps catalogue mutation kinds to risk levels.
func riskForKind(kind mutation.Kind) RiskLevel {
	switch kind {
	case mutation.KindLiteralTweak:
		return RiskLow
	case mutation.KindOperatorSwap:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// =============================================================================
// RANDOM STRATEGY
// =============================================================================

// RandomConfig tunes the random strategy.
type RandomConfig struct {
	// Density is the fraction of discovered targets to mutate, in
	// (0, 1].
	Density float64

	// MaxProposals caps the proposals emitted per attempt.
	MaxProposals int

	// Seed makes proposal generation deterministic.
	Seed int64
}

// DefaultRandomConfig returns conservative defaults.
func DefaultRandomConfig() RandomConfig {
	return RandomConfig{
		Density:      0.3,
		MaxProposals: 8,
		Seed:         1,
	}
}

// Validate checks config bounds.
func (c *RandomConfig) Validate() error {
	if c.Density <= 0 || c.Density > 1 {
		return fmt.Errorf("density must be in (0, 1], got %v", c.Density)
	}
	if c.MaxProposals < 1 {
		return fmt.Errorf("max proposals must be >= 1, got %d", c.MaxProposals)
	}
	return nil
}

// RandomStrategy mutates syntax nodes drawn from a fixed operator and
// literal catalogue. It needs no model and no prior failures, which
// makes it the baseline strategy and the one integration tests lean
// on.
//
// Thread Safety: safe for concurrent use; the shared rand source is
// guarded by a mutex.
type RandomStrategy struct {
	mutator *mutation.Mutator
	cfg     RandomConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomStrategy creates a random strategy over the given mutator.
func NewRandomStrategy(mutator *mutation.Mutator, cfg RandomConfig) (*RandomStrategy, error) {
	if mutator == nil {
		return nil, fmt.Errorf("mutator cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid random config: %w", err)
	}
	return &RandomStrategy{
		mutator: mutator,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Name returns "random".
func (s *RandomStrategy) Name() string { return "random" }

// ProposeMutations draws up to MaxProposals single-edit proposals from
// the catalogue. Each candidate edit is applied and re-parsed before
// being proposed; edits that break the parse are discarded.
func (s *RandomStrategy) ProposeMutations(ctx context.Context, code string, _ *Context) ([]*Proposal, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	kinds := mutableKinds[s.mutator.Language()]
	targets, err := s.mutator.Targets(code, kinds...)
	if err != nil {
		return nil, fmt.Errorf("target discovery failed: %w", err)
	}
	if len(targets) == 0 {
		return []*Proposal{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.rng.Perm(len(targets))
	want := int(math.Ceil(s.cfg.Density * float64(len(targets))))
	if want > s.cfg.MaxProposals {
		want = s.cfg.MaxProposals
	}

	proposals := make([]*Proposal, 0, want)
	for _, idx := range order {
		if len(proposals) >= want {
			break
		}
		target := targets[idx]
		mut, ok := mutationForTarget(target, s.rng)
		if !ok {
			continue
		}
		applied := s.mutator.Apply(code, mut)
		if !applied.Success || !s.mutator.ParsesClean(applied.Mutated) {
			continue
		}
		proposals = append(proposals, &Proposal{
			StrategyName: s.Name(),
			Mutations:    []mutation.Mutation{mut},
			Rationale: fmt.Sprintf("%s at %s line %d: %q -> %q",
				mut.Kind, target.NodeKind, target.StartLine, mut.Original, mut.Replacement),
			Confidence: 0.3,
			Risk:       riskForKind(mut.Kind),
		})
	}
	return proposals, nil
}

// EvaluateMutation scores by the canonical execution-plus-validation
// fitness.
func (s *RandomStrategy) EvaluateMutation(ctx context.Context, eval *Evaluation) (float64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	return BaseFitness(eval), nil
}
