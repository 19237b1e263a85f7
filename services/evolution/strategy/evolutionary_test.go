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
	"testing"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/sandbox"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/validate"
)

// stubEvaluator scores candidates with a fixed function.
type stubEvaluator struct {
	fn func(code string) float64
}

func (s *stubEvaluator) Evaluate(_ context.Context, code string) (float64, error) {
	return s.fn(code), nil
}

func newEvolutionary(t *testing.T, evaluator CandidateEvaluator, mutate func(*EvolutionaryConfig)) *EvolutionaryStrategy {
	t.Helper()
	cfg := DefaultEvolutionaryConfig()
	cfg.PopulationSize = 4
	cfg.MaxGenerations = 5
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewEvolutionaryStrategy(newGoMutator(t), evaluator, cfg, nil)
	if err != nil {
		t.Fatalf("NewEvolutionaryStrategy() error = %v", err)
	}
	return s
}

func TestEvolutionaryStrategy_ProposeMutations(t *testing.T) {
	t.Run("emits_whole_program_proposal_when_mutant_wins", func(t *testing.T) {
		// Any change to the incumbent scores higher, so the search
		// must surface an evolved program.
		evaluator := &stubEvaluator{fn: func(code string) float64 {
			if code == sampleProgram {
				return 0.2
			}
			return 0.9
		}}
		s := newEvolutionary(t, evaluator, nil)

		proposals, err := s.ProposeMutations(context.Background(), sampleProgram, nil)
		if err != nil {
			t.Fatalf("ProposeMutations() error = %v", err)
		}
		if len(proposals) != 1 {
			t.Fatalf("Expected 1 proposal, got %d", len(proposals))
		}
		p := proposals[0]
		if p.StrategyName != "evolutionary" {
			t.Errorf("StrategyName = %q", p.StrategyName)
		}
		if len(p.Mutations) != 1 || !p.Mutations[0].Path.IsRoot() {
			t.Fatal("Expected a single whole-program mutation")
		}

		applied := s.mutator.Apply(sampleProgram, p.Mutations[0])
		if !applied.Success {
			t.Fatalf("Whole-program mutation failed to apply: %s", applied.Reason)
		}
		if applied.Mutated == sampleProgram {
			t.Error("Evolved program is identical to the incumbent")
		}
		if !s.mutator.ParsesClean(applied.Mutated) {
			t.Error("Evolved program does not parse")
		}
	})

	t.Run("no_proposal_when_incumbent_unbeaten", func(t *testing.T) {
		evaluator := &stubEvaluator{fn: func(code string) float64 {
			if code == sampleProgram {
				return 1.0
			}
			return 0.1
		}}
		s := newEvolutionary(t, evaluator, nil)

		proposals, err := s.ProposeMutations(context.Background(), sampleProgram, nil)
		if err != nil {
			t.Fatalf("ProposeMutations() error = %v", err)
		}
		if len(proposals) != 0 {
			t.Fatalf("Expected 0 proposals, got %d", len(proposals))
		}
	})
}

func TestEvolutionaryStrategy_ElitismMonotonicity(t *testing.T) {
	// Fitness keyed on code length gives a rugged landscape; elitism
	// must still keep the best fitness non-decreasing.
	evaluator := &stubEvaluator{fn: func(code string) float64 {
		return float64(len(code)%97) / 97.0
	}}
	s := newEvolutionary(t, evaluator, nil)

	pop, err := s.seedPopulation(sampleProgram)
	if err != nil {
		t.Fatalf("seedPopulation() error = %v", err)
	}
	if err := s.evaluate(context.Background(), pop.Individuals); err != nil {
		t.Fatalf("evaluate() error = %v", err)
	}

	prevBest := pop.Best().Fitness
	for gen := 0; gen < 6; gen++ {
		next, err := s.nextGeneration(context.Background(), pop)
		if err != nil {
			t.Fatalf("nextGeneration() error = %v", err)
		}
		pop = next
		best := pop.Best().Fitness
		if best < prevBest {
			t.Fatalf("Best fitness regressed at generation %d: %v -> %v", gen+1, prevBest, best)
		}
		prevBest = best
	}
}

func TestEvolutionaryStrategy_PopulationInvariants(t *testing.T) {
	evaluator := &stubEvaluator{fn: func(string) float64 { return 0.5 }}
	s := newEvolutionary(t, evaluator, nil)

	pop, err := s.seedPopulation(sampleProgram)
	if err != nil {
		t.Fatalf("seedPopulation() error = %v", err)
	}
	if len(pop.Individuals) != 4 {
		t.Fatalf("Population size = %d, want 4", len(pop.Individuals))
	}
	if pop.Individuals[0].Code != sampleProgram {
		t.Error("Generation 0 should include the incumbent")
	}
	if d := pop.Diversity(); d <= 0 || d > 1 {
		t.Errorf("Diversity = %v, want in (0, 1]", d)
	}

	t.Run("tiny_population_rejected", func(t *testing.T) {
		cfg := DefaultEvolutionaryConfig()
		cfg.PopulationSize = 1
		if _, err := NewEvolutionaryStrategy(newGoMutator(t), evaluator, cfg, nil); err == nil {
			t.Fatal("Expected error for population size 1")
		}
	})
}

func TestEvolutionaryStrategy_Plateau(t *testing.T) {
	evaluator := &stubEvaluator{fn: func(string) float64 { return 0.5 }}
	s := newEvolutionary(t, evaluator, func(cfg *EvolutionaryConfig) {
		cfg.PlateauWindow = 3
	})

	t.Run("flat_history_plateaus", func(t *testing.T) {
		if !s.plateaued([]float64{0.5, 0.5, 0.5, 0.5}) {
			t.Error("Flat history should plateau")
		}
	})

	t.Run("improving_history_continues", func(t *testing.T) {
		if s.plateaued([]float64{0.1, 0.2, 0.3, 0.4}) {
			t.Error("Improving history should not plateau")
		}
	})

	t.Run("short_history_continues", func(t *testing.T) {
		if s.plateaued([]float64{0.5, 0.5}) {
			t.Error("History shorter than the window should not plateau")
		}
	})
}

func TestPopulation_Best_TieBreak(t *testing.T) {
	pop := &Population{Individuals: []*Individual{
		{ID: "young", Fitness: 0.8, Generation: 3},
		{ID: "old", Fitness: 0.8, Generation: 1},
	}}
	if best := pop.Best(); best.ID != "old" {
		t.Fatalf("Best() = %s, want the lower-generation individual", best.ID)
	}
}

func TestEvolutionaryStrategy_EvaluateMutation_TargetBlend(t *testing.T) {
	evaluator := &stubEvaluator{fn: func(string) float64 { return 0.5 }}
	s := newEvolutionary(t, evaluator, func(cfg *EvolutionaryConfig) {
		cfg.TargetOutput = "42\n"
	})

	matching, err := s.EvaluateMutation(context.Background(), &Evaluation{
		Sandbox:    &sandbox.Result{Success: true, Output: "42\n"},
		Validation: &validate.Result{Passed: true},
	})
	if err != nil {
		t.Fatalf("EvaluateMutation() error = %v", err)
	}
	mismatched, err := s.EvaluateMutation(context.Background(), &Evaluation{
		Sandbox:    &sandbox.Result{Success: true, Output: "wrong\n"},
		Validation: &validate.Result{Passed: true},
	})
	if err != nil {
		t.Fatalf("EvaluateMutation() error = %v", err)
	}
	if matching <= mismatched {
		t.Fatalf("Matching output %v should outscore mismatched %v", matching, mismatched)
	}
	if matching != 1 {
		t.Errorf("Perfect candidate = %v, want 1", matching)
	}
}

func TestOutputSimilarity(t *testing.T) {
	cases := []struct {
		name           string
		actual, target string
		want           float64
	}{
		{"identical", "a\nb\n", "a\nb\n", 1},
		{"disjoint", "x\n", "y\n", 0},
		{"half", "a\nx\n", "a\nb\n", 0.5},
		{"empty_target", "anything", "", 1},
		{"empty_actual", "", "a\n", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := OutputSimilarity(tc.actual, tc.target); got != tc.want {
				t.Errorf("OutputSimilarity(%q, %q) = %v, want %v", tc.actual, tc.target, got, tc.want)
			}
		})
	}
}

var _ CandidateEvaluator = (*stubEvaluator)(nil)
