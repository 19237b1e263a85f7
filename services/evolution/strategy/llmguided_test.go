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
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/llm"
)

func TestLLMGuidedStrategy_ProposeMutations(t *testing.T) {
	m := newGoMutator(t)

	t.Run("anchors_valid_edit", func(t *testing.T) {
		client := &llm.MockClient{Responses: []string{`Here you go:
[
  {
    "original": "1 + 2",
    "replacement": "1 * 2",
    "kind": "operator_swap",
    "rationale": "try multiplication",
    "confidence": 0.7,
    "risk": "low"
  }
]`}}
		s, err := NewLLMGuidedStrategy(client, m, DefaultLLMGuidedConfig(), nil)
		if err != nil {
			t.Fatalf("NewLLMGuidedStrategy() error = %v", err)
		}

		proposals, err := s.ProposeMutations(context.Background(), sampleProgram, nil)
		if err != nil {
			t.Fatalf("ProposeMutations() error = %v", err)
		}
		if len(proposals) != 1 {
			t.Fatalf("Expected 1 proposal, got %d", len(proposals))
		}
		p := proposals[0]
		if p.StrategyName != "llm_guided" {
			t.Errorf("StrategyName = %q", p.StrategyName)
		}
		if p.Confidence != 0.7 || p.Risk != RiskLow {
			t.Errorf("assessment not carried through: conf=%v risk=%v", p.Confidence, p.Risk)
		}
		applied := m.Apply(sampleProgram, p.Mutations[0])
		if !applied.Success {
			t.Fatalf("Anchored edit failed to apply: %s", applied.Reason)
		}
		if !strings.Contains(applied.Mutated, "1 * 2") {
			t.Error("Replacement text missing from mutated source")
		}
	})

	t.Run("unanchorable_edit_discarded", func(t *testing.T) {
		client := &llm.MockClient{Responses: []string{
			`[{"original": "this text is nowhere", "replacement": "x", "confidence": 0.9, "risk": "low"}]`,
		}}
		s, err := NewLLMGuidedStrategy(client, m, DefaultLLMGuidedConfig(), nil)
		if err != nil {
			t.Fatalf("NewLLMGuidedStrategy() error = %v", err)
		}
		proposals, err := s.ProposeMutations(context.Background(), sampleProgram, nil)
		if err != nil {
			t.Fatalf("ProposeMutations() error = %v", err)
		}
		if len(proposals) != 0 {
			t.Fatalf("Expected 0 proposals, got %d", len(proposals))
		}
	})

	t.Run("client_error_degrades_to_empty", func(t *testing.T) {
		client := &llm.MockClient{Err: errors.New("model unavailable")}
		s, err := NewLLMGuidedStrategy(client, m, DefaultLLMGuidedConfig(), nil)
		if err != nil {
			t.Fatalf("NewLLMGuidedStrategy() error = %v", err)
		}
		proposals, err := s.ProposeMutations(context.Background(), sampleProgram, nil)
		if err != nil {
			t.Fatalf("ProposeMutations() should not surface client errors, got %v", err)
		}
		if len(proposals) != 0 {
			t.Fatalf("Expected 0 proposals, got %d", len(proposals))
		}
	})

	t.Run("garbage_response_degrades_to_empty", func(t *testing.T) {
		client := &llm.MockClient{Responses: []string{"I cannot help with that."}}
		s, err := NewLLMGuidedStrategy(client, m, DefaultLLMGuidedConfig(), nil)
		if err != nil {
			t.Fatalf("NewLLMGuidedStrategy() error = %v", err)
		}
		proposals, err := s.ProposeMutations(context.Background(), sampleProgram, nil)
		if err != nil {
			t.Fatalf("ProposeMutations() error = %v", err)
		}
		if len(proposals) != 0 {
			t.Fatalf("Expected 0 proposals, got %d", len(proposals))
		}
	})

	t.Run("prompt_carries_failure_context", func(t *testing.T) {
		client := &llm.MockClient{Responses: []string{"[]"}}
		s, err := NewLLMGuidedStrategy(client, m, DefaultLLMGuidedConfig(), nil)
		if err != nil {
			t.Fatalf("NewLLMGuidedStrategy() error = %v", err)
		}
		_, err = s.ProposeMutations(context.Background(), sampleProgram, &Context{
			Goal:        "make it faster",
			LastFailure: "panic: index out of range",
		})
		if err != nil {
			t.Fatalf("ProposeMutations() error = %v", err)
		}
		prompts := client.Prompts()
		if len(prompts) != 1 {
			t.Fatalf("Expected 1 prompt, got %d", len(prompts))
		}
		if !strings.Contains(prompts[0], "make it faster") ||
			!strings.Contains(prompts[0], "index out of range") {
			t.Error("Prompt missing goal or failure context")
		}
	})
}

func TestParseEdits(t *testing.T) {
	t.Run("fenced_json", func(t *testing.T) {
		edits, err := parseEdits("```json\n[{\"original\": \"a\", \"replacement\": \"b\"}]\n```")
		if err != nil {
			t.Fatalf("parseEdits() error = %v", err)
		}
		if len(edits) != 1 || edits[0].Original != "a" {
			t.Fatalf("Unexpected edits: %+v", edits)
		}
	})

	t.Run("no_array", func(t *testing.T) {
		if _, err := parseEdits("nothing here"); err == nil {
			t.Fatal("Expected error for missing array")
		}
	})
}
