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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/llm"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/mutation"
)

// =============================================================================
// LLM-GUIDED STRATEGY
// =============================================================================

// llmEdit is the wire shape the model is asked to emit, one per
// proposed change.
type llmEdit struct {
	Original    string  `json:"original"`
	Replacement string  `json:"replacement"`
	Kind        string  `json:"kind"`
	Rationale   string  `json:"rationale"`
	Confidence  float64 `json:"confidence"`
	Risk        string  `json:"risk"`
}

// LLMGuidedConfig tunes the LLM-guided strategy.
type LLMGuidedConfig struct {
	// MaxProposals caps the edits accepted per attempt.
	MaxProposals int

	// Params are passed through to the model.
	Params llm.GenerationParams
}

// DefaultLLMGuidedConfig returns defaults tuned for small, focused
// edits.
func DefaultLLMGuidedConfig() LLMGuidedConfig {
	return LLMGuidedConfig{
		MaxProposals: 4,
		Params: llm.GenerationParams{
			Temperature: llm.Float32(0.4),
			MaxTokens:   llm.Int(1024),
		},
	}
}

// LLMGuidedStrategy asks a language model for targeted edits and
// anchors each one to a syntax-tree node by exact text match. Edits
// that cannot be anchored, fail to apply, or break the parse are
// dropped; a model outage degrades to an empty proposal list rather
// than an error.
//
// Thread Safety: safe for concurrent use.
type LLMGuidedStrategy struct {
	client  llm.Client
	mutator *mutation.Mutator
	cfg     LLMGuidedConfig
	logger  *slog.Logger
}

// NewLLMGuidedStrategy creates the strategy. The client and mutator
// are required.
func NewLLMGuidedStrategy(client llm.Client, mutator *mutation.Mutator, cfg LLMGuidedConfig, logger *slog.Logger) (*LLMGuidedStrategy, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client cannot be nil")
	}
	if mutator == nil {
		return nil, fmt.Errorf("mutator cannot be nil")
	}
	if cfg.MaxProposals < 1 {
		cfg.MaxProposals = DefaultLLMGuidedConfig().MaxProposals
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMGuidedStrategy{client: client, mutator: mutator, cfg: cfg, logger: logger}, nil
}

// Name returns "llm_guided".
func (s *LLMGuidedStrategy) Name() string { return "llm_guided" }

// ProposeMutations prompts the model and converts its edits into
// anchored proposals.
func (s *LLMGuidedStrategy) ProposeMutations(ctx context.Context, code string, ectx *Context) ([]*Proposal, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	prompt := s.buildPrompt(code, ectx)
	raw, err := s.client.Generate(ctx, prompt, s.cfg.Params)
	if err != nil {
		// Model unavailability is not fatal to the run.
		s.logger.Warn("llm proposal generation failed",
			slog.String("strategy", s.Name()),
			slog.String("error", err.Error()))
		return []*Proposal{}, nil
	}

	edits, err := parseEdits(raw)
	if err != nil {
		s.logger.Warn("llm response did not parse",
			slog.String("strategy", s.Name()),
			slog.String("error", err.Error()))
		return []*Proposal{}, nil
	}

	return s.anchorEdits(code, edits), nil
}

// EvaluateMutation scores by the canonical execution-plus-validation
// fitness.
func (s *LLMGuidedStrategy) EvaluateMutation(ctx context.Context, eval *Evaluation) (float64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	return BaseFitness(eval), nil
}

// anchorEdits matches each edit's original text to a syntax node and
// builds a single-mutation proposal per anchored edit.
func (s *LLMGuidedStrategy) anchorEdits(code string, edits []llmEdit) []*Proposal {
	targets, err := s.mutator.Targets(code)
	if err != nil {
		s.logger.Warn("target enumeration failed", slog.String("error", err.Error()))
		return []*Proposal{}
	}

	proposals := make([]*Proposal, 0, len(edits))
	for _, edit := range edits {
		if len(proposals) >= s.cfg.MaxProposals {
			break
		}
		original := strings.TrimSpace(edit.Original)
		if original == "" || edit.Replacement == original {
			continue
		}
		target, found := anchorText(targets, original)
		if !found {
			s.logger.Debug("discarding unanchorable edit",
				slog.String("original", truncateForLog(original)))
			continue
		}

		mut := mutation.Mutation{
			Path:        target.Path,
			Original:    target.Text,
			Replacement: edit.Replacement,
			Kind:        editKind(edit.Kind),
		}
		applied := s.mutator.Apply(code, mut)
		if !applied.Success || !s.mutator.ParsesClean(applied.Mutated) {
			continue
		}

		risk := RiskLevel(edit.Risk)
		if !risk.Valid() {
			risk = RiskMedium
		}
		proposals = append(proposals, &Proposal{
			StrategyName: s.Name(),
			Mutations:    []mutation.Mutation{mut},
			Rationale:    edit.Rationale,
			Confidence:   clamp01(edit.Confidence),
			Risk:         risk,
		})
	}
	return proposals
}

func (s *LLMGuidedStrategy) buildPrompt(code string, ectx *Context) string {
	var b strings.Builder
	b.WriteString("You are improving a ")
	b.WriteString(s.mutator.Language())
	b.WriteString(" program by small, targeted edits.\n\n")
	if ectx != nil && ectx.Goal != "" {
		b.WriteString("Goal: ")
		b.WriteString(ectx.Goal)
		b.WriteString("\n\n")
	}
	if ectx != nil && ectx.LastFailure != "" {
		b.WriteString("The previous attempt failed with:\n")
		b.WriteString(ectx.LastFailure)
		b.WriteString("\n\n")
	}
	b.WriteString("Current program:\n```")
	b.WriteString(s.mutator.Language())
	b.WriteString("\n")
	b.WriteString(code)
	b.WriteString("\n```\n\n")
	b.WriteString(`Respond ONLY with a JSON array of edits. Each edit:
{
  "original": "<exact text of one expression or statement from the program>",
  "replacement": "<new text>",
  "kind": "expression_replace",
  "rationale": "<one sentence>",
  "confidence": 0.0,
  "risk": "low|medium|high"
}
The "original" field must be copied verbatim from the program so the
edit can be located. Propose at most `)
	fmt.Fprintf(&b, "%d edits.\n", s.cfg.MaxProposals)
	return b.String()
}

// anchorText finds the smallest node whose text matches the edit's
// original, preferring exact matches over trimmed ones.
func anchorText(targets []mutation.Target, original string) (mutation.Target, bool) {
	var best mutation.Target
	found := false
	for _, t := range targets {
		if t.Text != original && strings.TrimSpace(t.Text) != original {
			continue
		}
		if !found || len(t.Text) < len(best.Text) {
			best = t
			found = true
		}
	}
	return best, found
}

// parseEdits extracts the JSON array from a model response that may
// wrap it in prose or code fences.
func parseEdits(raw string) ([]llmEdit, error) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var edits []llmEdit
	if err := json.Unmarshal([]byte(raw[start:end+1]), &edits); err != nil {
		return nil, fmt.Errorf("edit array unmarshal failed: %w", err)
	}
	return edits, nil
}

func editKind(kind string) mutation.Kind {
	switch mutation.Kind(kind) {
	case mutation.KindOperatorSwap, mutation.KindLiteralTweak,
		mutation.KindStatementDelete, mutation.KindBlockReplace,
		mutation.KindExpressionReplace:
		return mutation.Kind(kind)
	default:
		return mutation.KindExpressionReplace
	}
}

func truncateForLog(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
