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
	"log/slog"
	"regexp"
	"strconv"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/llm"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/mutation"
)

// =============================================================================
// ERROR-FIX STRATEGY
// =============================================================================

// lineRefPattern matches line references in Go panics, compiler
// diagnostics, and Python tracebacks ("main.go:14:3", "line 14").
var lineRefPattern = regexp.MustCompile(`(?:[\w./-]+:|\bline )(\d+)`)

// ErrorFixConfig tunes the error-fix strategy.
type ErrorFixConfig struct {
	// WindowLines bounds how far from an implicated line an edit may
	// land. Edits outside every window are discarded.
	WindowLines int

	// MaxProposals caps the edits accepted per attempt.
	MaxProposals int

	// Params are passed through to the model.
	Params llm.GenerationParams
}

// DefaultErrorFixConfig returns defaults.
func DefaultErrorFixConfig() ErrorFixConfig {
	return ErrorFixConfig{
		WindowLines:  5,
		MaxProposals: 3,
		Params: llm.GenerationParams{
			Temperature: llm.Float32(0.2),
			MaxTokens:   llm.Int(1024),
		},
	}
}

// ErrorFixStrategy repairs a failing program by feeding the failure
// trace to a model and restricting the resulting edits to the source
// region the trace implicates. Without a failure trace it proposes
// nothing: there is nothing to fix.
//
// Thread Safety: safe for concurrent use.
type ErrorFixStrategy struct {
	inner  *LLMGuidedStrategy
	cfg    ErrorFixConfig
	logger *slog.Logger
}

// NewErrorFixStrategy creates the strategy.
func NewErrorFixStrategy(client llm.Client, mutator *mutation.Mutator, cfg ErrorFixConfig, logger *slog.Logger) (*ErrorFixStrategy, error) {
	if cfg.WindowLines < 1 {
		cfg.WindowLines = DefaultErrorFixConfig().WindowLines
	}
	if cfg.MaxProposals < 1 {
		cfg.MaxProposals = DefaultErrorFixConfig().MaxProposals
	}
	inner, err := NewLLMGuidedStrategy(client, mutator, LLMGuidedConfig{
		MaxProposals: cfg.MaxProposals,
		Params:       cfg.Params,
	}, logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorFixStrategy{inner: inner, cfg: cfg, logger: logger}, nil
}

// Name returns "error_fix".
func (s *ErrorFixStrategy) Name() string { return "error_fix" }

// ProposeMutations generates repair edits and drops any that land
// outside the failure's implicated region.
func (s *ErrorFixStrategy) ProposeMutations(ctx context.Context, code string, ectx *Context) ([]*Proposal, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if ectx == nil || ectx.LastFailure == "" {
		return []*Proposal{}, nil
	}

	fixCtx := *ectx
	if fixCtx.Goal == "" {
		fixCtx.Goal = "Fix the failure shown below without changing unrelated behavior."
	}
	proposals, err := s.inner.ProposeMutations(ctx, code, &fixCtx)
	if err != nil {
		return nil, err
	}

	implicated := implicatedLines(ectx.LastFailure)
	if len(implicated) == 0 {
		// No line references to scope by; accept the edits as-is.
		return s.rename(proposals), nil
	}

	kept := make([]*Proposal, 0, len(proposals))
	for _, p := range proposals {
		if s.withinWindow(code, p, implicated) {
			kept = append(kept, p)
		} else {
			s.logger.Debug("discarding out-of-region edit",
				slog.String("rationale", truncateForLog(p.Rationale)))
		}
	}
	return s.rename(kept), nil
}

// EvaluateMutation scores by the canonical execution-plus-validation
// fitness.
func (s *ErrorFixStrategy) EvaluateMutation(ctx context.Context, eval *Evaluation) (float64, error) {
	return s.inner.EvaluateMutation(ctx, eval)
}

// withinWindow reports whether every mutation in the proposal lands
// within WindowLines of some implicated line.
func (s *ErrorFixStrategy) withinWindow(code string, p *Proposal, implicated []int) bool {
	for _, mut := range p.Mutations {
		target, err := s.inner.mutator.Locate(code, mut.Path)
		if err != nil {
			return false
		}
		inRange := false
		for _, line := range implicated {
			if abs(target.StartLine-line) <= s.cfg.WindowLines {
				inRange = true
				break
			}
		}
		if !inRange {
			return false
		}
	}
	return true
}

// rename stamps proposals with this strategy's name so attribution in
// the attempt record points here, not at the inner strategy.
func (s *ErrorFixStrategy) rename(proposals []*Proposal) []*Proposal {
	for _, p := range proposals {
		p.StrategyName = s.Name()
		if p.Rationale == "" {
			p.Rationale = fmt.Sprintf("repair within %d lines of the failure site", s.cfg.WindowLines)
		}
	}
	return proposals
}

// implicatedLines extracts the distinct line numbers a failure trace
// references, in order of first appearance.
func implicatedLines(trace string) []int {
	matches := lineRefPattern.FindAllStringSubmatch(trace, -1)
	seen := make(map[int]bool, len(matches))
	lines := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || seen[n] {
			continue
		}
		seen[n] = true
		lines = append(lines, n)
	}
	return lines
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
