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
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/sandbox"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/strategy"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/validate"
)

// Evaluator runs one candidate through the full gauntlet: static
// gate, sandboxed execution, then full validation. It satisfies
// strategy.CandidateEvaluator so search-based strategies can score
// intermediate candidates with the same machinery the engine uses for
// final decisions.
//
// Thread Safety: safe for concurrent use.
type Evaluator struct {
	sandbox *sandbox.Manager
	quick   *validate.QuickValidator
	full    *validate.CodeValidator
	cfg     sandbox.Config
	input   string
}

// NewEvaluator builds an evaluator for one language.
func NewEvaluator(mgr *sandbox.Manager, language, input string, cfg sandbox.Config) (*Evaluator, error) {
	if mgr == nil {
		return nil, fmt.Errorf("sandbox manager cannot be nil")
	}
	quick, err := validate.NewQuickValidator(language)
	if err != nil {
		return nil, err
	}
	full, err := validate.NewCodeValidator(language)
	if err != nil {
		return nil, err
	}
	return &Evaluator{sandbox: mgr, quick: quick, full: full, cfg: cfg, input: input}, nil
}

var _ strategy.CandidateEvaluator = (*Evaluator)(nil)

// Evaluate scores a candidate on the canonical [0, 1] fitness scale.
// Candidate-level failures (blocking findings, crashes, timeouts)
// yield fitness 0 with a nil error; a non-nil error means the
// machinery itself failed.
func (e *Evaluator) Evaluate(ctx context.Context, code string) (float64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	quick, err := e.quick.Validate(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("static gate: %w", err)
	}
	if quick.BlockingCount() > 0 {
		return 0, nil
	}

	result, err := e.sandbox.Execute(ctx, sandbox.Job{
		Code:   code,
		Input:  e.input,
		Config: e.cfg,
	})
	if err != nil {
		return 0, fmt.Errorf("sandbox execution: %w", err)
	}

	full, err := e.full.Validate(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("full validation: %w", err)
	}

	return strategy.BaseFitness(&strategy.Evaluation{
		Code:       code,
		Sandbox:    result,
		Validation: full,
	}), nil
}

// gauntlet runs the stages individually and returns the intermediate
// artifacts; the orchestrator uses this to build candidate records.
func (e *Evaluator) gauntlet(ctx context.Context, code string) (*validate.Result, *sandbox.Result, *validate.Result, error) {
	quick, err := e.quick.Validate(ctx, code)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("static gate: %w", err)
	}
	if quick.BlockingCount() > 0 {
		return quick, nil, nil, nil
	}

	result, err := e.sandbox.Execute(ctx, sandbox.Job{
		Code:   code,
		Input:  e.input,
		Config: e.cfg,
	})
	if err != nil {
		return quick, nil, nil, fmt.Errorf("sandbox execution: %w", err)
	}

	full, err := e.full.Validate(ctx, code)
	if err != nil {
		return quick, result, nil, fmt.Errorf("full validation: %w", err)
	}
	return quick, result, full, nil
}
