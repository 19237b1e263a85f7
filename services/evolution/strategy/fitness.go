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

import "strings"

// =============================================================================
// CANONICAL FITNESS
// =============================================================================

// Fitness weights. A candidate that executes cleanly earns the
// execution share; the static share is scaled by validation
// cleanliness.
const (
	executionShare = 0.7
	staticShare    = 0.3

	// advisoryPenalty is deducted from the static share per
	// non-blocking validation issue, floored at zero.
	advisoryPenalty = 0.05
)

// BaseFitness maps an evaluation onto the canonical [0, 1] scale
// shared by every strategy:
//
//	0.0        - candidate failed to execute (crash, timeout, or a
//	             blocking validation issue)
//	(0, 0.7]   - executed; score reflects execution quality
//	(0.7, 1.0] - executed cleanly; remainder reflects static quality
func BaseFitness(eval *Evaluation) float64 {
	if eval == nil || eval.Sandbox == nil {
		return 0
	}
	if !eval.Sandbox.Success || eval.Sandbox.TimedOut {
		return 0
	}
	if eval.Validation != nil && eval.Validation.BlockingCount() > 0 {
		return 0
	}

	score := executionShare

	static := staticShare
	if eval.Validation != nil {
		for _, issue := range eval.Validation.Issues {
			if !issue.Blocking {
				static -= advisoryPenalty
			}
		}
		if static < 0 {
			static = 0
		}
	}
	return score + static
}

// OutputSimilarity compares actual output against a target on a
// [0, 1] scale using line overlap. Both sides are compared after
// trimming trailing whitespace per line.
func OutputSimilarity(actual, target string) float64 {
	actualLines := normalizeLines(actual)
	targetLines := normalizeLines(target)
	if len(targetLines) == 0 {
		return 1
	}
	if len(actualLines) == 0 {
		return 0
	}
	matched := 0
	limit := len(targetLines)
	if len(actualLines) < limit {
		limit = len(actualLines)
	}
	for i := 0; i < limit; i++ {
		if actualLines[i] == targetLines[i] {
			matched++
		}
	}
	denom := len(targetLines)
	if len(actualLines) > denom {
		denom = len(actualLines)
	}
	return float64(matched) / float64(denom)
}

func normalizeLines(s string) []string {
	raw := strings.Split(strings.TrimRight(s, "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		out = append(out, strings.TrimRight(line, " \t\r"))
	}
	if len(out) == 1 && out[0] == "" {
		return nil
	}
	return out
}

// clamp01 bounds a score to the canonical scale.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
