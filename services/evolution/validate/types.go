// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate implements the static gates candidate code must
// pass before and after sandbox execution.
//
// Two-gate discipline: the cheap QuickValidator (syntax + forbidden
// constructs) always runs before the expensive dynamic gate (sandbox
// execution); the full CodeValidator adds security and consistency
// checks on candidates that survived execution. Neither gate ever runs
// the code.
package validate

import "errors"

// =============================================================================
// SEVERITY & ISSUES
// =============================================================================

// Severity ranks a validation issue.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// rank orders severities for comparisons; higher is worse.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Issue is one finding from a validation pass.
type Issue struct {
	// Severity ranks the finding.
	Severity Severity `json:"severity"`

	// Message describes the finding.
	Message string `json:"message"`

	// Line is the 1-based source line, 0 when unknown.
	Line int `json:"line,omitempty"`

	// Rule names the pattern or check that fired.
	Rule string `json:"rule,omitempty"`

	// Blocking findings fail validation; non-blocking ones are
	// recorded but do not gate the candidate.
	Blocking bool `json:"blocking"`
}

// Result is the outcome of validating one candidate.
type Result struct {
	// Passed is false when any blocking issue was found or the code
	// does not parse.
	Passed bool `json:"passed"`

	// Issues lists all findings, blocking and advisory.
	Issues []Issue `json:"issues,omitempty"`
}

// BlockingCount returns the number of blocking issues.
func (r *Result) BlockingCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Blocking {
			n++
		}
	}
	return n
}

// WorstSeverity returns the highest severity present, or "" when the
// result is clean.
func (r *Result) WorstSeverity() Severity {
	var worst Severity
	for _, issue := range r.Issues {
		if worst == "" || issue.Severity.rank() > worst.rank() {
			worst = issue.Severity
		}
	}
	return worst
}

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrUnsupportedLanguage indicates no pattern set exists for the
	// requested language.
	ErrUnsupportedLanguage = errors.New("no validation patterns for language")
)
