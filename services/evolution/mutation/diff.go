// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mutation

import (
	"errors"

	"github.com/pmezard/go-difflib/difflib"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrUnsupportedLanguage indicates no tree-sitter grammar is wired
	// for the requested language.
	ErrUnsupportedLanguage = errors.New("no grammar for language")
)

// =============================================================================
// DIFF
// =============================================================================

// UnifiedDiff renders a unified diff between two versions of a
// candidate, three lines of context, for the audit trail.
func UnifiedDiff(before, after string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/candidate",
		ToFile:   "b/candidate",
		Context:  3,
	})
	if err != nil {
		// difflib only fails on writer errors, which cannot happen
		// with the string builder it uses internally.
		return ""
	}
	return text
}
