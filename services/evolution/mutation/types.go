// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mutation defines structural code edits and the mutator that
// applies them.
//
// Mutations address their target by a structural path (syntax-tree
// node kind plus index chain) rather than byte offsets, so an edit
// remains valid across reformatting and non-overlapping concurrent
// changes to the same file.
package mutation

import (
	"fmt"
	"strings"
)

// =============================================================================
// MUTATION KINDS
// =============================================================================

// Kind categorizes a structural edit.
type Kind string

const (
	// KindOperatorSwap replaces one operator with another of the same
	// arity (e.g. + -> -).
	KindOperatorSwap Kind = "operator_swap"

	// KindLiteralTweak replaces a literal value (number, string, bool).
	KindLiteralTweak Kind = "literal_tweak"

	// KindStatementDelete removes a statement.
	KindStatementDelete Kind = "statement_delete"

	// KindBlockReplace replaces a whole block or statement with new code.
	KindBlockReplace Kind = "block_replace"

	// KindExpressionReplace replaces an arbitrary expression.
	KindExpressionReplace Kind = "expression_replace"
)

// =============================================================================
// STRUCTURAL PATHS
// =============================================================================

// PathStep selects one named child of the current node: the Index-th
// child whose node type equals Kind.
type PathStep struct {
	// Kind is the tree-sitter node type ("function_declaration",
	// "binary_expression", ...).
	Kind string `json:"kind"`

	// Index is the ordinal among siblings of the same kind.
	Index int `json:"index"`
}

// NodePath addresses a syntax-tree node from the root by a chain of
// (kind, index) steps.
type NodePath struct {
	Steps []PathStep `json:"steps"`
}

// String renders the path as "function_declaration[0]/block[0]/...".
func (p NodePath) String() string {
	if len(p.Steps) == 0 {
		return "."
	}
	parts := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		parts[i] = fmt.Sprintf("%s[%d]", step.Kind, step.Index)
	}
	return strings.Join(parts, "/")
}

// IsRoot reports whether the path addresses the whole file.
func (p NodePath) IsRoot() bool {
	return len(p.Steps) == 0
}

// ParsePath parses the String form back into a NodePath.
func ParsePath(s string) (NodePath, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return NodePath{}, nil
	}
	parts := strings.Split(s, "/")
	steps := make([]PathStep, 0, len(parts))
	for _, part := range parts {
		open := strings.IndexByte(part, '[')
		if open <= 0 || !strings.HasSuffix(part, "]") {
			return NodePath{}, fmt.Errorf("malformed path step %q", part)
		}
		var index int
		if _, err := fmt.Sscanf(part[open:], "[%d]", &index); err != nil || index < 0 {
			return NodePath{}, fmt.Errorf("malformed path index in %q", part)
		}
		steps = append(steps, PathStep{Kind: part[:open], Index: index})
	}
	return NodePath{Steps: steps}, nil
}

// =============================================================================
// MUTATION & RESULT
// =============================================================================

// Mutation is one localized structural edit to source code.
type Mutation struct {
	// Path addresses the node being edited.
	Path NodePath `json:"path"`

	// Original is the exact current text of the addressed node. Apply
	// fails with location_not_found when the node's text differs.
	Original string `json:"original"`

	// Replacement is the new text for the node.
	Replacement string `json:"replacement"`

	// Kind categorizes the edit.
	Kind Kind `json:"kind"`
}

// Inverse returns the edit that undoes this mutation. Valid when the
// replacement parses to a node of the same kind at the same path, as
// operator and literal mutations do.
func (m Mutation) Inverse() Mutation {
	return Mutation{
		Path:        m.Path,
		Original:    m.Replacement,
		Replacement: m.Original,
		Kind:        m.Kind,
	}
}

// ReasonLocationNotFound is the failure reason when the structural
// path does not resolve or the node text mismatches.
const ReasonLocationNotFound = "location_not_found"

// Result is the outcome of applying a Mutation.
type Result struct {
	// Mutation is the edit that was attempted.
	Mutation Mutation `json:"mutation"`

	// Success is true when the edit was applied.
	Success bool `json:"success"`

	// Reason describes the failure ("location_not_found", parse
	// errors). Empty on success.
	Reason string `json:"reason,omitempty"`

	// Mutated is the full source after the edit. Equals the input on
	// failure.
	Mutated string `json:"-"`

	// Diff is a unified diff of the edit for the audit trail. Present
	// on success and empty-change failures alike.
	Diff string `json:"diff"`
}

// =============================================================================
// TARGETS
// =============================================================================

// Target is a mutable location discovered in source code. Strategies
// enumerate targets and turn them into Mutations.
type Target struct {
	// Path addresses the node.
	Path NodePath

	// NodeKind is the tree-sitter node type at the path.
	NodeKind string

	// Text is the node's current source text.
	Text string

	// StartLine is the 1-based line of the node, for diagnostics.
	StartLine int

	// Operator is the operator token for binary/unary expression
	// nodes, empty otherwise.
	Operator string

	// OpOffset is the operator's byte offset within Text, -1 when the
	// node has no operator field.
	OpOffset int
}

// SwapOperator returns the target's text with its operator replaced.
// Returns false when the target carries no operator.
func (t Target) SwapOperator(newOp string) (string, bool) {
	if t.Operator == "" || t.OpOffset < 0 || t.OpOffset+len(t.Operator) > len(t.Text) {
		return "", false
	}
	return t.Text[:t.OpOffset] + newOp + t.Text[t.OpOffset+len(t.Operator):], true
}
