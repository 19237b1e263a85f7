// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// =============================================================================
// QUICK VALIDATOR
// =============================================================================

// QuickValidator is the cheap static gate. It checks syntax and scans
// the syntax tree for forbidden constructs without ever executing the
// candidate. It always runs before the sandbox gate.
//
// Thread Safety: safe for concurrent use. Tree-sitter parsers are
// created per call.
type QuickValidator struct {
	language   string
	sitterLang *sitter.Language
	patterns   []ForbiddenPattern
}

// NewQuickValidator creates a quick validator for a language.
//
// Outputs:
//
//	*QuickValidator - The configured validator
//	error - ErrUnsupportedLanguage for unknown languages
func NewQuickValidator(language string) (*QuickValidator, error) {
	patterns, ok := AllPatterns()[strings.ToLower(language)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	var lang *sitter.Language
	switch strings.ToLower(language) {
	case "go":
		lang = golang.GetLanguage()
	case "python":
		lang = python.GetLanguage()
	}
	return &QuickValidator{
		language:   strings.ToLower(language),
		sitterLang: lang,
		patterns:   patterns,
	}, nil
}

// Validate runs the static gate on candidate code.
//
// Description:
//
//	Parses the candidate and fails it on syntax errors, forbidden
//	constructs, or the unbounded-recursion heuristic. The candidate is
//	never executed.
//
// Inputs:
//
//	ctx - Context for cancellation
//	code - Candidate source code
//
// Outputs:
//
//	*Result - Findings and pass/fail
//	error - Non-nil only for nil context or internal parse failures
func (v *QuickValidator) Validate(ctx context.Context, code string) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	content := []byte(code)
	parser := sitter.NewParser()
	parser.SetLanguage(v.sitterLang)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	result := &Result{Passed: true}
	root := tree.RootNode()
	if root == nil || root.HasError() {
		result.Passed = false
		result.Issues = append(result.Issues, Issue{
			Severity: SeverityCritical,
			Message:  "candidate does not parse",
			Rule:     "syntax",
			Blocking: true,
		})
		return result, nil
	}

	v.scanPatterns(root, content, result)
	v.scanRecursion(root, content, result)

	for _, issue := range result.Issues {
		if issue.Blocking {
			result.Passed = false
			break
		}
	}
	return result, nil
}

// Language returns the validator's language.
func (v *QuickValidator) Language() string {
	return v.language
}

// scanPatterns walks the tree matching forbidden patterns.
func (v *QuickValidator) scanPatterns(node *sitter.Node, content []byte, result *Result) {
	nodeType := node.Type()
	for _, pattern := range v.patterns {
		if pattern.NodeType != nodeType {
			continue
		}
		text := node.Content(content)
		for _, needle := range pattern.Needles {
			if strings.Contains(text, needle) {
				result.Issues = append(result.Issues, Issue{
					Severity: pattern.Severity,
					Message:  pattern.Message,
					Line:     int(node.StartPoint().Row) + 1,
					Rule:     pattern.Name,
					Blocking: pattern.Blocking,
				})
				break
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		v.scanPatterns(node.NamedChild(i), content, result)
	}
}

// scanRecursion flags functions that call themselves without any
// branching construct in their body. A self-call with no conditional
// has no base case and will not terminate.
func (v *QuickValidator) scanRecursion(root *sitter.Node, content []byte, result *Result) {
	funcNode, bodyField := "function_declaration", "body"
	if v.language == "python" {
		funcNode = "function_definition"
	}

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node.Type() == funcNode {
			name := ""
			if nameNode := node.ChildByFieldName("name"); nameNode != nil {
				name = nameNode.Content(content)
			}
			body := node.ChildByFieldName(bodyField)
			if name != "" && body != nil {
				bodyText := body.Content(content)
				if strings.Contains(bodyText, name+"(") && !containsBranch(body) {
					result.Issues = append(result.Issues, Issue{
						Severity: SeverityHigh,
						Message:  fmt.Sprintf("unbounded recursion: %s calls itself with no branch", name),
						Line:     int(node.StartPoint().Row) + 1,
						Rule:     "unbounded-recursion",
						Blocking: true,
					})
				}
			}
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i))
		}
	}
	walk(root)
}

// containsBranch reports whether a subtree has any conditional that
// could serve as a recursion base case.
func containsBranch(node *sitter.Node) bool {
	switch node.Type() {
	case "if_statement", "expression_switch_statement", "type_switch_statement",
		"select_statement", "conditional_expression", "match_statement":
		return true
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if containsBranch(node.NamedChild(i)) {
			return true
		}
	}
	return false
}
