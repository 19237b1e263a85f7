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
)

// =============================================================================
// FULL VALIDATOR
// =============================================================================

// CodeValidator is the full static gate. It runs every QuickValidator
// check plus API-usage and consistency analysis. It runs on candidates
// that survived sandbox execution, before acceptance.
//
// Thread Safety: safe for concurrent use.
type CodeValidator struct {
	quick *QuickValidator
}

// NewCodeValidator creates a full validator for a language.
func NewCodeValidator(language string) (*CodeValidator, error) {
	quick, err := NewQuickValidator(language)
	if err != nil {
		return nil, err
	}
	return &CodeValidator{quick: quick}, nil
}

// Validate runs the full static gate.
//
// Description:
//
//	Runs the quick gate first; a quick failure is returned as-is. On a
//	parseable candidate it then checks import/usage consistency: a
//	package referenced but never imported blocks acceptance (the
//	candidate cannot compile), an imported but unused package is
//	advisory for Go (also a compile error, but kept advisory here so
//	the sandbox result stays the authority on compilability).
//
// Outputs:
//
//	*Result - Combined findings and pass/fail
//	error - Non-nil only for nil context or internal parse failures
func (v *CodeValidator) Validate(ctx context.Context, code string) (*Result, error) {
	result, err := v.quick.Validate(ctx, code)
	if err != nil {
		return nil, err
	}
	if !result.Passed {
		return result, nil
	}

	if v.quick.language == "go" {
		v.checkGoImports(ctx, code, result)
	}

	for _, issue := range result.Issues {
		if issue.Blocking {
			result.Passed = false
			break
		}
	}
	return result, nil
}

// Language returns the validator's language.
func (v *CodeValidator) Language() string {
	return v.quick.language
}

// checkGoImports cross-references imported packages against qualified
// identifiers used in the code.
func (v *CodeValidator) checkGoImports(ctx context.Context, code string, result *Result) {
	content := []byte(code)
	parser := sitter.NewParser()
	parser.SetLanguage(v.quick.sitterLang)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return
	}
	defer tree.Close()

	imported := make(map[string]int) // package base name -> line
	used := make(map[string]bool)

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		switch node.Type() {
		case "import_spec":
			if pathNode := node.ChildByFieldName("path"); pathNode != nil {
				path := strings.Trim(pathNode.Content(content), `"`)
				base := path
				if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
					base = path[idx+1:]
				}
				imported[base] = int(node.StartPoint().Row) + 1
			}
		case "selector_expression", "qualified_type":
			text := node.Content(content)
			if dot := strings.IndexByte(text, '.'); dot > 0 {
				used[text[:dot]] = true
			}
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i))
		}
	}
	walk(tree.RootNode())

	for pkg := range used {
		if !isLikelyPackageName(pkg) {
			continue
		}
		if _, ok := imported[pkg]; !ok && isStdlibName(pkg) {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("package %q used but not imported", pkg),
				Rule:     "missing-import",
				Blocking: true,
			})
		}
	}
	for pkg, line := range imported {
		if !used[pkg] {
			result.Issues = append(result.Issues, Issue{
				Severity: SeverityLow,
				Message:  fmt.Sprintf("package %q imported but not used", pkg),
				Line:     line,
				Rule:     "unused-import",
				Blocking: false,
			})
		}
	}
}

// isLikelyPackageName filters out selector prefixes that are clearly
// local variables (method receivers, struct fields).
func isLikelyPackageName(name string) bool {
	return len(name) > 1 && name == strings.ToLower(name)
}

// isStdlibName recognizes common standard-library package names so the
// missing-import check stays conservative: flagging an unknown local
// identifier would produce false blocks.
func isStdlibName(name string) bool {
	switch name {
	case "fmt", "os", "io", "strings", "strconv", "time", "math", "sort",
		"bytes", "bufio", "errors", "context", "sync", "slices", "maps":
		return true
	}
	return false
}
