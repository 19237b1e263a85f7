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
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// =============================================================================
// MUTATOR
// =============================================================================

// Mutator applies structural edits to source code.
//
// Apply is pure: it never touches the filesystem and returns identical
// output for identical input, so applying the same Mutation twice to
// the same source yields the same Result (idempotence).
//
// Thread Safety: safe for concurrent use. A tree-sitter parser is
// created per call.
type Mutator struct {
	language   string
	sitterLang *sitter.Language
}

// NewMutator creates a mutator for the given language ("go", "python").
//
// Outputs:
//
//	*Mutator - Ready-to-use mutator
//	error - ErrUnsupportedLanguage for unknown languages
func NewMutator(language string) (*Mutator, error) {
	lang, err := sitterLanguage(language)
	if err != nil {
		return nil, err
	}
	return &Mutator{language: language, sitterLang: lang}, nil
}

// Language returns the mutator's language name.
func (m *Mutator) Language() string {
	return m.language
}

// Apply performs one structural edit.
//
// Description:
//
//	Parses the source, resolves the mutation's structural path, checks
//	the addressed node's text against Mutation.Original, and splices in
//	the replacement. A unified diff is always produced for the audit
//	trail, including on failure (where it is empty).
//
// Inputs:
//
//	original - Full source code to edit
//	mut - The edit to apply
//
// Outputs:
//
//	Result - Success flag, mutated source, failure reason, diff
func (m *Mutator) Apply(original string, mut Mutation) Result {
	result := Result{Mutation: mut, Mutated: original}

	// A root path addresses the whole program; compare against the
	// full source rather than the root node's byte extent.
	if mut.Path.IsRoot() {
		if original != mut.Original {
			result.Reason = ReasonLocationNotFound
			return result
		}
		result.Mutated = mut.Replacement
		result.Success = true
		result.Diff = UnifiedDiff(original, mut.Replacement)
		return result
	}

	content := []byte(original)
	root, tree, err := m.parse(content)
	if err != nil {
		result.Reason = fmt.Sprintf("parse failed: %v", err)
		return result
	}
	defer tree.Close()

	node := resolvePath(root, mut.Path)
	if node == nil {
		result.Reason = ReasonLocationNotFound
		return result
	}
	if node.Content(content) != mut.Original {
		result.Reason = ReasonLocationNotFound
		return result
	}

	mutated := splice(content, node.StartByte(), node.EndByte(), mut.Replacement)
	result.Mutated = string(mutated)
	result.Success = true
	result.Diff = UnifiedDiff(original, result.Mutated)
	return result
}

// Targets enumerates mutable nodes of the given kinds.
//
// Description:
//
//	Walks the named syntax tree and returns a Target for every node
//	whose type is in kinds. An empty kinds list matches every named
//	node. Enumeration order is deterministic (pre-order).
//
// Inputs:
//
//	code - Source to scan
//	kinds - tree-sitter node types to match ("binary_expression", ...)
//
// Outputs:
//
//	[]Target - Discovered locations, possibly empty
//	error - Non-nil when the source does not parse
func (m *Mutator) Targets(code string, kinds ...string) ([]Target, error) {
	content := []byte(code)
	root, tree, err := m.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	kindSet := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	var targets []Target
	walkNamed(root, func(node *sitter.Node) {
		if len(kindSet) > 0 && !kindSet[node.Type()] {
			return
		}
		if node == root {
			return
		}
		targets = append(targets, makeTarget(root, node, content))
	})
	return targets, nil
}

// Locate resolves a structural path back to a Target.
//
// Outputs:
//
//	*Target - The node at the path
//	error - Non-nil when the source does not parse or the path does
//	        not resolve
func (m *Mutator) Locate(code string, path NodePath) (*Target, error) {
	content := []byte(code)
	root, tree, err := m.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	node := resolvePath(root, path)
	if node == nil {
		return nil, fmt.Errorf("path %q does not resolve", path.String())
	}
	target := makeTarget(root, node, content)
	return &target, nil
}

// TopLevelBlocks returns the source text of every named child of the
// root node, in order. For Go this is the package clause, imports, and
// each top-level declaration.
func (m *Mutator) TopLevelBlocks(code string) ([]string, error) {
	content := []byte(code)
	root, tree, err := m.parse(content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	blocks := make([]string, 0, root.NamedChildCount())
	for i := 0; i < int(root.NamedChildCount()); i++ {
		blocks = append(blocks, root.NamedChild(i).Content(content))
	}
	return blocks, nil
}

// ParsesClean reports whether code parses without syntax errors. Used
// by strategies to discard proposals that fail to re-parse into a
// valid program.
func (m *Mutator) ParsesClean(code string) bool {
	root, tree, err := m.parse([]byte(code))
	if err != nil {
		return false
	}
	defer tree.Close()
	return !root.HasError()
}

func (m *Mutator) parse(content []byte) (*sitter.Node, *sitter.Tree, error) {
	// New parser instance per call for thread safety.
	parser := sitter.NewParser()
	parser.SetLanguage(m.sitterLang)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, nil, fmt.Errorf("tree-sitter returned nil root node")
	}
	return root, tree, nil
}

func sitterLanguage(language string) (*sitter.Language, error) {
	switch strings.ToLower(language) {
	case "go":
		return golang.GetLanguage(), nil
	case "python":
		return python.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
}

// =============================================================================
// PATH RESOLUTION
// =============================================================================

// resolvePath walks a structural path from the root. Returns nil when
// any step does not resolve.
func resolvePath(root *sitter.Node, path NodePath) *sitter.Node {
	node := root
	for _, step := range path.Steps {
		var next *sitter.Node
		seen := 0
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() != step.Kind {
				continue
			}
			if seen == step.Index {
				next = child
				break
			}
			seen++
		}
		if next == nil {
			return nil
		}
		node = next
	}
	return node
}

// PathForNode derives the structural path of a node relative to root.
//
// The returned path is stable across reformatting: it counts named
// siblings of the same kind, not byte offsets.
func PathForNode(root, node *sitter.Node) NodePath {
	var steps []PathStep
	for current := node; current != nil && !current.Equal(root); current = current.Parent() {
		parent := current.Parent()
		if parent == nil {
			break
		}
		index := 0
		for i := 0; i < int(parent.NamedChildCount()); i++ {
			sibling := parent.NamedChild(i)
			if sibling.Equal(current) {
				break
			}
			if sibling.Type() == current.Type() {
				index++
			}
		}
		steps = append([]PathStep{{Kind: current.Type(), Index: index}}, steps...)
	}
	return NodePath{Steps: steps}
}

// makeTarget builds a Target for a node, populating operator metadata
// for expression nodes that carry an operator field.
func makeTarget(root, node *sitter.Node, content []byte) Target {
	target := Target{
		Path:      PathForNode(root, node),
		NodeKind:  node.Type(),
		Text:      node.Content(content),
		StartLine: int(node.StartPoint().Row) + 1,
		OpOffset:  -1,
	}
	if op := node.ChildByFieldName("operator"); op != nil {
		target.Operator = op.Content(content)
		target.OpOffset = int(op.StartByte() - node.StartByte())
	}
	return target
}

// walkNamed visits every named node in pre-order.
func walkNamed(node *sitter.Node, visit func(*sitter.Node)) {
	visit(node)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walkNamed(node.NamedChild(i), visit)
	}
}

// splice replaces content[start:end) with replacement.
func splice(content []byte, start, end uint32, replacement string) []byte {
	out := make([]byte, 0, len(content)-int(end-start)+len(replacement))
	out = append(out, content[:start]...)
	out = append(out, replacement...)
	out = append(out, content[end:]...)
	return out
}
