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

// PatternVersion is the current version of the pattern database.
const PatternVersion = "2026.08.14"

// ForbiddenPattern describes a construct candidate code may not
// contain. Matching happens on the syntax tree: NodeType selects the
// node kind, Needles are substrings matched against the node text.
type ForbiddenPattern struct {
	// Name identifies the pattern in issues.
	Name string

	// Language the pattern applies to.
	Language string

	// NodeType is the tree-sitter node type to inspect.
	NodeType string

	// Needles are substrings; the pattern fires when the node's text
	// contains any of them.
	Needles []string

	// Severity ranks the finding.
	Severity Severity

	// Message describes why the construct is forbidden.
	Message string

	// Blocking patterns fail validation outright.
	Blocking bool
}

// GoPatterns returns forbidden constructs for Go candidates.
//
// The engine's candidates run inside the sandbox, so the blocking set
// targets constructs that try to break out of it: dynamic execution,
// filesystem escape, and low-level syscalls.
func GoPatterns() []ForbiddenPattern {
	return []ForbiddenPattern{
		{
			Name:     "dynamic-exec",
			Language: "go",
			NodeType: "call_expression",
			Needles:  []string{"exec.Command", "exec.CommandContext", "syscall.Exec", "syscall.ForkExec"},
			Severity: SeverityCritical,
			Message:  "dynamic code execution: candidates may not spawn processes",
			Blocking: true,
		},
		{
			Name:     "plugin-load",
			Language: "go",
			NodeType: "call_expression",
			Needles:  []string{"plugin.Open"},
			Severity: SeverityCritical,
			Message:  "dynamic code loading: plugin.Open is forbidden in candidates",
			Blocking: true,
		},
		{
			Name:     "fs-escape",
			Language: "go",
			NodeType: "call_expression",
			Needles:  []string{"os.RemoveAll", "os.Chmod", "os.Chown", "os.Symlink"},
			Severity: SeverityHigh,
			Message:  "filesystem escape: destructive or permission-changing file operations",
			Blocking: true,
		},
		{
			Name:     "parent-traversal",
			Language: "go",
			NodeType: "interpreted_string_literal",
			Needles:  []string{"../"},
			Severity: SeverityHigh,
			Message:  "path traversal: candidate references a parent directory",
			Blocking: true,
		},
		{
			Name:     "unsafe-pointer",
			Language: "go",
			NodeType: "call_expression",
			Needles:  []string{"unsafe.Pointer", "unsafe.Add", "unsafe.Slice"},
			Severity: SeverityHigh,
			Message:  "memory unsafety: unsafe package can corrupt sandbox state",
			Blocking: true,
		},
		{
			Name:     "network-dial",
			Language: "go",
			NodeType: "call_expression",
			Needles:  []string{"net.Dial", "net.Listen", "http.Get", "http.Post"},
			Severity: SeverityMedium,
			Message:  "network access: candidates run with networking disabled",
			Blocking: false,
		},
	}
}

// PythonPatterns returns forbidden constructs for Python candidates.
func PythonPatterns() []ForbiddenPattern {
	return []ForbiddenPattern{
		{
			Name:     "dynamic-exec",
			Language: "python",
			NodeType: "call",
			Needles:  []string{"eval(", "exec(", "compile(", "__import__("},
			Severity: SeverityCritical,
			Message:  "dynamic code execution: eval/exec are forbidden in candidates",
			Blocking: true,
		},
		{
			Name:     "process-spawn",
			Language: "python",
			NodeType: "call",
			Needles:  []string{"os.system", "subprocess.", "os.popen", "os.execv"},
			Severity: SeverityCritical,
			Message:  "dynamic code execution: candidates may not spawn processes",
			Blocking: true,
		},
		{
			Name:     "fs-escape",
			Language: "python",
			NodeType: "call",
			Needles:  []string{"shutil.rmtree", "os.chmod", "os.chown"},
			Severity: SeverityHigh,
			Message:  "filesystem escape: destructive file operations",
			Blocking: true,
		},
		{
			Name:     "parent-traversal",
			Language: "python",
			NodeType: "string",
			Needles:  []string{"../"},
			Severity: SeverityHigh,
			Message:  "path traversal: candidate references a parent directory",
			Blocking: true,
		},
		{
			Name:     "network-access",
			Language: "python",
			NodeType: "call",
			Needles:  []string{"socket.", "urllib.", "requests."},
			Severity: SeverityMedium,
			Message:  "network access: candidates run with networking disabled",
			Blocking: false,
		},
	}
}

// AllPatterns returns the pattern sets keyed by language.
func AllPatterns() map[string][]ForbiddenPattern {
	return map[string][]ForbiddenPattern{
		"go":     GoPatterns(),
		"python": PythonPatterns(),
	}
}
