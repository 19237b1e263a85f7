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
	"strings"
	"testing"
)

const parentA = `package main

import "fmt"

func greet() string {
	return "hello"
}

func main() {
	fmt.Println(greet())
}
`

const parentB = `package main

import "fmt"

func greet() string {
	return "goodbye"
}

func main() {
	fmt.Println(greet())
	fmt.Println("done")
}
`

func TestUniformCrossover_Combine(t *testing.T) {
	m := newGoMutator(t)

	t.Run("produces_parseable_child", func(t *testing.T) {
		c, err := NewUniformCrossover(m, 5, 1)
		if err != nil {
			t.Fatalf("NewUniformCrossover() error = %v", err)
		}
		result, err := c.Combine(parentA, parentB)
		if err != nil {
			t.Fatalf("Combine() error = %v", err)
		}
		if !result.Success {
			t.Fatalf("Combine() failed after %d resamples", result.Resamples)
		}
		if !m.ParsesClean(result.Child) {
			t.Fatalf("Child does not parse:\n%s", result.Child)
		}
		if !strings.HasPrefix(result.Child, "package main") {
			t.Error("Child lost its package clause")
		}
	})

	t.Run("child_blocks_come_from_parents", func(t *testing.T) {
		c, err := NewUniformCrossover(m, 5, 7)
		if err != nil {
			t.Fatalf("NewUniformCrossover() error = %v", err)
		}
		result, err := c.Combine(parentA, parentB)
		if err != nil {
			t.Fatalf("Combine() error = %v", err)
		}
		if !strings.Contains(result.Child, `"hello"`) && !strings.Contains(result.Child, `"goodbye"`) {
			t.Error("Child contains neither parent's greet body")
		}
	})

	t.Run("identical_parents_yield_parent", func(t *testing.T) {
		c, err := NewUniformCrossover(m, 5, 1)
		if err != nil {
			t.Fatalf("NewUniformCrossover() error = %v", err)
		}
		result, err := c.Combine(parentA, parentA)
		if err != nil {
			t.Fatalf("Combine() error = %v", err)
		}
		if !result.Success || result.Resamples != 0 {
			t.Fatalf("Expected immediate success, got success=%v resamples=%d",
				result.Success, result.Resamples)
		}
		if result.Child != parentA {
			t.Error("Identical parents should reproduce the parent verbatim")
		}
	})

	t.Run("exhausts_resample_budget_on_broken_parents", func(t *testing.T) {
		// Both parents carry an unterminated function, so every drawn
		// child fails to parse.
		broken := "package main\n\nfunc main() {\n"
		c, err := NewUniformCrossover(m, 3, 1)
		if err != nil {
			t.Fatalf("NewUniformCrossover() error = %v", err)
		}
		result, err := c.Combine(broken, broken)
		if err != nil {
			t.Fatalf("Combine() error = %v", err)
		}
		if result.Success {
			t.Fatal("Expected failure for unparseable children")
		}
		if result.Resamples != 3 {
			t.Errorf("Resamples = %d, want 3", result.Resamples)
		}
		if result.Child != "" {
			t.Error("Failed result should carry no child")
		}
	})

	t.Run("invalid_budget_rejected", func(t *testing.T) {
		if _, err := NewUniformCrossover(m, 0, 1); err == nil {
			t.Fatal("Expected error for zero resample budget")
		}
	})
}
