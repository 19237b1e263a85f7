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
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/mutation"
)

// =============================================================================
// CROSSOVER
// =============================================================================

// CrossoverResult reports one recombination attempt.
type CrossoverResult struct {
	// Child is the recombined program, empty on failure.
	Child string

	// Success is false when no syntactically valid child emerged
	// within the resample budget.
	Success bool

	// Resamples counts how many draws were discarded before a valid
	// child appeared (or the budget ran out).
	Resamples int
}

// Crossover combines two parent programs into a child.
type Crossover interface {
	Combine(parentA, parentB string) (CrossoverResult, error)
}

// UniformCrossover recombines at top-level block granularity: each
// block of the child is drawn independently from either parent with
// probability 0.5. Children that fail to parse are resampled up to a
// fixed budget; exhausting the budget yields a failed result, not an
// error.
//
// Thread Safety: safe for concurrent use; the shared rand source is
// guarded by a mutex.
type UniformCrossover struct {
	mutator      *mutation.Mutator
	maxResamples int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniformCrossover creates a crossover operator. maxResamples must
// be at least 1.
func NewUniformCrossover(mutator *mutation.Mutator, maxResamples int, seed int64) (*UniformCrossover, error) {
	if mutator == nil {
		return nil, fmt.Errorf("mutator cannot be nil")
	}
	if maxResamples < 1 {
		return nil, fmt.Errorf("max resamples must be >= 1, got %d", maxResamples)
	}
	return &UniformCrossover{
		mutator:      mutator,
		maxResamples: maxResamples,
		rng:          rand.New(rand.NewSource(seed)),
	}, nil
}

// Combine draws children until one parses cleanly or the resample
// budget is spent.
func (c *UniformCrossover) Combine(parentA, parentB string) (CrossoverResult, error) {
	blocksA, err := c.mutator.TopLevelBlocks(parentA)
	if err != nil {
		return CrossoverResult{}, fmt.Errorf("parent A does not parse: %w", err)
	}
	blocksB, err := c.mutator.TopLevelBlocks(parentB)
	if err != nil {
		return CrossoverResult{}, fmt.Errorf("parent B does not parse: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 0; attempt < c.maxResamples; attempt++ {
		child := c.draw(blocksA, blocksB)
		if c.mutator.ParsesClean(child) {
			return CrossoverResult{Child: child, Success: true, Resamples: attempt}, nil
		}
	}
	return CrossoverResult{Success: false, Resamples: c.maxResamples}, nil
}

// draw builds one child, taking block i from either parent with equal
// probability. Positions present in only one parent are taken from
// that parent.
func (c *UniformCrossover) draw(blocksA, blocksB []string) string {
	n := len(blocksA)
	if len(blocksB) > n {
		n = len(blocksB)
	}
	blocks := make([]string, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i >= len(blocksA):
			blocks = append(blocks, blocksB[i])
		case i >= len(blocksB):
			blocks = append(blocks, blocksA[i])
		case c.rng.Intn(2) == 0:
			blocks = append(blocks, blocksA[i])
		default:
			blocks = append(blocks, blocksB[i])
		}
	}
	return strings.Join(blocks, "\n\n") + "\n"
}
