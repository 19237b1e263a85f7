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

import "errors"

var (
	// ErrInvalidStrategy indicates a nil or unnamed strategy was
	// offered to a registry.
	ErrInvalidStrategy = errors.New("invalid strategy")

	// ErrDuplicateStrategy indicates a name collision in a registry.
	ErrDuplicateStrategy = errors.New("duplicate strategy")

	// ErrUnknownStrategy indicates a lookup for an unregistered name.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrNoEvaluator indicates a strategy that requires a
	// CandidateEvaluator was constructed without one.
	ErrNoEvaluator = errors.New("candidate evaluator is required")

	// ErrPopulationTooSmall indicates an evolutionary population
	// dropped below the minimum viable size.
	ErrPopulationTooSmall = errors.New("population must contain at least 2 individuals")
)
