// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "errors"

var (
	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrEmptyCode indicates an empty subject program.
	ErrEmptyCode = errors.New("code must not be empty")

	// ErrEmptySubject indicates a missing subject identifier.
	ErrEmptySubject = errors.New("subject must not be empty")

	// ErrConflict indicates another run is already active for the
	// subject. The caller must wait for it to reach a terminal state.
	ErrConflict = errors.New("run already active for subject")

	// ErrStrategyFault indicates the proposal strategy failed in a
	// way the run cannot recover from.
	ErrStrategyFault = errors.New("strategy fault")

	// ErrCommitFault indicates the accepted candidate could not be
	// committed to the snapshot chain.
	ErrCommitFault = errors.New("commit fault")
)
