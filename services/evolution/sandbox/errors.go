// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import "errors"

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrEmptyCode indicates an execution request with no code.
	ErrEmptyCode = errors.New("code must not be empty")

	// ErrUnsupportedLanguage indicates no execution command is
	// registered for the requested language.
	ErrUnsupportedLanguage = errors.New("no execution command for language")

	// ErrPoolBusy indicates the job queue is at its bound. The caller
	// may retry after backoff or drop the candidate. This is the
	// explicit backpressure signal; submission never blocks past the
	// queue bound.
	ErrPoolBusy = errors.New("sandbox pool busy")

	// ErrPoolClosed indicates the pool is shut down.
	ErrPoolClosed = errors.New("sandbox pool closed")

	// ErrWorkspace indicates the scoped working area could not be
	// created or written.
	ErrWorkspace = errors.New("sandbox workspace setup failed")
)
