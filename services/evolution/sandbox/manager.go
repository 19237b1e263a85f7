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

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager assigns jobs to the pool and absorbs transient failures.
//
// Transient outcomes (timeout, resource exhaustion) are retried a
// bounded number of times; the last failed result is returned when
// retries are exhausted. ErrPoolBusy is retried with backoff up to the
// same bound and then surfaced unchanged so the caller can decide to
// drop the candidate.
//
// Thread Safety: safe for concurrent use.
type Manager struct {
	pool        *Pool
	maxRetries  int
	busyBackoff time.Duration
	logger      *slog.Logger
}

// ManagerConfig tunes retry behavior.
type ManagerConfig struct {
	// MaxRetries bounds re-executions of a transiently failed job.
	// Default: 1 (one retry after the initial attempt).
	MaxRetries int

	// BusyBackoff is the wait between ErrPoolBusy retries.
	// Default: 50ms.
	BusyBackoff time.Duration
}

// DefaultManagerConfig returns sensible retry settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{MaxRetries: 1, BusyBackoff: 50 * time.Millisecond}
}

// NewManager creates a manager around a started pool.
func NewManager(pool *Pool, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BusyBackoff <= 0 {
		cfg.BusyBackoff = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pool:        pool,
		maxRetries:  cfg.MaxRetries,
		busyBackoff: cfg.BusyBackoff,
		logger:      logger,
	}
}

// Execute runs one job through the pool with bounded retries.
//
// Description:
//
//	Submits the job, waits for its result or context cancellation.
//	A timed-out or resource-exhausted result is retried up to
//	MaxRetries times; the final failed result is then returned as a
//	normal result. Pool exhaustion is retried with backoff and then
//	surfaced as ErrPoolBusy.
//
// Outputs:
//
//	*Result - Execution outcome, nil only on submission failure
//	error - ErrPoolBusy / ErrPoolClosed / setup errors / ctx.Err()
func (m *Manager) Execute(ctx context.Context, job Job) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var last *Result
	var lastErr error

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		result, err := m.runOnce(ctx, job)
		if err != nil {
			if err == ErrPoolBusy {
				lastErr = err
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(m.busyBackoff):
				}
				continue
			}
			return result, err
		}

		if !isTransientFailure(result) {
			return result, nil
		}

		last = result
		if attempt < m.maxRetries {
			m.logger.Warn("Retrying transient sandbox failure",
				slog.Int("attempt", attempt+1),
				slog.Int("max_retries", m.maxRetries),
				slog.Bool("timed_out", result.TimedOut),
				slog.String("diagnostic", result.Diagnostic),
			)
		}
	}

	if last != nil {
		return last, nil
	}
	return nil, lastErr
}

func (m *Manager) runOnce(ctx context.Context, job Job) (*Result, error) {
	resultCh, err := m.pool.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case jr := <-resultCh:
		return jr.Result, jr.Err
	}
}

// isTransientFailure reports whether a failed result is worth one more
// try: timeouts and resource exhaustion sometimes clear on a quieter
// machine.
func isTransientFailure(result *Result) bool {
	if result == nil || result.Success {
		return false
	}
	if result.TimedOut {
		return true
	}
	diag := strings.ToLower(result.Diagnostic)
	return strings.Contains(diag, "limit exceeded") || strings.Contains(diag, "resource limit")
}
