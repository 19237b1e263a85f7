// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rollback maintains the versioned snapshot chain that is the
// single source of truth for "current code".
//
// The chain is append-only and strictly linear within a run: every
// snapshot points to its parent, creating a snapshot is the only way
// current code changes, and a rollback appends a new snapshot
// recording the rollback event itself, so history is never lost.
package rollback

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is an immutable recorded version of the subject's code.
type Snapshot struct {
	// ID uniquely identifies the snapshot.
	ID string `json:"id"`

	// Code is the full source at this point in time.
	Code string `json:"code"`

	// Timestamp is when the snapshot was created.
	Timestamp time.Time `json:"timestamp"`

	// ParentID links to the previous snapshot, empty for the genesis
	// snapshot.
	ParentID string `json:"parent_id,omitempty"`

	// Reason records why the snapshot exists ("initial", "accepted
	// mutation", "rollback").
	Reason string `json:"reason"`
}

// RollbackResult describes a completed rollback.
type RollbackResult struct {
	// RestoredID is the snapshot whose code is current again.
	RestoredID string `json:"restored_id"`

	// Recorded is the new snapshot appended to record the rollback
	// event. Its parent is the pre-rollback head.
	Recorded *Snapshot `json:"recorded"`
}

// ReasonRollback is the Reason recorded on rollback snapshots.
const ReasonRollback = "rollback"

// =============================================================================
// PERSISTENCE COLLABORATOR
// =============================================================================

// SnapshotStore is the narrow persistence surface the manager writes
// through. Implementations must preserve append order.
type SnapshotStore interface {
	// AppendSnapshot durably records a snapshot.
	AppendSnapshot(ctx context.Context, snap *Snapshot) error

	// LatestSnapshot returns the most recently appended snapshot, or
	// nil when the store is empty.
	LatestSnapshot(ctx context.Context) (*Snapshot, error)
}

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNilContext indicates a nil context.Context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrSnapshotNotFound indicates the requested snapshot id is not
	// in the chain.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrEmptyCode indicates an attempt to snapshot empty code.
	ErrEmptyCode = errors.New("code must not be empty")
)
