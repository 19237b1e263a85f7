// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the snapshot chain and the head pointer.
//
// All mutation goes through a single mutex: the head pointer is
// swapped atomically under it, and reads resolve through the latest
// accepted snapshot, so a partially-applied mutation is never
// observable.
//
// Thread Safety: all public methods are safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	chain  []*Snapshot
	byID   map[string]*Snapshot
	head   *Snapshot
	store  SnapshotStore
	logger *slog.Logger
}

// NewManager creates a manager seeded with initial code.
//
// Description:
//
//	When store already holds snapshots (a previous run crashed or
//	completed), the chain resumes from the store's latest snapshot and
//	initialCode is ignored; otherwise a genesis snapshot with reason
//	"initial" is created and persisted.
//
// Inputs:
//
//	ctx - Context for store access
//	initialCode - Subject code for the genesis snapshot
//	store - Optional persistence; nil keeps the chain in memory only
//	logger - Logger for structured logging (nil uses slog.Default)
//
// Outputs:
//
//	*Manager - Manager with a valid head snapshot
//	error - Non-nil on empty code or store failure
func NewManager(ctx context.Context, initialCode string, store SnapshotStore, logger *slog.Logger) (*Manager, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		byID:   make(map[string]*Snapshot),
		store:  store,
		logger: logger,
	}

	if store != nil {
		latest, err := store.LatestSnapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading latest snapshot: %w", err)
		}
		if latest != nil {
			m.appendLocked(latest)
			m.logger.Info("Resumed snapshot chain from store",
				slog.String("snapshot_id", latest.ID),
				slog.String("reason", latest.Reason),
			)
			return m, nil
		}
	}

	if strings.TrimSpace(initialCode) == "" {
		return nil, ErrEmptyCode
	}
	genesis := &Snapshot{
		ID:        uuid.New().String(),
		Code:      initialCode,
		Timestamp: time.Now(),
		Reason:    "initial",
	}
	if err := m.persist(ctx, genesis); err != nil {
		return nil, err
	}
	m.appendLocked(genesis)
	return m, nil
}

// Current returns a copy of the head snapshot.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.head
}

// CurrentCode returns the code of the head snapshot. Reads always
// resolve through the latest accepted snapshot.
func (m *Manager) CurrentCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.head.Code
}

// Commit appends a snapshot of new code and moves the head.
//
// Description:
//
//	Creating a snapshot is the only way current code changes. The new
//	snapshot's parent is the previous head, keeping the chain strictly
//	linear.
//
// Outputs:
//
//	*Snapshot - The appended snapshot (now head)
//	error - Non-nil on empty code or store failure; head unchanged
func (m *Manager) Commit(ctx context.Context, code, reason string) (*Snapshot, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &Snapshot{
		ID:        uuid.New().String(),
		Code:      code,
		Timestamp: time.Now(),
		ParentID:  m.head.ID,
		Reason:    reason,
	}
	if err := m.persist(ctx, snap); err != nil {
		return nil, err
	}
	m.appendLocked(snap)

	m.logger.Info("Snapshot committed",
		slog.String("snapshot_id", snap.ID),
		slog.String("parent_id", snap.ParentID),
		slog.String("reason", reason),
	)
	return snap, nil
}

// Rollback restores the code of an earlier snapshot.
//
// Description:
//
//	Restores exactly the snapshot identified by toID as current by
//	appending a new snapshot carrying that code with reason
//	"rollback". The pre-rollback head becomes the parent of the new
//	snapshot, so the chain records the rollback instead of erasing
//	history.
//
// Outputs:
//
//	*RollbackResult - Restored id plus the recorded snapshot
//	error - ErrSnapshotNotFound when toID is not in the chain
func (m *Manager) Rollback(ctx context.Context, toID string) (*RollbackResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.byID[toID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, toID)
	}

	recorded := &Snapshot{
		ID:        uuid.New().String(),
		Code:      target.Code,
		Timestamp: time.Now(),
		ParentID:  m.head.ID,
		Reason:    ReasonRollback,
	}
	if err := m.persist(ctx, recorded); err != nil {
		return nil, err
	}
	m.appendLocked(recorded)

	m.logger.Info("Rolled back",
		slog.String("restored_id", target.ID),
		slog.String("recorded_id", recorded.ID),
	)
	return &RollbackResult{RestoredID: target.ID, Recorded: recorded}, nil
}

// History returns the chain oldest first. The returned slice holds
// copies.
func (m *Manager) History() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := make([]Snapshot, len(m.chain))
	for i, snap := range m.chain {
		history[i] = *snap
	}
	return history
}

// Len returns the number of snapshots in the chain.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chain)
}

func (m *Manager) appendLocked(snap *Snapshot) {
	m.chain = append(m.chain, snap)
	m.byID[snap.ID] = snap
	m.head = snap
}

func (m *Manager) persist(ctx context.Context, snap *Snapshot) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.AppendSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("appending snapshot: %w", err)
	}
	return nil
}
