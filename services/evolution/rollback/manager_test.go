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
	"errors"
	"sync"
	"testing"
)

func newChain(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(context.Background(), "code A", nil, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestNewManager(t *testing.T) {
	t.Run("creates_genesis_snapshot", func(t *testing.T) {
		m := newChain(t)
		head := m.Current()
		if head.Code != "code A" || head.Reason != "initial" || head.ParentID != "" {
			t.Fatalf("Unexpected genesis: %+v", head)
		}
		if m.Len() != 1 {
			t.Fatalf("Len() = %d, want 1", m.Len())
		}
	})

	t.Run("empty_code_rejected", func(t *testing.T) {
		if _, err := NewManager(context.Background(), "  \n", nil, nil); !errors.Is(err, ErrEmptyCode) {
			t.Fatalf("error = %v, want ErrEmptyCode", err)
		}
	})

	t.Run("nil_context_rejected", func(t *testing.T) {
		//nolint:staticcheck
		if _, err := NewManager(nil, "code", nil, nil); !errors.Is(err, ErrNilContext) {
			t.Fatalf("error = %v, want ErrNilContext", err)
		}
	})
}

func TestManager_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("moves_head_and_links_parent", func(t *testing.T) {
		m := newChain(t)
		genesis := m.Current()

		snap, err := m.Commit(ctx, "code B", "accepted mutation")
		if err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
		if snap.ParentID != genesis.ID {
			t.Errorf("ParentID = %s, want %s", snap.ParentID, genesis.ID)
		}
		if m.CurrentCode() != "code B" {
			t.Error("Head code did not move")
		}
	})

	t.Run("empty_code_rejected_head_unchanged", func(t *testing.T) {
		m := newChain(t)
		if _, err := m.Commit(ctx, "", "bad"); !errors.Is(err, ErrEmptyCode) {
			t.Fatalf("error = %v, want ErrEmptyCode", err)
		}
		if m.CurrentCode() != "code A" {
			t.Error("Head changed on failed commit")
		}
	})
}

func TestManager_Rollback(t *testing.T) {
	ctx := context.Background()

	t.Run("appends_rollback_snapshot_preserving_history", func(t *testing.T) {
		// Chain A -> B -> C, then roll back to A: a fourth snapshot D
		// must appear carrying A's code, with C as parent and reason
		// "rollback".
		m := newChain(t)
		a := m.Current()
		if _, err := m.Commit(ctx, "code B", "accepted mutation"); err != nil {
			t.Fatalf("Commit(B) error = %v", err)
		}
		c, err := m.Commit(ctx, "code C", "accepted mutation")
		if err != nil {
			t.Fatalf("Commit(C) error = %v", err)
		}

		result, err := m.Rollback(ctx, a.ID)
		if err != nil {
			t.Fatalf("Rollback() error = %v", err)
		}
		if result.RestoredID != a.ID {
			t.Errorf("RestoredID = %s, want %s", result.RestoredID, a.ID)
		}
		d := result.Recorded
		if d.Code != "code A" || d.Reason != ReasonRollback || d.ParentID != c.ID {
			t.Fatalf("Unexpected rollback snapshot: %+v", d)
		}
		if m.Len() != 4 {
			t.Fatalf("Len() = %d, want 4 (history never shrinks)", m.Len())
		}
		if m.CurrentCode() != "code A" {
			t.Error("Current code is not the restored code")
		}
	})

	t.Run("unknown_snapshot_rejected", func(t *testing.T) {
		m := newChain(t)
		if _, err := m.Rollback(ctx, "missing"); !errors.Is(err, ErrSnapshotNotFound) {
			t.Fatalf("error = %v, want ErrSnapshotNotFound", err)
		}
	})

	t.Run("rollback_to_head_is_allowed", func(t *testing.T) {
		m := newChain(t)
		head := m.Current()
		result, err := m.Rollback(ctx, head.ID)
		if err != nil {
			t.Fatalf("Rollback() error = %v", err)
		}
		if result.Recorded.Code != head.Code {
			t.Error("Rollback to head altered the code")
		}
	})
}

func TestManager_History(t *testing.T) {
	ctx := context.Background()
	m := newChain(t)
	if _, err := m.Commit(ctx, "code B", "accepted mutation"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	history := m.History()
	if len(history) != 2 {
		t.Fatalf("History length = %d, want 2", len(history))
	}
	if history[0].Reason != "initial" || history[1].Code != "code B" {
		t.Fatalf("Unexpected history: %+v", history)
	}

	// Mutating the returned slice must not touch the chain.
	history[0].Code = "tampered"
	if m.History()[0].Code == "tampered" {
		t.Fatal("History() exposed internal state")
	}
}

func TestManager_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	m := newChain(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Commit(ctx, "concurrent code", "accepted mutation")
		}()
	}
	wg.Wait()

	if m.Len() != 17 {
		t.Fatalf("Len() = %d, want 17", m.Len())
	}
	// The chain must stay strictly linear: each snapshot's parent is
	// its predecessor.
	history := m.History()
	for i := 1; i < len(history); i++ {
		if history[i].ParentID != history[i-1].ID {
			t.Fatalf("Chain not linear at %d", i)
		}
	}
}
