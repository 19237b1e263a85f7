// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/rollback"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snap(id, parent, reason string) *rollback.Snapshot {
	return &rollback.Snapshot{
		ID:        id,
		Code:      "package main\n",
		Timestamp: time.Now().UTC(),
		ParentID:  parent,
		Reason:    reason,
	}
}

func TestSnapshotLog(t *testing.T) {
	ctx := context.Background()

	t.Run("empty_log_has_no_latest", func(t *testing.T) {
		s := openTestStore(t)
		latest, err := s.Snapshots("subject").LatestSnapshot(ctx)
		require.NoError(t, err)
		assert.Nil(t, latest)
	})

	t.Run("append_order_preserved", func(t *testing.T) {
		s := openTestStore(t)
		log := s.Snapshots("subject")
		ids := []string{"a", "b", "c"}
		parent := ""
		for _, id := range ids {
			require.NoError(t, log.AppendSnapshot(ctx, snap(id, parent, "accepted mutation")))
			parent = id
		}

		chain, err := log.ListSnapshots(ctx)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		for i, id := range ids {
			assert.Equal(t, id, chain[i].ID)
		}

		latest, err := log.LatestSnapshot(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "c", latest.ID)
	})

	t.Run("sequence_recovers_across_log_handles", func(t *testing.T) {
		s := openTestStore(t)
		first := s.Snapshots("subject")
		require.NoError(t, first.AppendSnapshot(ctx, snap("a", "", "initial")))

		// A fresh handle over the same database must continue the
		// sequence, not restart it.
		second := s.Snapshots("subject")
		require.NoError(t, second.AppendSnapshot(ctx, snap("b", "a", "accepted mutation")))

		chain, err := second.ListSnapshots(ctx)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		assert.Equal(t, "a", chain[0].ID)
		assert.Equal(t, "b", chain[1].ID)
	})

	t.Run("subjects_are_isolated", func(t *testing.T) {
		s := openTestStore(t)
		require.NoError(t, s.Snapshots("one").AppendSnapshot(ctx, snap("a", "", "initial")))

		latest, err := s.Snapshots("two").LatestSnapshot(ctx)
		require.NoError(t, err)
		assert.Nil(t, latest)
	})
}

func TestSnapshotLog_ResumesRollbackManager(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	log := s.Snapshots("subject")

	mgr, err := rollback.NewManager(ctx, "package main\n", log, nil)
	require.NoError(t, err)
	_, err = mgr.Commit(ctx, "package main\n\nfunc main() {}\n", "accepted mutation")
	require.NoError(t, err)
	head := mgr.Current()

	// A second manager over the same log must resume at the committed
	// head, not the genesis code.
	resumed, err := rollback.NewManager(ctx, "package main\n", log, nil)
	require.NoError(t, err)
	assert.Equal(t, head.ID, resumed.Current().ID)
	assert.Equal(t, mgr.CurrentCode(), resumed.CurrentCode())
}

func TestRunLog(t *testing.T) {
	ctx := context.Background()

	t.Run("save_and_get", func(t *testing.T) {
		s := openTestStore(t)
		run := &RunRecord{
			ID:        "run-1",
			Subject:   "prog.go",
			Strategy:  "random",
			Status:    "RUNNING",
			StartedAt: time.Now().UTC(),
		}
		require.NoError(t, s.Runs().SaveRun(ctx, run))

		run.Status = "SUCCEEDED"
		run.FinalScore = 0.9
		run.Attempts = []AttemptRecord{{Number: 1, StrategyName: "random", Score: 0.9, Accepted: true}}
		require.NoError(t, s.Runs().SaveRun(ctx, run))

		got, err := s.Runs().GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, "SUCCEEDED", got.Status)
		assert.Len(t, got.Attempts, 1)
		assert.Equal(t, 0.9, got.FinalScore)
	})

	t.Run("missing_run", func(t *testing.T) {
		s := openTestStore(t)
		_, err := s.Runs().GetRun(ctx, "nope")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})

	t.Run("list_newest_first_with_subject_filter", func(t *testing.T) {
		s := openTestStore(t)
		base := time.Now().UTC()
		for i, spec := range []struct {
			id, subject string
		}{
			{"run-a", "one.go"},
			{"run-b", "two.go"},
			{"run-c", "one.go"},
		} {
			require.NoError(t, s.Runs().SaveRun(ctx, &RunRecord{
				ID:        spec.id,
				Subject:   spec.subject,
				Status:    "SUCCEEDED",
				StartedAt: base.Add(time.Duration(i) * time.Minute),
			}))
		}

		runs, err := s.Runs().ListRuns(ctx, "one.go")
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-c", runs[0].ID)
		assert.Equal(t, "run-a", runs[1].ID)
	})
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
