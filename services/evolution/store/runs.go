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
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrRunNotFound indicates an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// AttemptRecord is the persisted form of one evolution attempt.
type AttemptRecord struct {
	Number        int           `json:"number"`
	StrategyName  string        `json:"strategy_name"`
	Rationale     string        `json:"rationale,omitempty"`
	Score         float64       `json:"score"`
	Accepted      bool          `json:"accepted"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Duration      time.Duration `json:"duration"`
	SnapshotID    string        `json:"snapshot_id,omitempty"`
}

// RunRecord is the persisted form of one evolution run.
type RunRecord struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	Strategy   string          `json:"strategy"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
	FinalScore float64         `json:"final_score"`
	Attempts   []AttemptRecord `json:"attempts,omitempty"`
}

func runKey(id string) []byte {
	return []byte("run/" + id)
}

var runPrefix = []byte("run/")

// RunLog reads and writes run histories.
//
// Thread Safety: safe for concurrent use.
type RunLog struct {
	db *badger.DB
}

// SaveRun upserts a run record. Called once per status transition, so
// the stored record always reflects the run's latest known state.
func (l *RunLog) SaveRun(ctx context.Context, run *RunRecord) error {
	if ctx == nil {
		return errors.New("context must not be nil")
	}
	if run == nil || run.ID == "" {
		return errors.New("run record must carry an id")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run.ID), payload)
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns one run by id.
func (l *RunLog) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}
	var run *RunRecord
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r RunRecord
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("unmarshal run %s: %w", id, err)
			}
			run = &r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs, newest first. A non-empty subject filters to
// that subject.
func (l *RunLog) ListRuns(ctx context.Context, subject string) ([]*RunRecord, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}
	var runs []*RunRecord
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = runPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(runPrefix); it.ValidForPrefix(runPrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var r RunRecord
				if err := json.Unmarshal(val, &r); err != nil {
					return fmt.Errorf("unmarshal run: %w", err)
				}
				if subject == "" || r.Subject == subject {
					runs = append(runs, &r)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}
