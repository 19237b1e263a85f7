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
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/rollback"
)

// snapshotKey builds "snap/<subject>/<seq>" with a fixed-width
// sequence so lexicographic key order equals append order.
func snapshotKey(subject string, seq uint64) []byte {
	return []byte(fmt.Sprintf("snap/%s/%020d", subject, seq))
}

func snapshotPrefix(subject string) []byte {
	return []byte(fmt.Sprintf("snap/%s/", subject))
}

// SnapshotLog is the durable append-only snapshot chain for one
// subject. It satisfies the rollback manager's persistence surface.
//
// Thread Safety: safe for concurrent use; appends are serialized.
type SnapshotLog struct {
	db      *badger.DB
	subject string

	mu   sync.Mutex
	next uint64
	init bool
}

var _ rollback.SnapshotStore = (*SnapshotLog)(nil)

// AppendSnapshot durably records a snapshot at the next sequence
// position.
func (l *SnapshotLog) AppendSnapshot(ctx context.Context, snap *rollback.Snapshot) error {
	if ctx == nil {
		return rollback.ErrNilContext
	}
	if snap == nil {
		return errors.New("snapshot must not be nil")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureSequenceLocked(); err != nil {
		return err
	}
	key := snapshotKey(l.subject, l.next)
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
	if err != nil {
		return fmt.Errorf("append snapshot %s: %w", snap.ID, err)
	}
	l.next++
	return nil
}

// LatestSnapshot returns the most recently appended snapshot, or nil
// when the log is empty.
func (l *SnapshotLog) LatestSnapshot(ctx context.Context) (*rollback.Snapshot, error) {
	if ctx == nil {
		return nil, rollback.ErrNilContext
	}
	var latest *rollback.Snapshot
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = snapshotPrefix(l.subject)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the prefix range end.
		seek := append(snapshotPrefix(l.subject), 0xFF)
		it.Seek(seek)
		if !it.ValidForPrefix(snapshotPrefix(l.subject)) {
			return nil
		}
		return it.Item().Value(func(val []byte) error {
			var snap rollback.Snapshot
			if err := json.Unmarshal(val, &snap); err != nil {
				return fmt.Errorf("unmarshal snapshot: %w", err)
			}
			latest = &snap
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// ListSnapshots returns the full chain in append order.
func (l *SnapshotLog) ListSnapshots(ctx context.Context) ([]*rollback.Snapshot, error) {
	if ctx == nil {
		return nil, rollback.ErrNilContext
	}
	var chain []*rollback.Snapshot
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = snapshotPrefix(l.subject)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(snapshotPrefix(l.subject)); it.ValidForPrefix(snapshotPrefix(l.subject)); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var snap rollback.Snapshot
				if err := json.Unmarshal(val, &snap); err != nil {
					return fmt.Errorf("unmarshal snapshot: %w", err)
				}
				chain = append(chain, &snap)
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
	return chain, nil
}

// ensureSequenceLocked recovers the next sequence number from the
// highest existing key. Caller holds l.mu.
func (l *SnapshotLog) ensureSequenceLocked() error {
	if l.init {
		return nil
	}
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = snapshotPrefix(l.subject)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(snapshotPrefix(l.subject), 0xFF)
		it.Seek(seek)
		if !it.ValidForPrefix(snapshotPrefix(l.subject)) {
			l.next = 0
			return nil
		}
		key := it.Item().Key()
		var seq uint64
		if _, err := fmt.Sscanf(string(key[len(snapshotPrefix(l.subject)):]), "%020d", &seq); err != nil {
			return fmt.Errorf("malformed snapshot key %q: %w", key, err)
		}
		l.next = seq + 1
		return nil
	})
	if err != nil {
		return err
	}
	l.init = true
	return nil
}
