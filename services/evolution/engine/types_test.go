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

import (
	"testing"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/sandbox"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/validate"
)

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusSucceeded, StatusFailed, StatusRolledBack, StatusExhausted}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.IsTerminal() {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}
}

func TestRun_Lifecycle(t *testing.T) {
	run := newRun("run-1", "subject", "random", "print(1)\n")
	if run.Status != StatusPending {
		t.Fatalf("newRun() Status = %s, want %s", run.Status, StatusPending)
	}
	if !run.StartedAt.IsZero() {
		t.Error("newRun() StartedAt set before start")
	}

	run.start()
	if run.Status != StatusRunning {
		t.Errorf("start() Status = %s, want %s", run.Status, StatusRunning)
	}
	if run.StartedAt.IsZero() {
		t.Error("start() left StartedAt zero")
	}
}

func TestCandidate_Viable(t *testing.T) {
	blocking := &validate.Result{Issues: []validate.Issue{{
		Severity: validate.SeverityCritical,
		Message:  "dynamic code execution",
		Blocking: true,
	}}}
	advisory := &validate.Result{Issues: []validate.Issue{{
		Severity: validate.SeverityMedium,
		Message:  "network access",
	}}}

	tests := []struct {
		name string
		cand Candidate
		want bool
	}{
		{
			"clean_pass",
			Candidate{Code: "x", Sandbox: &sandbox.Result{Success: true}},
			true,
		},
		{
			"advisory_findings_pass",
			Candidate{Code: "x", Sandbox: &sandbox.Result{Success: true}, Quick: advisory, Validation: advisory},
			true,
		},
		{
			"no_code",
			Candidate{Sandbox: &sandbox.Result{Success: true}},
			false,
		},
		{
			"never_executed",
			Candidate{Code: "x"},
			false,
		},
		{
			"execution_failed",
			Candidate{Code: "x", Sandbox: &sandbox.Result{ExitCode: 1}},
			false,
		},
		{
			"static_gate_block",
			Candidate{Code: "x", Sandbox: &sandbox.Result{Success: true}, Quick: blocking},
			false,
		},
		{
			"validation_block",
			Candidate{Code: "x", Sandbox: &sandbox.Result{Success: true}, Validation: blocking},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cand.Viable(); got != tt.want {
				t.Errorf("Viable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttempt_BestCandidate(t *testing.T) {
	a := &Attempt{Best: -1}
	if a.BestCandidate() != nil {
		t.Error("BestCandidate() != nil for empty round")
	}

	winner := &Candidate{Score: 0.9}
	a = &Attempt{Best: 1, Candidates: []*Candidate{{Score: 0.2}, winner}}
	if got := a.BestCandidate(); got != winner {
		t.Errorf("BestCandidate() = %+v, want the indexed winner", got)
	}

	a = &Attempt{Best: 5, Candidates: []*Candidate{{}}}
	if a.BestCandidate() != nil {
		t.Error("BestCandidate() != nil for out-of-range index")
	}
}

func TestToRecord(t *testing.T) {
	run := &Run{
		ID:         "run-1",
		Subject:    "subject",
		Strategy:   "random",
		Status:     StatusSucceeded,
		FinalScore: 0.85,
		SnapshotID: "snap-9",
		Attempts: []*Attempt{
			{Number: 1, StrategyName: "random", Best: -1, FailureReason: "no viable proposals"},
			{
				Number:       2,
				StrategyName: "random",
				Best:         0,
				Accepted:     true,
				Candidates:   []*Candidate{{Score: 0.85}},
			},
		},
	}

	rec := toRecord(run)
	if rec.ID != "run-1" || rec.Status != "SUCCEEDED" || rec.FinalScore != 0.85 {
		t.Errorf("toRecord() = %+v, want run fields carried over", rec)
	}
	if len(rec.Attempts) != 2 {
		t.Fatalf("toRecord() attempts = %d, want 2", len(rec.Attempts))
	}
	if rec.Attempts[0].SnapshotID != "" || rec.Attempts[0].Score != 0 {
		t.Errorf("toRecord() failed attempt = %+v, want no snapshot or score", rec.Attempts[0])
	}
	if rec.Attempts[1].SnapshotID != "snap-9" || rec.Attempts[1].Score != 0.85 {
		t.Errorf("toRecord() accepted attempt = %+v, want snapshot and score", rec.Attempts[1])
	}
}
