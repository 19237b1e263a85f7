// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates evolution runs: propose, sandbox,
// validate, score, and conditionally commit, with crash-safe rollback
// through the snapshot chain.
package engine

import (
	"time"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/sandbox"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/strategy"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/validate"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle state of an evolution run.
//
// Transitions:
//
//	PENDING -> RUNNING
//	RUNNING -> SUCCEEDED | FAILED | ROLLED_BACK | EXHAUSTED
type Status string

const (
	// StatusPending means the run is created but not started.
	StatusPending Status = "PENDING"

	// StatusRunning means attempts are in flight.
	StatusRunning Status = "RUNNING"

	// StatusSucceeded means a candidate was accepted and committed.
	StatusSucceeded Status = "SUCCEEDED"

	// StatusFailed means the run aborted on an orchestrator fault.
	StatusFailed Status = "FAILED"

	// StatusRolledBack means a commit was made and then undone after
	// post-commit verification failed.
	StatusRolledBack Status = "ROLLED_BACK"

	// StatusExhausted means every attempt completed without an
	// acceptable candidate.
	StatusExhausted Status = "EXHAUSTED"
)

// IsTerminal reports whether the run has finished.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRolledBack, StatusExhausted:
		return true
	default:
		return false
	}
}

// =============================================================================
// CANDIDATE & ATTEMPT
// =============================================================================

// Candidate is one proposal's journey through the gauntlet within an
// attempt.
type Candidate struct {
	// Proposal is the strategy's original proposal.
	Proposal *strategy.Proposal `json:"proposal"`

	// Code is the mutated program, empty when application failed.
	Code string `json:"-"`

	// Diff is the unified diff against the attempt's base code.
	Diff string `json:"diff,omitempty"`

	// Quick holds static-gate findings; a blocking finding stops the
	// candidate before the sandbox.
	Quick *validate.Result `json:"quick,omitempty"`

	// Sandbox is the execution result, nil when the candidate never
	// reached the sandbox.
	Sandbox *sandbox.Result `json:"sandbox,omitempty"`

	// Validation is the full post-execution validation result.
	Validation *validate.Result `json:"validation,omitempty"`

	// Score is the strategy-assigned fitness in [0, 1].
	Score float64 `json:"score"`

	// RejectReason explains why the candidate was not accepted.
	RejectReason string `json:"reject_reason,omitempty"`
}

// Viable reports whether the candidate executed successfully and
// raised no blocking findings.
func (c *Candidate) Viable() bool {
	if c.Code == "" || c.Sandbox == nil || !c.Sandbox.Success {
		return false
	}
	if c.Quick != nil && c.Quick.BlockingCount() > 0 {
		return false
	}
	if c.Validation != nil && c.Validation.BlockingCount() > 0 {
		return false
	}
	return true
}

// Attempt records one full propose-evaluate-decide round.
type Attempt struct {
	// Number is 1-based within the run.
	Number int `json:"number"`

	// StrategyName is the strategy consulted for this attempt.
	StrategyName string `json:"strategy_name"`

	// Candidates are every proposal evaluated this round.
	Candidates []*Candidate `json:"candidates,omitempty"`

	// Best indexes the winning candidate in Candidates, -1 when the
	// round produced none.
	Best int `json:"best"`

	// Accepted is true when the best candidate cleared the threshold
	// and was committed.
	Accepted bool `json:"accepted"`

	// FailureReason summarizes why the attempt did not commit.
	FailureReason string `json:"failure_reason,omitempty"`

	// StartedAt and Duration time the round.
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// BestCandidate returns the winning candidate, or nil.
func (a *Attempt) BestCandidate() *Candidate {
	if a.Best < 0 || a.Best >= len(a.Candidates) {
		return nil
	}
	return a.Candidates[a.Best]
}

// =============================================================================
// RUN
// =============================================================================

// Run is the full record of one evolution run.
type Run struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// Subject names what is being evolved; concurrent runs on the
	// same subject are refused.
	Subject string `json:"subject"`

	// Strategy is the registry name of the strategy used.
	Strategy string `json:"strategy"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Attempts in order. Always populated, even for failed runs.
	Attempts []*Attempt `json:"attempts"`

	// FinalCode is the code in effect when the run ended: the
	// committed candidate on success, otherwise the unchanged (or
	// restored) original.
	FinalCode string `json:"-"`

	// FinalScore is the accepted candidate's score, 0 otherwise.
	FinalScore float64 `json:"final_score"`

	// SnapshotID is the committed snapshot on success, or the
	// restored snapshot after a rollback.
	SnapshotID string `json:"snapshot_id,omitempty"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// newRun creates a run record in its initial PENDING state.
func newRun(id, subject, strategyName, code string) *Run {
	return &Run{
		ID:        id,
		Subject:   subject,
		Strategy:  strategyName,
		Status:    StatusPending,
		FinalCode: code,
	}
}

// start transitions the run to RUNNING and stamps its start time.
func (r *Run) start() {
	r.Status = StatusRunning
	r.StartedAt = time.Now().UTC()
}
