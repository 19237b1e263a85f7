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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianEvolve/services/evolution/mutation"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/rollback"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/sandbox"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/store"
	"github.com/AleutianAI/AleutianEvolve/services/evolution/strategy"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates evolution runs.
//
// Description:
//
//	Each run moves through a fixed pipeline per attempt: the strategy
//	proposes, the filter ranks, every surviving proposal is applied
//	and pushed through the static gate, the sandbox, and full
//	validation in parallel, and the best-scoring viable candidate is
//	compared against the acceptance threshold once the whole round
//	has completed. Acceptance commits a snapshot; anything else feeds
//	the failure back into the next attempt.
//
// Thread Safety: safe for concurrent use. Concurrent runs on the same
// subject are refused with ErrConflict.
type Engine struct {
	registry *strategy.Registry
	sandbox  *sandbox.Manager
	store    *store.Store
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]string
}

// New creates an engine. The store is optional; without it, snapshot
// chains and run histories live in memory only.
func New(registry *strategy.Registry, sandboxMgr *sandbox.Manager, st *store.Store, logger *slog.Logger) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("strategy registry cannot be nil")
	}
	if sandboxMgr == nil {
		return nil, fmt.Errorf("sandbox manager cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		sandbox:  sandboxMgr,
		store:    st,
		logger:   logger,
		active:   make(map[string]string),
	}, nil
}

// EvolveCode runs the full evolution loop for one subject.
//
// Description:
//
//	Resumes the subject's snapshot chain when a persistent store
//	holds one, then executes up to MaxAttempts rounds. The returned
//	Run is populated even on error, so callers always get the full
//	attempt history.
//
// Inputs:
//
//	ctx - Cancels the run; cancellation yields status FAILED
//	subject - Stable identifier for what is being evolved
//	code - The subject's current source
//	cfg - Run configuration; see DefaultConfig
//
// Outputs:
//
//	*Run - Complete run record with terminal status
//	error - ErrConflict for a busy subject, or the fatal fault that
//	        ended the run
func (e *Engine) EvolveCode(ctx context.Context, subject, code string, cfg Config) (*Run, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if subject == "" {
		return nil, ErrEmptySubject
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	if err := e.acquire(subject, runID); err != nil {
		recordConflict(ctx)
		return nil, err
	}
	defer e.release(subject)

	ctx, span := startSpan(ctx, "engine.EvolveCode",
		attribute.String("subject", subject),
		attribute.String("strategy", cfg.Strategy),
	)
	defer span.End()

	strat, err := e.registry.Get(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	mutator, err := mutation.NewMutator(cfg.Sandbox.Language)
	if err != nil {
		return nil, err
	}
	evaluator, err := NewEvaluator(e.sandbox, cfg.Sandbox.Language, cfg.Input, cfg.Sandbox)
	if err != nil {
		return nil, err
	}

	var snapLog rollback.SnapshotStore
	if e.store != nil {
		snapLog = e.store.Snapshots(subject)
	}
	chain, err := rollback.NewManager(ctx, code, snapLog, e.logger)
	if err != nil {
		return nil, err
	}

	run := newRun(runID, subject, cfg.Strategy, chain.CurrentCode())
	e.saveRun(ctx, run)
	run.start()
	e.saveRun(ctx, run)
	e.logger.Info("Evolution run started",
		slog.String("run_id", run.ID),
		slog.String("subject", subject),
		slog.String("strategy", cfg.Strategy),
		slog.Int("max_attempts", cfg.MaxAttempts))

	finish := func(status Status) {
		run.Status = status
		run.FinishedAt = time.Now().UTC()
		recordRun(ctx, cfg.Strategy, status, run.FinishedAt.Sub(run.StartedAt))
		e.saveRun(ctx, run)
		e.logger.Info("Evolution run finished",
			slog.String("run_id", run.ID),
			slog.String("status", string(status)),
			slog.Int("attempts", len(run.Attempts)),
			slog.Float64("final_score", run.FinalScore))
	}

	lastFailure := ""
	for number := 1; number <= cfg.MaxAttempts; number++ {
		if ctx.Err() != nil {
			finish(StatusFailed)
			return run, ctx.Err()
		}

		attempt, err := e.runAttempt(ctx, strat, mutator, evaluator, cfg, chain.CurrentCode(), lastFailure, number)
		if attempt != nil {
			run.Attempts = append(run.Attempts, attempt)
		}
		if err != nil {
			finish(StatusFailed)
			return run, err
		}
		recordAttempt(ctx, cfg.Strategy, attempt.Accepted, bestScore(attempt))
		e.saveRun(ctx, run)

		if !attempt.Accepted {
			lastFailure = failureTrace(attempt)
			continue
		}

		best := attempt.BestCandidate()
		snap, err := chain.Commit(ctx, best.Code, "accepted mutation")
		if err != nil {
			attempt.Accepted = false
			attempt.FailureReason = err.Error()
			finish(StatusFailed)
			return run, fmt.Errorf("%w: %v", ErrCommitFault, err)
		}
		run.SnapshotID = snap.ID
		run.FinalScore = best.Score
		run.FinalCode = best.Code

		if cfg.VerifyCommit {
			if reason, ok := e.verifyCommit(ctx, evaluator, best.Code); !ok {
				restored, rbErr := chain.Rollback(ctx, snap.ParentID)
				if rbErr != nil {
					finish(StatusFailed)
					return run, fmt.Errorf("rollback after failed verification: %w", rbErr)
				}
				attempt.Accepted = false
				attempt.FailureReason = "post-commit verification failed: " + reason
				run.SnapshotID = restored.RestoredID
				run.FinalScore = 0
				run.FinalCode = chain.CurrentCode()
				e.logger.Warn("Committed candidate failed verification, rolled back",
					slog.String("run_id", run.ID),
					slog.String("restored_id", restored.RestoredID),
					slog.String("reason", reason))
				finish(StatusRolledBack)
				return run, nil
			}
		}

		finish(StatusSucceeded)
		return run, nil
	}

	finish(StatusExhausted)
	return run, nil
}

// History returns persisted runs for a subject, newest first. Returns
// an empty slice when no store is configured.
func (e *Engine) History(ctx context.Context, subject string) ([]*store.RunRecord, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if e.store == nil {
		return []*store.RunRecord{}, nil
	}
	return e.store.Runs().ListRuns(ctx, subject)
}

// =============================================================================
// ATTEMPT EXECUTION
// =============================================================================

// runAttempt executes one propose-evaluate-decide round. The decision
// is made only after every candidate in the round has completed.
func (e *Engine) runAttempt(ctx context.Context, strat strategy.Strategy, mutator *mutation.Mutator, evaluator *Evaluator, cfg Config, baseCode, lastFailure string, number int) (*Attempt, error) {
	actx, cancel := context.WithTimeout(ctx, cfg.AttemptTimeout)
	defer cancel()

	attempt := &Attempt{
		Number:       number,
		StrategyName: strat.Name(),
		Best:         -1,
		StartedAt:    time.Now().UTC(),
	}
	defer func() { attempt.Duration = time.Since(attempt.StartedAt) }()

	proposals, err := strat.ProposeMutations(actx, baseCode, &strategy.Context{
		Goal:         cfg.Goal,
		LastFailure:  lastFailure,
		Input:        cfg.Input,
		TargetOutput: cfg.TargetOutput,
		Attempt:      number,
	})
	if err != nil {
		if attemptExpired(actx, err) {
			attempt.FailureReason = "attempt deadline expired during proposal generation"
			return attempt, nil
		}
		return attempt, fmt.Errorf("%w: %v", ErrStrategyFault, err)
	}

	filtered := strategy.FilterProposals(proposals, cfg.MinConfidence, cfg.MaxRisk)
	if len(filtered) == 0 {
		attempt.FailureReason = "no viable proposals"
		return attempt, nil
	}

	candidates := make([]*Candidate, len(filtered))
	g, gctx := errgroup.WithContext(actx)
	g.SetLimit(cfg.MaxParallel)
	for i, p := range filtered {
		g.Go(func() error {
			candidates[i] = e.evaluateProposal(gctx, mutator, evaluator, strat, baseCode, p)
			return candidateFault(candidates[i])
		})
	}
	if err := g.Wait(); err != nil {
		attempt.Candidates = candidates
		return attempt, err
	}
	attempt.Candidates = candidates

	// Best-of-round: decided only after the whole batch finished.
	for i, cand := range candidates {
		if !cand.Viable() {
			continue
		}
		if attempt.Best < 0 || cand.Score > candidates[attempt.Best].Score {
			attempt.Best = i
		}
	}

	switch {
	case attempt.Best < 0:
		attempt.FailureReason = roundFailure(candidates)
	case candidates[attempt.Best].Score > cfg.AcceptThreshold:
		attempt.Accepted = true
	default:
		attempt.FailureReason = fmt.Sprintf("best score %.3f did not clear threshold %.3f",
			candidates[attempt.Best].Score, cfg.AcceptThreshold)
	}
	return attempt, nil
}

// evaluateProposal applies one proposal and pushes the result through
// the gauntlet. Infrastructure faults are parked on the candidate and
// surfaced by candidateFault; an expired attempt deadline is a plain
// rejection.
func (e *Engine) evaluateProposal(ctx context.Context, mutator *mutation.Mutator, evaluator *Evaluator, strat strategy.Strategy, baseCode string, p *strategy.Proposal) *Candidate {
	cand := &Candidate{Proposal: p}

	current := baseCode
	for _, mut := range p.Mutations {
		applied := mutator.Apply(current, mut)
		if !applied.Success {
			cand.RejectReason = "mutation failed: " + applied.Reason
			return cand
		}
		current = applied.Mutated
	}
	cand.Code = current
	cand.Diff = mutation.UnifiedDiff(baseCode, current)

	quick, sres, full, err := evaluator.gauntlet(ctx, current)
	cand.Quick, cand.Sandbox, cand.Validation = quick, sres, full
	if err != nil {
		if attemptExpired(ctx, err) {
			cand.RejectReason = attemptDeadlineReason
			return cand
		}
		cand.RejectReason = faultPrefix + err.Error()
		return cand
	}
	if quick != nil && quick.BlockingCount() > 0 {
		cand.RejectReason = "blocked by static gate"
		return cand
	}
	if sres == nil || !sres.Success {
		cand.RejectReason = executionFailure(sres)
		return cand
	}

	score, err := strat.EvaluateMutation(ctx, &strategy.Evaluation{
		Code:       current,
		Sandbox:    sres,
		Validation: full,
	})
	if err != nil {
		if attemptExpired(ctx, err) {
			cand.RejectReason = attemptDeadlineReason
			return cand
		}
		cand.RejectReason = faultPrefix + err.Error()
		return cand
	}
	cand.Score = score
	if full != nil && full.BlockingCount() > 0 {
		cand.RejectReason = "blocked by validation"
	}
	return cand
}

// verifyCommit re-executes the committed code once. Returns ok=false
// with a reason when the re-run fails, signalling a flaky candidate.
func (e *Engine) verifyCommit(ctx context.Context, evaluator *Evaluator, code string) (string, bool) {
	_, sres, _, err := evaluator.gauntlet(ctx, code)
	if err != nil {
		return err.Error(), false
	}
	if sres == nil || !sres.Success {
		return executionFailure(sres), false
	}
	return "", true
}

// =============================================================================
// RUN REGISTRY & PERSISTENCE
// =============================================================================

// acquire reserves the subject for one run.
func (e *Engine) acquire(subject, runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if holder, busy := e.active[subject]; busy {
		return fmt.Errorf("%w: %s (run %s)", ErrConflict, subject, holder)
	}
	e.active[subject] = runID
	return nil
}

func (e *Engine) release(subject string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, subject)
}

// saveRun persists the run's current state. Persistence failures are
// logged, not fatal: losing history must not abort a live run.
func (e *Engine) saveRun(ctx context.Context, run *Run) {
	if e.store == nil {
		return
	}
	if err := e.store.Runs().SaveRun(ctx, toRecord(run)); err != nil {
		e.logger.Warn("Failed to persist run",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()))
	}
}

// toRecord converts a run to its persisted form.
func toRecord(run *Run) *store.RunRecord {
	rec := &store.RunRecord{
		ID:         run.ID,
		Subject:    run.Subject,
		Strategy:   run.Strategy,
		Status:     string(run.Status),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		FinalScore: run.FinalScore,
	}
	for _, a := range run.Attempts {
		ar := store.AttemptRecord{
			Number:        a.Number,
			StrategyName:  a.StrategyName,
			Accepted:      a.Accepted,
			FailureReason: a.FailureReason,
			Duration:      a.Duration,
		}
		if best := a.BestCandidate(); best != nil {
			ar.Score = best.Score
			if best.Proposal != nil {
				ar.Rationale = best.Proposal.Rationale
			}
		}
		if a.Accepted {
			ar.SnapshotID = run.SnapshotID
		}
		rec.Attempts = append(rec.Attempts, ar)
	}
	return rec
}

// =============================================================================
// HELPERS
// =============================================================================

// faultPrefix marks reject reasons that are infrastructure faults
// rather than candidate failures.
const faultPrefix = "fault: "

// attemptDeadlineReason rejects candidates cut off by the per-attempt
// timeout.
const attemptDeadlineReason = "attempt deadline expired before evaluation finished"

// attemptExpired distinguishes the attempt deadline from
// infrastructure faults: a candidate whose sandbox job was cancelled
// by the per-attempt timeout is a failed candidate, and the run moves
// on to the next attempt.
func attemptExpired(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded
}

// candidateFault surfaces infrastructure faults as round-aborting
// errors; candidate-level rejections stay on the record.
func candidateFault(cand *Candidate) error {
	if cand != nil && strings.HasPrefix(cand.RejectReason, faultPrefix) {
		return fmt.Errorf("%s", strings.TrimPrefix(cand.RejectReason, faultPrefix))
	}
	return nil
}

// executionFailure summarizes a failed sandbox result for the record
// and for the next attempt's failure context.
func executionFailure(sres *sandbox.Result) string {
	if sres == nil {
		return "execution produced no result"
	}
	if sres.TimedOut {
		return "execution timed out"
	}
	summary := fmt.Sprintf("execution failed with exit code %d", sres.ExitCode)
	if sres.Diagnostic != "" {
		summary += ": " + sres.Diagnostic
	}
	if out := strings.TrimSpace(sres.Output); out != "" {
		summary += "\n" + out
	}
	return summary
}

// roundFailure summarizes why an entire round produced no viable
// candidate.
func roundFailure(candidates []*Candidate) string {
	for _, cand := range candidates {
		if cand != nil && cand.RejectReason != "" {
			return cand.RejectReason
		}
	}
	return "all candidates rejected"
}

// failureTrace picks the most informative failure text to seed the
// next attempt with.
func failureTrace(attempt *Attempt) string {
	if best := attempt.BestCandidate(); best != nil && best.Sandbox != nil && !best.Sandbox.Success {
		return executionFailure(best.Sandbox)
	}
	for _, cand := range attempt.Candidates {
		if cand != nil && cand.Sandbox != nil && !cand.Sandbox.Success {
			return executionFailure(cand.Sandbox)
		}
	}
	return attempt.FailureReason
}

// bestScore returns the round's best candidate score, 0 when none.
func bestScore(attempt *Attempt) float64 {
	if best := attempt.BestCandidate(); best != nil {
		return best.Score
	}
	return 0
}
