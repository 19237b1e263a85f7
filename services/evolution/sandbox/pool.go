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
	"sync"
)

// =============================================================================
// POOL
// =============================================================================

// Job is one sandboxed execution request.
type Job struct {
	// Code is the candidate source to execute.
	Code string

	// Input is fed to the candidate's stdin.
	Input string

	// Config bounds the execution.
	Config Config
}

// JobResult pairs an execution outcome with its error.
type JobResult struct {
	Result *Result
	Err    error
}

type jobWrapper struct {
	ctx      context.Context
	job      Job
	resultCh chan JobResult
}

// PoolConfig sizes the pool.
type PoolConfig struct {
	// Workers is the number of concurrent sandbox executions.
	// Default: 4.
	Workers int

	// QueueDepth bounds pending jobs beyond the running ones. When the
	// queue is full, Submit fails fast with ErrPoolBusy. Default: 16.
	QueueDepth int
}

// DefaultPoolConfig returns sensible pool sizing.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Workers: 4, QueueDepth: 16}
}

// Pool runs sandbox jobs on a fixed set of workers with a bounded
// queue. Submission past the bound fails fast with ErrPoolBusy rather
// than blocking; that is the caller's backpressure signal.
//
// Thread Safety: safe for concurrent use.
type Pool struct {
	sandbox *Sandbox
	queue   chan jobWrapper
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewPool creates a pool around the given sandbox.
//
// Inputs:
//
//	sb - Sandbox used by every worker
//	cfg - Pool sizing
//	logger - Logger for structured logging (nil uses slog.Default)
//
// Outputs:
//
//	*Pool - Pool ready for Start
func NewPool(sb *Sandbox, cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sandbox: sb,
		queue:   make(chan jobWrapper, cfg.QueueDepth),
		workers: cfg.Workers,
		logger:  logger,
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Debug("Sandbox pool started",
		slog.Int("workers", p.workers),
		slog.Int("queue_depth", cap(p.queue)),
	)
}

// Submit enqueues a job and returns a channel delivering its result.
//
// Description:
//
//	Never blocks past the queue bound: a full queue fails immediately
//	with ErrPoolBusy so the caller can retry or drop the candidate.
//	The result channel is buffered; the caller may abandon it.
//
// Outputs:
//
//	<-chan JobResult - Delivers exactly one JobResult
//	error - ErrPoolBusy on a full queue, ErrPoolClosed after Close
func (p *Pool) Submit(ctx context.Context, job Job) (<-chan JobResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	// The enqueue stays under the mutex: Close sets closed and closes
	// the queue under the same lock, so the send can never hit a
	// closed channel. The send is non-blocking, so the lock is never
	// held for long.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.started {
		return nil, ErrPoolClosed
	}

	resultCh := make(chan JobResult, 1)
	select {
	case p.queue <- jobWrapper{ctx: ctx, job: job, resultCh: resultCh}:
		return resultCh, nil
	default:
		recordPoolBusy(ctx)
		return nil, ErrPoolBusy
	}
}

// Close stops accepting jobs, waits for in-flight executions, and
// fails any queued jobs with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("Sandbox pool closed")
	return nil
}

// QueueLen returns the number of queued (not yet running) jobs.
func (p *Pool) QueueLen() int {
	return len(p.queue)
}

// Workers returns the worker count.
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for wrapper := range p.queue {
		// A job whose submitter already gave up is not worth running.
		if wrapper.ctx.Err() != nil {
			wrapper.resultCh <- JobResult{Err: wrapper.ctx.Err()}
			continue
		}
		result, err := p.sandbox.Execute(wrapper.ctx, wrapper.job.Code, wrapper.job.Input, wrapper.job.Config)
		wrapper.resultCh <- JobResult{Result: result, Err: err}
	}
}
