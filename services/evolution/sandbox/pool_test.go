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
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func shellJob(code string) Job {
	return Job{Code: code, Config: shellConfig()}
}

// waitForQueueDrain polls until the worker has dequeued everything or
// the deadline passes.
func waitForQueueDrain(t *testing.T, p *Pool, deadline time.Duration) {
	t.Helper()
	stop := time.Now().Add(deadline)
	for p.QueueLen() > 0 {
		if time.Now().After(stop) {
			t.Fatalf("QueueLen() = %d after %v, want 0", p.QueueLen(), deadline)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPool_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers_result", func(t *testing.T) {
		pool := NewPool(newShellSandbox(t), DefaultPoolConfig(), nil)
		pool.Start()
		defer pool.Close()

		resultCh, err := pool.Submit(ctx, shellJob(`echo pooled`))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		jr := <-resultCh
		if jr.Err != nil {
			t.Fatalf("job error = %v", jr.Err)
		}
		if !jr.Result.Success || !strings.Contains(jr.Result.Output, "pooled") {
			t.Errorf("job result = %+v, want success with output", jr.Result)
		}
	})

	t.Run("full_queue_fails_fast", func(t *testing.T) {
		pool := NewPool(newShellSandbox(t), PoolConfig{Workers: 1, QueueDepth: 1}, nil)
		pool.Start()
		defer pool.Close()

		// Occupy the single worker, then wait until it has dequeued so
		// the next submission deterministically lands in the queue.
		if _, err := pool.Submit(ctx, shellJob(`sleep 3`)); err != nil {
			t.Fatalf("Submit() first job error = %v", err)
		}
		waitForQueueDrain(t, pool, 2*time.Second)

		if _, err := pool.Submit(ctx, shellJob(`sleep 3`)); err != nil {
			t.Fatalf("Submit() queued job error = %v", err)
		}
		if _, err := pool.Submit(ctx, shellJob(`echo overflow`)); !errors.Is(err, ErrPoolBusy) {
			t.Fatalf("Submit() error = %v, want ErrPoolBusy", err)
		}
	})

	t.Run("rejects_before_start", func(t *testing.T) {
		pool := NewPool(newShellSandbox(t), DefaultPoolConfig(), nil)
		if _, err := pool.Submit(ctx, shellJob(`echo x`)); !errors.Is(err, ErrPoolClosed) {
			t.Errorf("Submit() error = %v, want ErrPoolClosed", err)
		}
	})

	t.Run("rejects_after_close", func(t *testing.T) {
		pool := NewPool(newShellSandbox(t), DefaultPoolConfig(), nil)
		pool.Start()
		if err := pool.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if _, err := pool.Submit(ctx, shellJob(`echo x`)); !errors.Is(err, ErrPoolClosed) {
			t.Errorf("Submit() error = %v, want ErrPoolClosed", err)
		}
	})

	t.Run("rejects_nil_context", func(t *testing.T) {
		pool := NewPool(newShellSandbox(t), DefaultPoolConfig(), nil)
		pool.Start()
		defer pool.Close()

		var nilCtx context.Context
		if _, err := pool.Submit(nilCtx, shellJob(`echo x`)); !errors.Is(err, ErrNilContext) {
			t.Errorf("Submit() error = %v, want ErrNilContext", err)
		}
	})

	t.Run("skips_canceled_submissions", func(t *testing.T) {
		pool := NewPool(newShellSandbox(t), DefaultPoolConfig(), nil)
		pool.Start()
		defer pool.Close()

		canceledCtx, cancel := context.WithCancel(ctx)
		cancel()
		resultCh, err := pool.Submit(canceledCtx, shellJob(`echo x`))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		jr := <-resultCh
		if !errors.Is(jr.Err, context.Canceled) {
			t.Errorf("job error = %v, want context.Canceled", jr.Err)
		}
	})
}

func TestPool_Close(t *testing.T) {
	t.Run("close_is_idempotent", func(t *testing.T) {
		pool := NewPool(newShellSandbox(t), DefaultPoolConfig(), nil)
		pool.Start()
		if err := pool.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := pool.Close(); err != nil {
			t.Fatalf("Close() second call error = %v", err)
		}
	})

	t.Run("never_races_submit", func(t *testing.T) {
		// Submitters hammering the pool while it closes must only ever
		// see ErrPoolBusy or ErrPoolClosed, never a send on the closed
		// queue.
		for round := 0; round < 25; round++ {
			pool := NewPool(newShellSandbox(t), PoolConfig{Workers: 2, QueueDepth: 2}, nil)
			pool.Start()

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						_, err := pool.Submit(context.Background(), shellJob(`true`))
						if errors.Is(err, ErrPoolClosed) {
							return
						}
						if err != nil && !errors.Is(err, ErrPoolBusy) {
							t.Errorf("Submit() error = %v, want ErrPoolBusy or ErrPoolClosed", err)
							return
						}
					}
				}()
			}
			if err := pool.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			wg.Wait()
		}
	})

	t.Run("waits_for_in_flight_jobs", func(t *testing.T) {
		pool := NewPool(newShellSandbox(t), PoolConfig{Workers: 1, QueueDepth: 4}, nil)
		pool.Start()

		resultCh, err := pool.Submit(context.Background(), shellJob(`sleep 1; echo done`))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if err := pool.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		jr := <-resultCh
		if jr.Err != nil || !jr.Result.Success {
			t.Errorf("in-flight job result = %+v err = %v, want success", jr.Result, jr.Err)
		}
	})
}

func TestPool_Sizing(t *testing.T) {
	pool := NewPool(newShellSandbox(t), PoolConfig{Workers: 0, QueueDepth: 0}, nil)
	if pool.Workers() != 1 {
		t.Errorf("Workers() = %d, want 1 after clamping", pool.Workers())
	}
	if cap(pool.queue) != 1 {
		t.Errorf("queue capacity = %d, want 1 after clamping", cap(pool.queue))
	}
}
