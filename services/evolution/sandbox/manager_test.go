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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newShellManager(t *testing.T, poolCfg PoolConfig, mgrCfg ManagerConfig) (*Manager, *Pool) {
	t.Helper()
	pool := NewPool(newShellSandbox(t), poolCfg, nil)
	pool.Start()
	t.Cleanup(func() { pool.Close() })
	return NewManager(pool, mgrCfg, nil), pool
}

func TestManager_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("passes_through_success", func(t *testing.T) {
		mgr, _ := newShellManager(t, DefaultPoolConfig(), DefaultManagerConfig())
		result, err := mgr.Execute(ctx, shellJob(`echo managed`))
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !result.Success || !strings.Contains(result.Output, "managed") {
			t.Errorf("Execute() result = %+v, want success with output", result)
		}
	})

	t.Run("retries_transient_timeout", func(t *testing.T) {
		mgr, _ := newShellManager(t, DefaultPoolConfig(), ManagerConfig{MaxRetries: 1})

		// First run times out and drops a marker; the retry finds the
		// marker and exits clean.
		marker := filepath.Join(t.TempDir(), "attempted")
		script := fmt.Sprintf(`if [ -f %q ]; then
  echo recovered
  exit 0
fi
touch %q
sleep 5`, marker, marker)

		cfg := shellConfig()
		cfg.WallClockTimeout = 400 * time.Millisecond
		result, err := mgr.Execute(ctx, Job{Code: script, Config: cfg})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !result.Success {
			t.Fatalf("Execute() Success = false after retry, result = %+v", result)
		}
		if !strings.Contains(result.Output, "recovered") {
			t.Errorf("Execute() Output = %q, want retry output", result.Output)
		}
	})

	t.Run("returns_final_result_when_retries_exhaust", func(t *testing.T) {
		mgr, _ := newShellManager(t, DefaultPoolConfig(), ManagerConfig{MaxRetries: 1})
		cfg := shellConfig()
		cfg.WallClockTimeout = 200 * time.Millisecond
		result, err := mgr.Execute(ctx, Job{Code: `sleep 5`, Config: cfg})
		if err != nil {
			t.Fatalf("Execute() error = %v, want nil", err)
		}
		if !result.TimedOut {
			t.Errorf("Execute() TimedOut = false, want true after exhausted retries")
		}
	})

	t.Run("does_not_retry_plain_failures", func(t *testing.T) {
		mgr, _ := newShellManager(t, DefaultPoolConfig(), ManagerConfig{MaxRetries: 2})

		counter := filepath.Join(t.TempDir(), "runs")
		script := fmt.Sprintf(`echo run >> %q
exit 3`, counter)

		result, err := mgr.Execute(ctx, Job{Code: script, Config: shellConfig()})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if result.ExitCode != 3 {
			t.Errorf("Execute() ExitCode = %d, want 3", result.ExitCode)
		}
		data, err := os.ReadFile(counter)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if runs := strings.Count(string(data), "run"); runs != 1 {
			t.Errorf("candidate ran %d times, want exactly 1", runs)
		}
	})

	t.Run("surfaces_pool_busy_after_backoff", func(t *testing.T) {
		mgr, pool := newShellManager(t,
			PoolConfig{Workers: 1, QueueDepth: 1},
			ManagerConfig{MaxRetries: 1, BusyBackoff: 10 * time.Millisecond},
		)

		// Saturate the worker and the queue for longer than the
		// manager's total retry window.
		if _, err := pool.Submit(ctx, shellJob(`sleep 3`)); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		waitForQueueDrain(t, pool, 2*time.Second)
		if _, err := pool.Submit(ctx, shellJob(`sleep 3`)); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}

		if _, err := mgr.Execute(ctx, shellJob(`echo x`)); !errors.Is(err, ErrPoolBusy) {
			t.Fatalf("Execute() error = %v, want ErrPoolBusy", err)
		}
	})

	t.Run("rejects_nil_context", func(t *testing.T) {
		mgr, _ := newShellManager(t, DefaultPoolConfig(), DefaultManagerConfig())
		var nilCtx context.Context
		if _, err := mgr.Execute(nilCtx, shellJob(`echo x`)); !errors.Is(err, ErrNilContext) {
			t.Errorf("Execute() error = %v, want ErrNilContext", err)
		}
	})
}

func TestIsTransientFailure(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   bool
	}{
		{"nil_result", nil, false},
		{"success", &Result{Success: true}, false},
		{"timeout", &Result{TimedOut: true}, true},
		{"memory_limit", &Result{Diagnostic: "memory limit exceeded (512 MB)"}, true},
		{"plain_failure", &Result{ExitCode: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientFailure(tt.result); got != tt.want {
				t.Errorf("isTransientFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}
