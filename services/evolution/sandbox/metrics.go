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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for sandbox operations.
var meter = otel.Meter("aleutian.evolve.sandbox")

var (
	execLatency metric.Float64Histogram
	execTotal   metric.Int64Counter
	execTimeout metric.Int64Counter
	poolBusy    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		execLatency, err = meter.Float64Histogram(
			"evolve_sandbox_execution_duration_seconds",
			metric.WithDescription("Duration of sandbox executions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		execTotal, err = meter.Int64Counter(
			"evolve_sandbox_executions_total",
			metric.WithDescription("Total sandbox executions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		execTimeout, err = meter.Int64Counter(
			"evolve_sandbox_timeouts_total",
			metric.WithDescription("Sandbox executions killed by wall-clock timeout"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		poolBusy, err = meter.Int64Counter(
			"evolve_sandbox_pool_busy_total",
			metric.WithDescription("Submissions rejected by a full pool queue"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordExecution records one sandbox execution.
func recordExecution(ctx context.Context, language string, duration time.Duration, success, timedOut bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	)
	execLatency.Record(ctx, duration.Seconds(), attrs)
	execTotal.Add(ctx, 1, attrs)
	if timedOut {
		execTimeout.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
	}
}

// recordPoolBusy records a fail-fast queue rejection.
func recordPoolBusy(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	poolBusy.Add(ctx, 1)
}
