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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level instrumentation for run orchestration.
var (
	meter  = otel.Meter("aleutian.evolve.engine")
	tracer = otel.Tracer("aleutian.evolve.engine")
)

var (
	runsTotal     metric.Int64Counter
	runDuration   metric.Float64Histogram
	attemptsTotal metric.Int64Counter
	attemptScore  metric.Float64Histogram
	conflictTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runsTotal, err = meter.Int64Counter(
			"evolve_runs_total",
			metric.WithDescription("Completed evolution runs by terminal status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runDuration, err = meter.Float64Histogram(
			"evolve_run_duration_seconds",
			metric.WithDescription("Wall-clock duration of evolution runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		attemptsTotal, err = meter.Int64Counter(
			"evolve_attempts_total",
			metric.WithDescription("Propose-evaluate rounds by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		attemptScore, err = meter.Float64Histogram(
			"evolve_attempt_best_score",
			metric.WithDescription("Best candidate score per attempt"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		conflictTotal, err = meter.Int64Counter(
			"evolve_run_conflicts_total",
			metric.WithDescription("Runs refused because the subject was busy"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRun records a terminal run.
func recordRun(ctx context.Context, strategyName string, status Status, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategyName),
		attribute.String("status", string(status)),
	)
	runsTotal.Add(ctx, 1, attrs)
	runDuration.Record(ctx, duration.Seconds(), attrs)
}

// recordAttempt records one completed round.
func recordAttempt(ctx context.Context, strategyName string, accepted bool, bestScore float64) {
	if err := initMetrics(); err != nil {
		return
	}
	attemptsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategyName),
		attribute.Bool("accepted", accepted),
	))
	attemptScore.Record(ctx, bestScore, metric.WithAttributes(
		attribute.String("strategy", strategyName),
	))
}

// recordConflict records a refused concurrent run.
func recordConflict(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	conflictTotal.Add(ctx, 1)
}

// startSpan opens a tracing span for a run phase.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
