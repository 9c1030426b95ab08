// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package segtree

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for segment tree operations.
var (
	tracer = otel.Tracer("rangetree.segtree")
	meter  = otel.Meter("rangetree.segtree")
)

// Metrics for segment tree operations.
var (
	buildLatency     metric.Float64Histogram
	buildTotal       metric.Int64Counter
	opsTotal         metric.Int64Counter
	validationErrors metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"segtree_build_duration_seconds",
			metric.WithDescription("Duration of segment tree construction"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"segtree_build_total",
			metric.WithDescription("Total number of segment trees built"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		opsTotal, err = meter.Int64Counter(
			"segtree_operations_total",
			metric.WithDescription("Total number of segment tree updates and queries"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		validationErrors, err = meter.Int64Counter(
			"segtree_validation_errors_total",
			metric.WithDescription("Number of failed segment tree validations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuild records metrics for a tree construction.
func recordBuild(ctx context.Context, variant string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("variant", variant))
	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)
}

// recordOp records one update, query or readout.
func recordOp(ctx context.Context, variant, op string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	opsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("variant", variant),
		attribute.String("op", op),
		attribute.Bool("success", success),
	))
}

// recordValidationError counts a failed Validate call.
func recordValidationError(ctx context.Context, variant string) {
	if err := initMetrics(); err != nil {
		return
	}

	validationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("variant", variant)))
}
