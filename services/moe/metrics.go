// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package moe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for mixture-of-experts operations.
var (
	tracer = otel.Tracer("aleutian.moe")
	meter  = otel.Meter("aleutian.moe")
)

// Metrics for training and prediction operations.
var (
	trainLatency   metric.Float64Histogram
	trainTotal     metric.Int64Counter
	predictLatency metric.Float64Histogram
	predictTotal   metric.Int64Counter
	expertsByName  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		trainLatency, err = meter.Float64Histogram(
			"moe_train_duration_seconds",
			metric.WithDescription("Duration of mixture-of-experts training runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		trainTotal, err = meter.Int64Counter(
			"moe_train_total",
			metric.WithDescription("Total number of training runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		predictLatency, err = meter.Float64Histogram(
			"moe_predict_duration_seconds",
			metric.WithDescription("Duration of batch predictions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		predictTotal, err = meter.Int64Counter(
			"moe_predict_total",
			metric.WithDescription("Total number of batch predictions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		expertsByName, err = meter.Int64Counter(
			"moe_experts_selected_total",
			metric.WithDescription("Experts chosen during model search, by model name"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startTrainSpan creates a span for a training run.
func startTrainSpan(ctx context.Context, clusters int, hard bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "MixtureOfExperts.Train",
		trace.WithAttributes(
			attribute.Int("moe.clusters", clusters),
			attribute.Bool("moe.hard_recombination", hard),
		),
	)
}

// recordTrainMetrics records metrics for one training run.
func recordTrainMetrics(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	trainLatency.Record(ctx, duration.Seconds(), attrs)
	trainTotal.Add(ctx, 1, attrs)
}

// recordPredictMetrics records metrics for one batch prediction.
func recordPredictMetrics(ctx context.Context, duration time.Duration, rows int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.Int("rows", rows),
	)
	predictLatency.Record(ctx, duration.Seconds(), attrs)
	predictTotal.Add(ctx, 1, attrs)
}

// recordExpertSelected records a winning expert by model name.
func recordExpertSelected(ctx context.Context, name string) {
	if err := initMetrics(); err != nil {
		return
	}
	expertsByName.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", name),
	))
}
