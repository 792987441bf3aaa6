/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics instruments the evaluation pipeline: OpenTelemetry
// counters for model usage and Prometheus collectors for pipeline outcomes.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Model provides OpenTelemetry metrics for model calls made by the stage
// evaluator. Construction degrades gracefully: if a counter fails to
// initialize it is replaced with a no-op so evaluation never depends on the
// metrics backend.
type Model struct {
	meter            metric.Meter
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	calls            metric.Int64Counter
	parseFailures    metric.Int64Counter
}

// NewModel creates model-call metrics under the given meter name. Use one
// meter name across the pipeline ("callgrade.evaluator") with the model as
// a dimension on each recorded point.
func NewModel(meterName string) *Model {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	promptTokens, err := meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("The number of prompt tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		promptTokens = noop.Int64Counter{}
	}

	completionTokens, err := meter.Int64Counter("genai.token.completion",
		metric.WithDescription("The number of completion tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		completionTokens = noop.Int64Counter{}
	}

	calls, err := meter.Int64Counter("genai.stage.calls",
		metric.WithDescription("The number of stage evaluation model calls"),
		metric.WithUnit("{calls}"))
	if err != nil {
		slog.Warn("Failed to create stage call counter, metrics will be disabled", "error", err, "meter", meterName)
		calls = noop.Int64Counter{}
	}

	parseFailures, err := meter.Int64Counter("genai.stage.parse_failures",
		metric.WithDescription("The number of stage responses that failed strict parsing"),
		metric.WithUnit("{failures}"))
	if err != nil {
		slog.Warn("Failed to create parse failure counter, metrics will be disabled", "error", err, "meter", meterName)
		parseFailures = noop.Int64Counter{}
	}

	return &Model{
		meter:            meter,
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		calls:            calls,
		parseFailures:    parseFailures,
	}
}

// RecordTokens records prompt and completion token usage for one call.
func (m *Model) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.promptTokens.Add(ctx, promptTokens, attrs)
	m.completionTokens.Add(ctx, completionTokens, attrs)
}

// RecordCall records one stage evaluation call and its outcome.
func (m *Model) RecordCall(ctx context.Context, model, stage string, succeeded bool) {
	m.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("stage", stage),
		attribute.Bool("succeeded", succeeded),
	))
}

// RecordParseFailure records a response that failed strict parsing.
func (m *Model) RecordParseFailure(ctx context.Context, model, stage string) {
	m.parseFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("stage", stage),
	))
}
