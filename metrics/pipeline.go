/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_evaluations_total",
			Help: "Total number of call evaluations assembled",
		},
		[]string{"blueprint", "status"},
	)

	criticalViolationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "call_evaluation_critical_violations_total",
			Help: "Total number of critical violations recorded",
		},
		[]string{"blueprint", "action"},
	)

	overallScoreGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "call_evaluation_overall_score",
			Help: "Most recent overall score (0-100)",
		},
		[]string{"blueprint"},
	)
)

// Pipeline records evaluation outcomes for one blueprint.
type Pipeline struct {
	blueprint string
}

// NewPipeline returns pipeline metrics labeled with the blueprint ID.
func NewPipeline(blueprintID string) *Pipeline {
	return &Pipeline{blueprint: blueprintID}
}

// RecordEvaluation records one assembled evaluation and its overall score.
func (p *Pipeline) RecordEvaluation(status string, overall float64) {
	evaluationCounter.With(prometheus.Labels{
		"blueprint": p.blueprint,
		"status":    status,
	}).Inc()
	overallScoreGauge.With(prometheus.Labels{
		"blueprint": p.blueprint,
	}).Set(overall)
}

// RecordCriticalViolation records one critical violation by action.
func (p *Pipeline) RecordCriticalViolation(action string) {
	criticalViolationCounter.With(prometheus.Labels{
		"blueprint": p.blueprint,
		"action":    action,
	}).Inc()
}
