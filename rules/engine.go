/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package rules is the deterministic side of the evaluation pipeline: it
// scans transcripts for the literal phrases a blueprint names, entirely
// offline and reproducibly. Given the same blueprint and transcript it
// always returns the same output. Semantic behaviors are out of scope here;
// they belong to the LLM stage evaluator.
package rules

import (
	"fmt"
	"math"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/transcript"
)

// Engine matches blueprint phrases against transcripts.
type Engine struct {
	tolerance int
}

// Option configures an Engine.
type Option func(*Engine) error

// WithEditDistance allows up to k character edits when matching phrases.
// Zero (the default) requires exact matches in normalized space.
func WithEditDistance(k int) Option {
	return func(e *Engine) error {
		if k < 0 {
			return fmt.Errorf("edit distance %d must be >= 0", k)
		}
		e.tolerance = k
		return nil
	}
}

// New returns an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Result is the deterministic outcome for one behavior. Detected reports
// phrase presence; for forbidden behaviors presence is the bad outcome, and
// the scorer applies that inversion.
type Result struct {
	BehaviorID    string   `json:"behavior_id"`
	Detected      bool     `json:"detected"`
	MatchedPhrase string   `json:"matched_phrase,omitempty"`
	SegmentIndex  int      `json:"segment_index"`
	StartTime     *float64 `json:"start_time,omitempty"`

	// TimingViolation is set when the behavior matched later than its
	// max_elapsed allowance from call start.
	TimingViolation bool `json:"timing_violation,omitempty"`
}

// OrderViolation records evidence of a later stage beginning before an
// earlier one.
type OrderViolation struct {
	EarlierStage string `json:"earlier_stage"`
	LaterStage   string `json:"later_stage"`
	BehaviorID   string `json:"behavior_id"`
	SegmentIndex int    `json:"segment_index"`
}

// Output is everything the engine can establish without a model.
type Output struct {
	// Results holds one entry per applicable deterministic behavior,
	// keyed by behavior ID.
	Results map[string]Result `json:"results"`

	// OrderViolations lists stage pairs observed out of order.
	OrderViolations []OrderViolation `json:"order_violations,omitempty"`

	// Applicability covers every behavior in the blueprint, including
	// semantic ones: false means the behavior's condition never
	// triggered and the behavior is excluded from scoring.
	Applicability map[string]bool `json:"applicability"`
}

// Applicable reports whether the behavior takes part in this evaluation.
func (o *Output) Applicable(behaviorID string) bool {
	v, ok := o.Applicability[behaviorID]
	return !ok || v
}

// Evaluate runs every applicable deterministic behavior of the blueprint
// against the transcript. It never fails transiently; the only errors are
// nil inputs.
func (e *Engine) Evaluate(bp *blueprint.Blueprint, tr *transcript.Transcript) (*Output, error) {
	if bp == nil {
		return nil, fmt.Errorf("nil blueprint")
	}
	if tr == nil {
		return nil, fmt.Errorf("nil transcript")
	}

	all := normalizeSegments(tr)
	agent := make([]normSegment, 0, len(all))
	for _, seg := range all {
		if seg.speaker == transcript.SpeakerAgent {
			agent = append(agent, seg)
		}
	}
	callStart := earliestStart(all)

	out := &Output{
		Results:       map[string]Result{},
		Applicability: map[string]bool{},
	}

	// Earliest per-stage evidence for ordering checks.
	type evidence struct {
		c          candidate
		behaviorID string
	}
	stageEvidence := map[string]*evidence{}

	for si := range bp.Stages {
		st := &bp.Stages[si]
		for bi := range st.Behaviors {
			b := &st.Behaviors[bi]
			applicable := b.Condition == nil || containsAny(all, b.Condition.TriggerPhrases)
			out.Applicability[b.ID] = applicable
			if !applicable || !b.Deterministic() {
				continue
			}

			res := Result{BehaviorID: b.ID, SegmentIndex: -1}
			if c, ok := findFirst(agent, b.Phrases, e.tolerance); ok {
				res.Detected = true
				res.MatchedPhrase = c.phrase
				res.SegmentIndex = c.segIndex
				res.StartTime = c.start
				if b.MaxElapsed > 0 && c.start != nil && *c.start-callStart > b.MaxElapsed {
					res.TimingViolation = true
				}
				if ev := stageEvidence[st.Name]; ev == nil || c.before(ev.c) {
					stageEvidence[st.Name] = &evidence{c: c, behaviorID: b.ID}
				}
			}
			out.Results[b.ID] = res
		}
	}

	// Stages are in ordering-index order after compilation; any earlier
	// stage whose first evidence lands after a later stage's first
	// evidence is an inversion.
	for i := range bp.Stages {
		for j := i + 1; j < len(bp.Stages); j++ {
			earlier := stageEvidence[bp.Stages[i].Name]
			later := stageEvidence[bp.Stages[j].Name]
			if earlier == nil || later == nil {
				continue
			}
			if later.c.before(earlier.c) {
				out.OrderViolations = append(out.OrderViolations, OrderViolation{
					EarlierStage: bp.Stages[i].Name,
					LaterStage:   bp.Stages[j].Name,
					BehaviorID:   later.behaviorID,
					SegmentIndex: later.c.segIndex,
				})
			}
		}
	}
	return out, nil
}

func earliestStart(segs []normSegment) float64 {
	earliest := math.Inf(1)
	for _, seg := range segs {
		if seg.start != nil && *seg.start < earliest {
			earliest = *seg.start
		}
	}
	if math.IsInf(earliest, 1) {
		return 0
	}
	return earliest
}
