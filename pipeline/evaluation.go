/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/llmeval"
	"github.com/callgrade/callgrade/redact"
	"github.com/callgrade/callgrade/rubric"
	"github.com/callgrade/callgrade/rules"
	"github.com/callgrade/callgrade/transcript"
)

// Status is the terminal disposition of an evaluation run.
type Status string

const (
	// StatusCompleted means every pipeline phase ran and produced scores,
	// whether or not the call passed.
	StatusCompleted Status = "completed"
	// StatusFailedHard means a required upstream collaborator was
	// unavailable and no evaluation was produced.
	StatusFailedHard Status = "failed_hard"
	// StatusFailedCritical means a fail_overall critical violation forced
	// the evaluation to a failing outcome.
	StatusFailedCritical Status = "failed_critical"
)

// FinalEvaluation is the immutable record of one evaluation run for one
// (blueprint version, transcript) pair. It is assembled exactly once;
// corrections require a new run, not an edit. All free text on the record
// has passed through the redactor before assembly returns.
type FinalEvaluation struct {
	BlueprintID      string `json:"blueprint_id"`
	BlueprintVersion string `json:"blueprint_version"`
	CallID           string `json:"call_id"`
	Strategy         string `json:"strategy"`
	Status           Status `json:"status"`

	Deterministic    *rules.Output                      `json:"deterministic_results"`
	StageEvaluations map[string]llmeval.StageEvaluation `json:"llm_stage_evaluations,omitempty"`

	StageScores    map[string]float64     `json:"stage_scores"`
	BehaviorScores map[string]float64     `json:"behavior_scores"`
	CategoryScores []rubric.CategoryScore `json:"category_scores"`
	OverallScore   float64                `json:"overall_score"`
	Passed         bool                   `json:"passed"`

	// CriticalViolations carries one entry per unsatisfied critical
	// behavior (and per order inversion under a critical ordering policy),
	// each naming its behavior ID, stage, and configured action.
	CriticalViolations []rubric.Violation `json:"critical_violations,omitempty"`

	// Explanation says in plain language why the evaluation landed where
	// it did, including degraded stages and forbidden detections.
	Explanation string `json:"explanation"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// assemble merges the phase outputs into the final record. Pure aggregation:
// no I/O, no mutation of its inputs.
func assemble(bp *blueprint.Blueprint, tr *transcript.Transcript, strategy Strategy,
	det *rules.Output, evals map[string]llmeval.StageEvaluation, res *rubric.Result) *FinalEvaluation {
	status := StatusCompleted
	if res.FailedOverall() {
		status = StatusFailedCritical
	}

	fe := &FinalEvaluation{
		BlueprintID:        bp.ID,
		BlueprintVersion:   bp.Version,
		CallID:             tr.CallID,
		Strategy:           strategy.Name(),
		Status:             status,
		Deterministic:      det,
		StageEvaluations:   redactEvaluations(evals),
		StageScores:        res.StageScores,
		BehaviorScores:     res.BehaviorScores,
		CategoryScores:     res.Categories,
		OverallScore:       res.OverallScore,
		Passed:             res.Passed,
		CriticalViolations: redactViolations(res.Violations),
		EvaluatedAt:        time.Now().UTC(),
	}
	fe.Explanation = redactText(explain(bp, det, fe))
	return fe
}

// redactEvaluations re-redacts the model-authored free text. The evaluator
// already sends only redacted windows to providers, but rationales are model
// output and nothing model-authored may reach persistence unchecked.
func redactEvaluations(evals map[string]llmeval.StageEvaluation) map[string]llmeval.StageEvaluation {
	if len(evals) == 0 {
		return nil
	}
	out := make(map[string]llmeval.StageEvaluation, len(evals))
	for name, ev := range evals {
		findings := make(map[string]llmeval.BehaviorFinding, len(ev.Findings))
		for id, f := range ev.Findings {
			f.Rationale = redactText(f.Rationale)
			findings[id] = f
		}
		ev.Findings = findings
		ev.Warning = redactText(ev.Warning)
		out[name] = ev
	}
	return out
}

func redactViolations(violations []rubric.Violation) []rubric.Violation {
	if len(violations) == 0 {
		return nil
	}
	out := make([]rubric.Violation, len(violations))
	for i, v := range violations {
		v.Reason = redactText(v.Reason)
		out[i] = v
	}
	return out
}

func redactText(s string) string {
	if s == "" {
		return ""
	}
	r, _ := redact.Redact(s)
	return r
}

// explain renders the human-readable account of the outcome: the pass/fail
// sentence, every critical violation, stages scored without model evidence,
// forbidden detections, timing violations, and advisory order inversions.
func explain(bp *blueprint.Blueprint, det *rules.Output, fe *FinalEvaluation) string {
	var lines []string

	switch {
	case fe.Status == StatusFailedCritical:
		lines = append(lines, fmt.Sprintf(
			"Failed: critical violations fail this evaluation regardless of its overall score of %.1f.", fe.OverallScore))
	case !fe.Passed:
		lines = append(lines, fmt.Sprintf(
			"Failed: overall score %.1f is below the pass threshold of %.0f.", fe.OverallScore, bp.PassThreshold))
	default:
		lines = append(lines, fmt.Sprintf(
			"Passed: overall score %.1f meets the pass threshold of %.0f.", fe.OverallScore, bp.PassThreshold))
	}

	for _, v := range fe.CriticalViolations {
		lines = append(lines, fmt.Sprintf(
			"Critical violation (%s): behavior %q in stage %q: %s.", v.Action, v.BehaviorID, v.Stage, v.Reason))
	}

	for _, st := range bp.Stages {
		for i := range st.Behaviors {
			b := &st.Behaviors[i]
			r, ok := det.Results[b.ID]
			if !ok {
				continue
			}
			if b.Type == blueprint.Forbidden && r.Detected {
				lines = append(lines, fmt.Sprintf(
					"Forbidden phrase detected for behavior %q in stage %q.", b.ID, st.Name))
			}
			if r.TimingViolation {
				lines = append(lines, fmt.Sprintf(
					"Timing: behavior %q in stage %q was first detected after its %.0f-second allowance.", b.ID, st.Name, b.MaxElapsed))
			}
		}
	}

	degraded := make([]string, 0, len(fe.StageEvaluations))
	for name, ev := range fe.StageEvaluations {
		if !ev.ModelCallSucceeded {
			degraded = append(degraded, fmt.Sprintf(
				"Stage %q was scored without model evidence: %s.", name, ev.Warning))
		}
	}
	sort.Strings(degraded)
	lines = append(lines, degraded...)

	if bp.Ordering == blueprint.OrderingAdvisory {
		for _, ov := range det.OrderViolations {
			lines = append(lines, fmt.Sprintf(
				"Stage order: %q began before %q.", ov.LaterStage, ov.EarlierStage))
		}
	}

	return strings.Join(lines, "\n")
}
