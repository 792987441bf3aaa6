/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rubric

import (
	"fmt"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/llmeval"
	"github.com/callgrade/callgrade/rules"
)

// ForbiddenPenalty is subtracted from a stage's score for each detected
// forbidden behavior. Forbidden behaviors carry no weight, so they cannot
// enter the weighted mean; the flat penalty prices the violation instead.
const ForbiddenPenalty = 25.0

// Violation is an unsatisfied critical behavior, or a stage-order inversion
// under a critical ordering policy.
type Violation struct {
	BehaviorID string                   `json:"behavior_id"`
	Stage      string                   `json:"stage"`
	Action     blueprint.CriticalAction `json:"action"`
	Reason     string                   `json:"reason"`
}

// CategoryScore is one scored rubric axis.
type CategoryScore struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Score  float64 `json:"score"`
	Level  string  `json:"level,omitempty"`
}

// Result is the rubric scorer's output. Scores are 0..100 throughout.
type Result struct {
	StageScores    map[string]float64 `json:"stage_scores"`
	BehaviorScores map[string]float64 `json:"behavior_scores"`
	Categories     []CategoryScore    `json:"categories"`
	OverallScore   float64            `json:"overall_score"`
	Passed         bool               `json:"passed"`
	Violations     []Violation        `json:"violations,omitempty"`
}

// FailedOverall reports whether any violation carries the fail_overall
// action. Such a violation forces Passed=false no matter the score.
func (r *Result) FailedOverall() bool {
	for _, v := range r.Violations {
		if v.Action == blueprint.FailOverall {
			return true
		}
	}
	return false
}

// Score blends the deterministic results and model evaluations into stage,
// category, and overall scores, and decides pass/fail. Scoring is pure:
// identical inputs always produce identical results.
func Score(tmpl *Template, bp *blueprint.Blueprint, det *rules.Output, evals map[string]llmeval.StageEvaluation) (*Result, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("nil rubric template")
	}
	if bp == nil {
		return nil, fmt.Errorf("nil blueprint")
	}
	if det == nil {
		return nil, fmt.Errorf("nil deterministic output")
	}
	// Validate rescales weights in place; score a clone so the caller's
	// template stays read-only.
	tmpl = tmpl.clone()
	if err := tmpl.Validate(bp); err != nil {
		return nil, fmt.Errorf("rubric incompatible with blueprint %q: %w", bp.ID, err)
	}

	res := &Result{
		StageScores:    make(map[string]float64, len(bp.Stages)),
		BehaviorScores: map[string]float64{},
	}

	for si := range bp.Stages {
		st := &bp.Stages[si]
		eval := evals[st.Name]

		var weighted, weightSum, penalty float64
		for bi := range st.Behaviors {
			b := &st.Behaviors[bi]
			if !det.Applicable(b.ID) {
				// Condition never triggered: the behavior is out of this
				// evaluation entirely and its weight share redistributes.
				continue
			}
			score, satisfied := resolveBehavior(b, det, eval)
			res.BehaviorScores[b.ID] = score

			if b.Type == blueprint.Forbidden {
				if !satisfied {
					penalty += ForbiddenPenalty
				}
				continue
			}
			weighted += b.Weight * score
			weightSum += b.Weight

			if b.Type == blueprint.Critical && !satisfied {
				reason := "critical behavior not satisfied"
				if b.ModelEvaluated() && !eval.ModelCallSucceeded {
					reason = "critical behavior not satisfied (model evaluation unavailable)"
				}
				res.Violations = append(res.Violations, Violation{
					BehaviorID: b.ID,
					Stage:      st.Name,
					Action:     b.CriticalAction,
					Reason:     reason,
				})
			}
		}

		stageScore := 0.0
		if weightSum > 0 {
			stageScore = weighted / weightSum
		}
		stageScore = clamp(stageScore - penalty)
		res.StageScores[st.Name] = stageScore
	}

	// fail_stage zeroes the stage before any category consumes it.
	for _, v := range res.Violations {
		if v.Action == blueprint.FailStage {
			res.StageScores[v.Stage] = 0
		}
	}

	// Under a critical ordering policy an inversion is a violation in its
	// own right; advisory inversions surface only through the report.
	if bp.Ordering == blueprint.OrderingCritical {
		for _, ov := range det.OrderViolations {
			res.Violations = append(res.Violations, Violation{
				BehaviorID: ov.BehaviorID,
				Stage:      ov.LaterStage,
				Action:     blueprint.FailOverall,
				Reason:     fmt.Sprintf("stage %q began before stage %q", ov.LaterStage, ov.EarlierStage),
			})
		}
	}

	res.Categories = make([]CategoryScore, 0, len(tmpl.Categories))
	var overall float64
	for i := range tmpl.Categories {
		c := &tmpl.Categories[i]
		score := categoryScore(c, bp, res)
		res.Categories = append(res.Categories, CategoryScore{
			Name:   c.Name,
			Weight: c.Weight,
			Score:  score,
			Level:  c.Level(score),
		})
		overall += c.Weight / 100 * score
	}
	res.OverallScore = clamp(overall)
	res.Passed = res.OverallScore >= bp.PassThreshold && !res.FailedOverall()
	return res, nil
}

// resolveBehavior produces the 0..100 score for one behavior and whether it
// is satisfied. For forbidden behaviors satisfied means "not committed".
func resolveBehavior(b *blueprint.Behavior, det *rules.Output, eval llmeval.StageEvaluation) (float64, bool) {
	detected := false
	if r, ok := det.Results[b.ID]; ok {
		detected = r.Detected
	}

	present := false
	confidence := 0.0
	if f, ok := eval.Findings[b.ID]; ok {
		present = f.Present
		confidence = f.Confidence
	}

	if b.Type == blueprint.Forbidden {
		committed := detected
		if b.Detection == blueprint.Semantic {
			committed = present
		}
		if b.Detection == blueprint.Hybrid {
			committed = detected || present
		}
		if committed {
			return 0, false
		}
		return 100, true
	}

	switch b.Detection {
	case blueprint.ExactPhrase:
		if detected {
			return 100, true
		}
		return 0, false
	case blueprint.Hybrid:
		// Exact matching is a fast path; the model judgment covers the
		// paraphrased cases it misses.
		if detected {
			return 100, true
		}
		fallthrough
	default: // blueprint.Semantic
		if present {
			return clamp(confidence * 100), true
		}
		return 0, false
	}
}

// categoryScore is the arithmetic mean of the mapped stage and behavior
// scores. Mappings to inapplicable behaviors are skipped, like the behaviors
// themselves.
func categoryScore(c *Category, bp *blueprint.Blueprint, res *Result) float64 {
	var sum float64
	var n int
	for _, target := range c.Mappings {
		if st := bp.Stage(target); st != nil {
			sum += res.StageScores[st.Name]
			n++
			continue
		}
		if score, ok := res.BehaviorScores[target]; ok {
			sum += score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
