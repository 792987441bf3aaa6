/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/llmeval"
	"github.com/callgrade/callgrade/transcript"
)

// fakeEvaluator returns canned stage evaluations and records how it was
// called.
type fakeEvaluator struct {
	mu         sync.Mutex
	calls      int
	candidates llmeval.Candidates
	evals      map[string]llmeval.StageEvaluation
	err        error
}

func (f *fakeEvaluator) EvaluateStages(ctx context.Context, bp *blueprint.Blueprint, tr *transcript.Transcript, candidates llmeval.Candidates) (map[string]llmeval.StageEvaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.candidates = candidates
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.evals, nil
}

func (f *fakeEvaluator) getCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEvaluator) getCandidates() llmeval.Candidates {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := llmeval.Candidates{}
	for stage, ids := range f.candidates {
		out[stage] = append([]string(nil), ids...)
	}
	return out
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

// fourStageBlueprint is the canonical call shape: Opening 20, Verification
// 25, Resolution 40, Closing 15, with the recording disclosure as a
// fail_overall critical on Verification and one semantic behavior on
// Resolution.
func fourStageBlueprint(t *testing.T) *blueprint.Blueprint {
	t.Helper()
	bp, err := blueprint.Compile(&blueprint.Draft{
		ID:      "bp-support",
		Version: "7",
		Stages: []blueprint.Stage{{
			Name:          "Opening",
			OrderingIndex: 1,
			Weight:        20,
			Behaviors: []blueprint.Behavior{{
				ID:        "greet",
				Type:      blueprint.Required,
				Detection: blueprint.ExactPhrase,
				Phrases:   []string{"thank you for calling"},
				Weight:    100,
			}},
		}, {
			Name:          "Verification",
			OrderingIndex: 2,
			Weight:        25,
			Behaviors: []blueprint.Behavior{{
				ID:        "record_disclosure",
				Type:      blueprint.Critical,
				Detection: blueprint.ExactPhrase,
				Phrases:   []string{"this call may be recorded"},
				Weight:    60,
			}, {
				ID:        "id_check",
				Type:      blueprint.Required,
				Detection: blueprint.ExactPhrase,
				Phrases:   []string{"last four digits"},
				Weight:    40,
			}},
		}, {
			Name:          "Resolution",
			OrderingIndex: 3,
			Weight:        40,
			Behaviors: []blueprint.Behavior{{
				ID:          "solve",
				Type:        blueprint.Required,
				Detection:   blueprint.Semantic,
				Description: "the agent resolves the customer's stated problem",
				Weight:      100,
			}},
		}, {
			Name:          "Closing",
			OrderingIndex: 4,
			Weight:        15,
			Behaviors: []blueprint.Behavior{{
				ID:        "recap",
				Type:      blueprint.Required,
				Detection: blueprint.ExactPhrase,
				Phrases:   []string{"anything else"},
				Weight:    100,
			}},
		}},
	})
	if err != nil {
		t.Fatalf("Compile() = %v, wanted no error", err)
	}
	return bp
}

func agentSays(texts ...string) *transcript.Transcript {
	tr := &transcript.Transcript{CallID: "call-7421"}
	for i, text := range texts {
		start := float64(i * 30)
		tr.Segments = append(tr.Segments, transcript.Segment{
			Speaker:   transcript.SpeakerAgent,
			Text:      text,
			StartTime: &start,
		})
	}
	return tr
}

func resolutionEval(present bool, confidence float64, rationale string) map[string]llmeval.StageEvaluation {
	return map[string]llmeval.StageEvaluation{
		"Resolution": {
			StageName:          "Resolution",
			ModelCallSucceeded: true,
			Findings: map[string]llmeval.BehaviorFinding{
				"solve": {BehaviorID: "solve", Present: present, Confidence: confidence, Rationale: rationale},
			},
		},
	}
}
