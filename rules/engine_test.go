/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rules_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/rules"
	"github.com/callgrade/callgrade/transcript"
)

func f(v float64) *float64 { return &v }

func mustCompile(t *testing.T, d *blueprint.Draft) *blueprint.Blueprint {
	t.Helper()
	bp, err := blueprint.Compile(d)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return bp
}

func mustEngine(t *testing.T, opts ...rules.Option) *rules.Engine {
	t.Helper()
	e, err := rules.New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func singleStage(behaviors ...blueprint.Behavior) *blueprint.Draft {
	return &blueprint.Draft{
		ID:      "test",
		Version: "1",
		Stages: []blueprint.Stage{{
			Name:          "Only",
			OrderingIndex: 1,
			Weight:        100,
			Behaviors:     behaviors,
		}},
	}
}

func TestEvaluateDetection(t *testing.T) {
	bp := mustCompile(t, singleStage(blueprint.Behavior{
		ID:        "greet",
		Type:      blueprint.Required,
		Detection: blueprint.ExactPhrase,
		Phrases:   []string{"thank you for calling"},
		Weight:    50,
	}, blueprint.Behavior{
		ID:        "rude",
		Type:      blueprint.Forbidden,
		Detection: blueprint.ExactPhrase,
		Phrases:   []string{"calm down"},
	}, blueprint.Behavior{
		ID:        "close",
		Type:      blueprint.Required,
		Detection: blueprint.ExactPhrase,
		Phrases:   []string{"have a great day"},
		Weight:    50,
	}))

	tr := &transcript.Transcript{
		CallID: "c1",
		Segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "Thank   You for CALLING Acme!", StartTime: f(1)},
			{Speaker: transcript.SpeakerCustomer, Text: "you need to calm down"},
			{Speaker: transcript.SpeakerAgent, Text: "please calm down, ma'am", StartTime: f(30)},
		},
	}

	out, err := mustEngine(t).Evaluate(bp, tr)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	greet := out.Results["greet"]
	if !greet.Detected || greet.SegmentIndex != 0 {
		t.Errorf("greet: got = %+v, wanted detected at segment 0", greet)
	}

	// Forbidden phrases are reported as detected; only agent speech counts
	// (the customer said it first in segment 1).
	rude := out.Results["rude"]
	if !rude.Detected || rude.SegmentIndex != 2 {
		t.Errorf("rude: got = %+v, wanted detected at segment 2", rude)
	}

	closing := out.Results["close"]
	if closing.Detected || closing.SegmentIndex != -1 {
		t.Errorf("close: got = %+v, wanted undetected with segment -1", closing)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	bp := mustCompile(t, singleStage(blueprint.Behavior{
		ID:        "greet",
		Type:      blueprint.Required,
		Detection: blueprint.ExactPhrase,
		Phrases:   []string{"thank you for calling", "thanks for calling"},
		Weight:    100,
	}))
	tr := &transcript.Transcript{
		CallID: "c1",
		Segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "thanks for calling", StartTime: f(2)},
			{Speaker: transcript.SpeakerAgent, Text: "thank you for calling", StartTime: f(9)},
		},
	}

	e := mustEngine(t)
	first, err := e.Evaluate(bp, tr)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	second, err := e.Evaluate(bp, tr)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("outputs differ across identical runs (-first, +second):\n%s", diff)
	}
}

func TestFirstMatchTieBreak(t *testing.T) {
	bp := mustCompile(t, singleStage(blueprint.Behavior{
		ID:        "verify",
		Type:      blueprint.Required,
		Detection: blueprint.ExactPhrase,
		Phrases:   []string{"verify your identity"},
		Weight:    100,
	}))

	tests := []struct {
		name       string
		segments   []transcript.Segment
		wantedSeg  int
		wantedTime *float64
	}{{
		name: "earliest start time wins over lower index",
		segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "verify your identity", StartTime: f(30)},
			{Speaker: transcript.SpeakerAgent, Text: "ok"},
			{Speaker: transcript.SpeakerAgent, Text: "verify your identity", StartTime: f(10)},
		},
		wantedSeg:  2,
		wantedTime: f(10),
	}, {
		name: "equal start times fall back to lowest segment index",
		segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "verify your identity", StartTime: f(10)},
			{Speaker: transcript.SpeakerAgent, Text: "verify your identity", StartTime: f(10)},
		},
		wantedSeg:  0,
		wantedTime: f(10),
	}, {
		name: "untimed segments order by index",
		segments: []transcript.Segment{
			{Speaker: transcript.SpeakerCustomer, Text: "hello"},
			{Speaker: transcript.SpeakerAgent, Text: "I will verify your identity"},
			{Speaker: transcript.SpeakerAgent, Text: "verify your identity again"},
		},
		wantedSeg: 1,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := mustEngine(t).Evaluate(bp, &transcript.Transcript{CallID: "c", Segments: tt.segments})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			res := out.Results["verify"]
			if !res.Detected {
				t.Fatal("verify: got undetected, wanted detected")
			}
			if res.SegmentIndex != tt.wantedSeg {
				t.Errorf("segment index: got = %d, wanted = %d", res.SegmentIndex, tt.wantedSeg)
			}
			if (res.StartTime == nil) != (tt.wantedTime == nil) {
				t.Errorf("start time presence: got = %v, wanted = %v", res.StartTime, tt.wantedTime)
			} else if res.StartTime != nil && *res.StartTime != *tt.wantedTime {
				t.Errorf("start time: got = %v, wanted = %v", *res.StartTime, *tt.wantedTime)
			}
		})
	}
}

func TestOrderViolations(t *testing.T) {
	bp := mustCompile(t, &blueprint.Draft{
		ID:      "ordered",
		Version: "1",
		Stages: []blueprint.Stage{{
			Name:          "Opening",
			OrderingIndex: 1,
			Weight:        50,
			Behaviors: []blueprint.Behavior{{
				ID:        "greet",
				Type:      blueprint.Required,
				Detection: blueprint.ExactPhrase,
				Phrases:   []string{"thank you for calling"},
				Weight:    100,
			}},
		}, {
			Name:          "Closing",
			OrderingIndex: 2,
			Weight:        50,
			Behaviors: []blueprint.Behavior{{
				ID:        "close",
				Type:      blueprint.Required,
				Detection: blueprint.ExactPhrase,
				Phrases:   []string{"have a great day"},
				Weight:    100,
			}},
		}},
	})

	tr := &transcript.Transcript{
		CallID: "c1",
		Segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "have a great day", StartTime: f(1)},
			{Speaker: transcript.SpeakerAgent, Text: "thank you for calling", StartTime: f(50)},
		},
	}

	out, err := mustEngine(t).Evaluate(bp, tr)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	wanted := []rules.OrderViolation{{
		EarlierStage: "Opening",
		LaterStage:   "Closing",
		BehaviorID:   "close",
		SegmentIndex: 0,
	}}
	if diff := cmp.Diff(wanted, out.OrderViolations); diff != "" {
		t.Errorf("order violations (-want, +got):\n%s", diff)
	}

	// In order: no violations.
	inOrder := &transcript.Transcript{
		CallID: "c2",
		Segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "thank you for calling", StartTime: f(1)},
			{Speaker: transcript.SpeakerAgent, Text: "have a great day", StartTime: f(50)},
		},
	}
	out, err = mustEngine(t).Evaluate(bp, inOrder)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(out.OrderViolations) != 0 {
		t.Errorf("order violations: got = %v, wanted = none", out.OrderViolations)
	}
}

func TestTimingViolation(t *testing.T) {
	bp := mustCompile(t, singleStage(blueprint.Behavior{
		ID:         "greet",
		Type:       blueprint.Required,
		Detection:  blueprint.ExactPhrase,
		Phrases:    []string{"thank you for calling"},
		Weight:     100,
		MaxElapsed: 30,
	}))

	tests := []struct {
		name   string
		start  *float64
		wanted bool
	}{
		{"within allowance", f(12), false},
		{"beyond allowance", f(95), true},
		{"untimed match skips the check", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &transcript.Transcript{
				CallID: "c",
				Segments: []transcript.Segment{
					{Speaker: transcript.SpeakerCustomer, Text: "hi", StartTime: f(0)},
					{Speaker: transcript.SpeakerAgent, Text: "thank you for calling", StartTime: tt.start},
				},
			}
			out, err := mustEngine(t).Evaluate(bp, tr)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got := out.Results["greet"].TimingViolation; got != tt.wanted {
				t.Errorf("timing violation: got = %v, wanted = %v", got, tt.wanted)
			}
		})
	}
}

func TestConditionGating(t *testing.T) {
	bp := mustCompile(t, singleStage(blueprint.Behavior{
		ID:        "retain",
		Type:      blueprint.Required,
		Detection: blueprint.ExactPhrase,
		Phrases:   []string{"retention offer"},
		Weight:    60,
		Condition: &blueprint.Condition{TriggerPhrases: []string{"cancel my account"}},
	}, blueprint.Behavior{
		ID:        "greet",
		Type:      blueprint.Required,
		Detection: blueprint.ExactPhrase,
		Phrases:   []string{"thank you for calling"},
		Weight:    40,
	}))

	// Trigger never appears: the conditional behavior is inapplicable and
	// gets no result.
	quiet := &transcript.Transcript{
		CallID: "c1",
		Segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "thank you for calling"},
		},
	}
	out, err := mustEngine(t).Evaluate(bp, quiet)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out.Applicable("retain") {
		t.Error("retain: got applicable, wanted inapplicable")
	}
	if _, ok := out.Results["retain"]; ok {
		t.Error("retain: got a result, wanted none for inapplicable behavior")
	}

	// The customer mentioning the trigger makes it applicable.
	triggered := &transcript.Transcript{
		CallID: "c2",
		Segments: []transcript.Segment{
			{Speaker: transcript.SpeakerCustomer, Text: "I want to cancel my account"},
			{Speaker: transcript.SpeakerAgent, Text: "I can apply a retention offer"},
		},
	}
	out, err = mustEngine(t).Evaluate(bp, triggered)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !out.Applicable("retain") {
		t.Error("retain: got inapplicable, wanted applicable")
	}
	if res := out.Results["retain"]; !res.Detected {
		t.Errorf("retain: got = %+v, wanted detected", res)
	}
}

func TestEditDistanceTolerance(t *testing.T) {
	bp := mustCompile(t, singleStage(blueprint.Behavior{
		ID:        "greet",
		Type:      blueprint.Required,
		Detection: blueprint.ExactPhrase,
		Phrases:   []string{"thank you for calling"},
		Weight:    100,
	}))
	tr := &transcript.Transcript{
		CallID: "c",
		Segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "thank you for callin"},
		},
	}

	out, err := mustEngine(t).Evaluate(bp, tr)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out.Results["greet"].Detected {
		t.Error("exact matching: got detected, wanted undetected for transcription drift")
	}

	out, err = mustEngine(t, rules.WithEditDistance(1)).Evaluate(bp, tr)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !out.Results["greet"].Detected {
		t.Error("tolerance 1: got undetected, wanted detected")
	}
}

func TestWordBoundaries(t *testing.T) {
	bp := mustCompile(t, singleStage(blueprint.Behavior{
		ID:        "help",
		Type:      blueprint.Required,
		Detection: blueprint.ExactPhrase,
		Phrases:   []string{"help"},
		Weight:    100,
	}))
	tr := &transcript.Transcript{
		CallID: "c",
		Segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "the situation felt helpless"},
		},
	}
	out, err := mustEngine(t).Evaluate(bp, tr)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if out.Results["help"].Detected {
		t.Error("boundary: got detected inside a longer word, wanted undetected")
	}
}

func TestSemanticBehaviorsSkipped(t *testing.T) {
	bp := mustCompile(t, singleStage(blueprint.Behavior{
		ID:          "empathy",
		Description: "Agent acknowledges the customer's frustration.",
		Type:        blueprint.Required,
		Detection:   blueprint.Semantic,
		Weight:      100,
	}))
	tr := &transcript.Transcript{
		CallID: "c",
		Segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "I completely understand how frustrating this is"},
		},
	}
	out, err := mustEngine(t).Evaluate(bp, tr)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(out.Results) != 0 {
		t.Errorf("results: got = %v, wanted none for semantic-only blueprint", out.Results)
	}
	if !out.Applicable("empathy") {
		t.Error("empathy: got inapplicable, wanted applicable")
	}
}

func TestEmptyTranscript(t *testing.T) {
	bp := mustCompile(t, singleStage(blueprint.Behavior{
		ID:        "greet",
		Type:      blueprint.Required,
		Detection: blueprint.ExactPhrase,
		Phrases:   []string{"thank you for calling"},
		Weight:    100,
	}))
	out, err := mustEngine(t).Evaluate(bp, &transcript.Transcript{CallID: "empty"})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res := out.Results["greet"]; res.Detected {
		t.Errorf("greet: got = %+v, wanted undetected on empty transcript", res)
	}
	if len(out.OrderViolations) != 0 {
		t.Errorf("order violations: got = %v, wanted none", out.OrderViolations)
	}
}
